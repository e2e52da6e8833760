package action

import "fmt"

// Kind identifies a desktop action variant. The set is closed: every
// component that dispatches on it (executor, governor, logger) switches
// exhaustively so a new variant is a compile-visible change.
type Kind string

const (
	KindMove           Kind = "move"
	KindClick          Kind = "click"
	KindType           Kind = "type"
	KindKey            Kind = "key"
	KindListWindows    Kind = "windows"
	KindActivateWindow Kind = "activate"
	KindScreenshot     Kind = "screenshot"
)

// Source records which caller produced an action.
type Source string

const (
	SourceAutonomous Source = "autonomous"
	SourceAPI        Source = "api"
)

// Action describes a single desktop input or query operation. Values are
// immutable once constructed; use the constructors below.
type Action struct {
	Kind     Kind   `json:"kind"`
	X        int    `json:"x,omitempty"`
	Y        int    `json:"y,omitempty"`
	HasPoint bool   `json:"has_point,omitempty"`
	Button   int    `json:"button,omitempty"`
	Text     string `json:"text,omitempty"`
	Chord    string `json:"chord,omitempty"`
	WindowID string `json:"window_id,omitempty"`

	Source    Source `json:"source,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Move positions the pointer at screen coordinates.
func Move(x, y int) Action {
	return Action{Kind: KindMove, X: x, Y: y, HasPoint: true}
}

// Click presses a pointer button at the current position.
func Click(button int) Action {
	return Action{Kind: KindClick, Button: button}
}

// ClickAt moves the pointer and presses a button there.
func ClickAt(button, x, y int) Action {
	return Action{Kind: KindClick, Button: button, X: x, Y: y, HasPoint: true}
}

// TypeText injects literal text through the keyboard.
func TypeText(text string) Action {
	return Action{Kind: KindType, Text: text}
}

// KeyChord presses a key combination such as "ctrl+alt+t".
func KeyChord(chord string) Action {
	return Action{Kind: KindKey, Chord: chord}
}

// ListWindows queries the window manager for open windows.
func ListWindows() Action {
	return Action{Kind: KindListWindows}
}

// ActivateWindow raises and focuses the window with the given ID.
func ActivateWindow(id string) Action {
	return Action{Kind: KindActivateWindow, WindowID: id}
}

// Screenshot captures the current screen contents.
func Screenshot() Action {
	return Action{Kind: KindScreenshot}
}

// From returns a copy attributed to the given source.
func (a Action) From(src Source) Action {
	a.Source = src
	return a
}

// WithReasoning returns a copy carrying the decision engine's rationale.
func (a Action) WithReasoning(r string) Action {
	a.Reasoning = r
	return a
}

// Point returns the target coordinates for pointer actions.
func (a Action) Point() (x, y int, ok bool) {
	return a.X, a.Y, a.HasPoint
}

// String renders a short human-readable form for logs.
func (a Action) String() string {
	switch a.Kind {
	case KindMove:
		return fmt.Sprintf("move(%d,%d)", a.X, a.Y)
	case KindClick:
		if a.HasPoint {
			return fmt.Sprintf("click(button=%d,%d,%d)", a.Button, a.X, a.Y)
		}
		return fmt.Sprintf("click(button=%d)", a.Button)
	case KindType:
		return fmt.Sprintf("type(%d chars)", len(a.Text))
	case KindKey:
		return fmt.Sprintf("key(%s)", a.Chord)
	case KindListWindows:
		return "windows"
	case KindActivateWindow:
		return fmt.Sprintf("activate(%s)", a.WindowID)
	case KindScreenshot:
		return "screenshot"
	default:
		return string(a.Kind)
	}
}
