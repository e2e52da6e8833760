package desktop

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// runner executes an external command and returns combined output. It
// exists so tests can exercise the device without a display.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%s: %w (%s)", name, err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// XDoTool drives the desktop through xdotool and wmctrl, the same
// primitives the display container exposes. Every call carries its own
// deadline on top of the caller's context.
type XDoTool struct {
	run       runner
	timeout   time.Duration
	typeDelay int // milliseconds between injected keystrokes
}

// XDoToolOption configures an XDoTool device.
type XDoToolOption func(*XDoTool)

// WithTimeout bounds each device primitive.
func WithTimeout(d time.Duration) XDoToolOption {
	return func(x *XDoTool) { x.timeout = d }
}

// WithTypeDelay sets the per-keystroke delay for text injection.
func WithTypeDelay(ms int) XDoToolOption {
	return func(x *XDoTool) { x.typeDelay = ms }
}

// NewXDoTool creates the real device.
func NewXDoTool(opts ...XDoToolOption) *XDoTool {
	x := &XDoTool{
		run:       execRunner,
		timeout:   5 * time.Second,
		typeDelay: 1,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *XDoTool) exec(ctx context.Context, op string, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	out, err := x.run(ctx, name, args...)
	if err != nil {
		return nil, &DeviceError{Op: op, Err: err}
	}
	return out, nil
}

// MoveMouse positions the pointer at absolute screen coordinates.
func (x *XDoTool) MoveMouse(ctx context.Context, xPos, yPos int) error {
	_, err := x.exec(ctx, "move", "xdotool", "mousemove", strconv.Itoa(xPos), strconv.Itoa(yPos))
	return err
}

// Click presses and releases a pointer button at the current position.
func (x *XDoTool) Click(ctx context.Context, button int) error {
	_, err := x.exec(ctx, "click", "xdotool", "click", strconv.Itoa(button))
	return err
}

// TypeText injects literal text. Newlines become spaces; xdotool's type
// subcommand does not reproduce them reliably across toolkits.
func (x *XDoTool) TypeText(ctx context.Context, text string) error {
	flat := strings.ReplaceAll(text, "\n", " ")
	_, err := x.exec(ctx, "type", "xdotool",
		"type", "--delay", strconv.Itoa(x.typeDelay), "--clearmodifiers", "--", flat)
	return err
}

// PressKey sends a key chord such as "Return" or "ctrl+alt+t".
func (x *XDoTool) PressKey(ctx context.Context, chord string) error {
	_, err := x.exec(ctx, "key", "xdotool", "key", "--clearmodifiers", chord)
	return err
}

// ListWindows enumerates the window manager's client list in stacking
// order.
func (x *XDoTool) ListWindows(ctx context.Context) ([]Window, error) {
	out, err := x.exec(ctx, "windows", "wmctrl", "-l")
	if err != nil {
		return nil, err
	}
	return parseWindowList(string(out)), nil
}

// ActivateWindow raises and focuses a window by its wmctrl ID.
func (x *XDoTool) ActivateWindow(ctx context.Context, id string) error {
	_, err := x.exec(ctx, "activate", "wmctrl", "-ia", id)
	return err
}

// parseWindowList parses `wmctrl -l` output: id, desktop, host, then the
// title with embedded whitespace.
func parseWindowList(out string) []Window {
	var windows []Window
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 3 {
			continue
		}
		w := Window{ID: parts[0], Desktop: parts[1], Host: parts[2]}
		if len(parts) > 3 {
			// Title is everything after the third field in the raw line.
			idx := strings.Index(line, parts[2])
			w.Title = strings.TrimSpace(line[idx+len(parts[2]):])
		}
		windows = append(windows, w)
	}
	return windows
}
