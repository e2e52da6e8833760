package decision

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/deskpilot/backend/internal/domain/action"
)

// fencedJSON extracts a JSON object wrapped in a markdown code fence,
// with or without a language tag.
var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

// proposal mirrors the JSON structure the prompt requests. Every field
// is optional; validation happens after unmarshaling.
type proposal struct {
	Analysis        string `json:"analysis"`
	SuggestedAction struct {
		Type      string `json:"type"`
		X         *int   `json:"x"`
		Y         *int   `json:"y"`
		Button    *int   `json:"button"`
		Text      string `json:"text"`
		Key       string `json:"key"`
		WindowID  string `json:"window_id"`
		Reasoning string `json:"reasoning"`
	} `json:"suggested_action"`
}

// parseDecision interprets the model's raw text. Models wrap JSON in
// markdown fences or conversational prose often enough that both are
// handled before giving up.
func parseDecision(raw string) (Decision, error) {
	text := extractJSON(strings.TrimSpace(raw))
	if text == "" {
		return Decision{}, &DecodeError{Raw: raw, Err: fmt.Errorf("no JSON object found")}
	}

	var p proposal
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return Decision{}, &DecodeError{Raw: raw, Err: err}
	}

	sa := p.SuggestedAction
	reasoning := sa.Reasoning
	if reasoning == "" {
		reasoning = p.Analysis
	}

	switch strings.ToLower(strings.TrimSpace(sa.Type)) {
	case "wait", "":
		return Decision{Kind: KindNoOp, Reasoning: reasoning}, nil

	case "task_complete", "done", "terminate":
		return Decision{Kind: KindTerminate, Reasoning: reasoning}, nil

	case "move":
		if sa.X == nil || sa.Y == nil {
			return Decision{}, &DecodeError{Raw: raw, Err: fmt.Errorf("move without coordinates")}
		}
		return act(action.Move(*sa.X, *sa.Y), reasoning), nil

	case "click":
		button := 1
		if sa.Button != nil {
			button = *sa.Button
		}
		if sa.X != nil && sa.Y != nil {
			return act(action.ClickAt(button, *sa.X, *sa.Y), reasoning), nil
		}
		return act(action.Click(button), reasoning), nil

	case "type":
		if sa.Text == "" {
			return Decision{}, &DecodeError{Raw: raw, Err: fmt.Errorf("type without text")}
		}
		return act(action.TypeText(sa.Text), reasoning), nil

	case "key_press", "key":
		if sa.Key == "" {
			return Decision{}, &DecodeError{Raw: raw, Err: fmt.Errorf("key_press without key")}
		}
		return act(action.KeyChord(sa.Key), reasoning), nil

	case "activate", "activate_window":
		if sa.WindowID == "" {
			return Decision{}, &DecodeError{Raw: raw, Err: fmt.Errorf("activate without window_id")}
		}
		return act(action.ActivateWindow(sa.WindowID), reasoning), nil

	case "windows", "list_windows":
		return act(action.ListWindows(), reasoning), nil

	case "screenshot":
		return act(action.Screenshot(), reasoning), nil

	default:
		return Decision{}, &DecodeError{Raw: raw, Err: fmt.Errorf("unknown action type %q", sa.Type)}
	}
}

func act(a action.Action, reasoning string) Decision {
	return Decision{
		Kind:      KindAct,
		Action:    a.From(action.SourceAutonomous).WithReasoning(reasoning),
		Reasoning: reasoning,
	}
}

// extractJSON pulls the most plausible JSON object out of a response:
// the whole string, a fenced block, or the outermost brace pair inside
// prose.
func extractJSON(s string) string {
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s
	}
	if m := fencedJSON.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first != -1 && last > first {
		return s[first : last+1]
	}
	return ""
}
