package decision

import (
	"fmt"
	"strings"
	"time"

	"github.com/deskpilot/backend/internal/domain/activity"
)

func systemPrompt() string {
	return strings.TrimSpace(`
You are operating a Linux desktop through a controlled set of input actions.
You see the current screen as an image. Decide the single next action.

Respond with ONLY a JSON object in this exact structure:
{
  "analysis": "one sentence describing what you see",
  "suggested_action": {
    "type": "move|click|type|key_press|activate|windows|screenshot|wait|task_complete",
    "x": 100,
    "y": 200,
    "button": 1,
    "text": "text to type (type only)",
    "key": "key chord such as Return or ctrl+t (key_press only)",
    "window_id": "window id (activate only)",
    "reasoning": "why this action advances the task"
  }
}

Rules:
- "wait" means nothing useful can be done right now.
- "task_complete" means the task is finished or cannot be achieved.
- Coordinates are absolute screen pixels; be precise.
- One action per response. No prose outside the JSON.`)
}

func userPrompt(goal string, history []activity.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current task: %s\n", goal)
	fmt.Fprintf(&b, "Time: %s\n", time.Now().Format("2006-01-02 15:04:05"))

	if len(history) > 0 {
		b.WriteString("\nRecent activity (oldest first):\n")
		for _, r := range history {
			b.WriteString("- ")
			b.WriteString(describeRecord(r))
			b.WriteString("\n")
		}
	}

	b.WriteString("\nAnalyze the screenshot and choose the next action.")
	return b.String()
}

func describeRecord(r activity.Record) string {
	switch r.Event {
	case activity.EventAction:
		desc := fmt.Sprintf("%s -> %s", r.Action.String(), r.Outcome)
		if r.Reason != "" {
			desc += " (" + r.Reason + ")"
		}
		return desc
	case activity.EventDecision:
		if r.Reasoning != "" {
			return fmt.Sprintf("decision %s (%s)", r.Decision, r.Reasoning)
		}
		return "decision " + r.Decision
	case activity.EventControl:
		return "control " + r.Control
	default:
		return string(r.Event)
	}
}
