package decision

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/deskpilot/backend/internal/domain/activity"
	"github.com/deskpilot/backend/internal/infrastructure/logging"
)

type fakeClient struct {
	response string
	err      error
	calls    int
	lastUser string
}

func (f *fakeClient) Provider() string { return "fake" }

func (f *fakeClient) Propose(ctx context.Context, image []byte, system, user string) (string, error) {
	f.calls++
	f.lastUser = user
	return f.response, f.err
}

func TestDecideParsesAction(t *testing.T) {
	client := &fakeClient{
		response: `{"suggested_action":{"type":"click","x":10,"y":20,"reasoning":"press ok"}}`,
	}
	e := NewEngine(client, logging.NewNop())

	d := e.Decide(context.Background(), []byte("png"), "close the dialog", nil)
	if d.Kind != KindAct {
		t.Fatalf("expected act, got %s", d.Kind)
	}
	if d.Reasoning != "press ok" {
		t.Errorf("reasoning lost: %q", d.Reasoning)
	}
}

func TestDecideDegradesToNoOpOnTransportFailure(t *testing.T) {
	client := &fakeClient{err: fmt.Errorf("connection refused")}
	e := NewEngine(client, logging.NewNop())

	d := e.Decide(context.Background(), []byte("png"), "goal", nil)
	if d.Kind != KindNoOp {
		t.Fatalf("transport failure must degrade to noop, got %s", d.Kind)
	}
	if !strings.Contains(d.Reasoning, "vision boundary unavailable") {
		t.Errorf("reasoning should name the cause: %q", d.Reasoning)
	}
}

func TestDecideDegradesToNoOpOnGarbage(t *testing.T) {
	client := &fakeClient{response: "I'd rather chat about the weather."}
	e := NewEngine(client, logging.NewNop())

	d := e.Decide(context.Background(), []byte("png"), "goal", nil)
	if d.Kind != KindNoOp {
		t.Fatalf("unparsable response must degrade to noop, got %s", d.Kind)
	}
	if !strings.Contains(d.Reasoning, "decode failure") {
		t.Errorf("reasoning should name the cause: %q", d.Reasoning)
	}
}

func TestDecideCircuitBreaksAfterRepeatedFailures(t *testing.T) {
	client := &fakeClient{err: fmt.Errorf("timeout")}
	e := NewEngine(client, logging.NewNop())

	for i := 0; i < 5; i++ {
		d := e.Decide(context.Background(), []byte("png"), "goal", nil)
		if d.Kind != KindNoOp {
			t.Fatalf("call %d: expected noop, got %s", i, d.Kind)
		}
	}

	// The breaker opens after three consecutive failures; later calls
	// never reach the client.
	if client.calls != 3 {
		t.Errorf("expected 3 upstream calls before the breaker opened, got %d", client.calls)
	}
}

func TestDecideIncludesHistoryInPrompt(t *testing.T) {
	client := &fakeClient{response: `{"suggested_action":{"type":"wait"}}`}
	e := NewEngine(client, logging.NewNop())

	history := []activity.Record{
		activity.NewDecisionRecord("noop", "screen still loading"),
	}
	e.Decide(context.Background(), []byte("png"), "open the browser", history)

	if !strings.Contains(client.lastUser, "open the browser") {
		t.Error("user prompt should carry the goal")
	}
	if !strings.Contains(client.lastUser, "screen still loading") {
		t.Error("user prompt should carry recent history")
	}
}
