package autonomy

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deskpilot/backend/internal/decision"
	"github.com/deskpilot/backend/internal/domain/action"
	"github.com/deskpilot/backend/internal/domain/activity"
	"github.com/deskpilot/backend/internal/domain/executor"
	"github.com/deskpilot/backend/internal/domain/safety"
	"github.com/deskpilot/backend/internal/infrastructure/logging"
)

type fakeCapture struct {
	err   error
	calls atomic.Int64
}

func (c *fakeCapture) Capture(ctx context.Context) ([]byte, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return []byte("png"), nil
}

// scriptedDecider plays decisions in order, repeating the last one.
type scriptedDecider struct {
	script []decision.Decision
	calls  atomic.Int64
}

func (d *scriptedDecider) Decide(ctx context.Context, image []byte, goal string, history []activity.Record) decision.Decision {
	n := int(d.calls.Add(1)) - 1
	if n >= len(d.script) {
		n = len(d.script) - 1
	}
	return d.script[n]
}

type countingExec struct {
	calls atomic.Int64
	err   error
}

func (e *countingExec) Execute(ctx context.Context, a action.Action) (*executor.Result, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return &executor.Result{}, nil
}

func act() decision.Decision {
	return decision.Decision{Kind: decision.KindAct, Action: action.Click(1).From(action.SourceAutonomous)}
}

func newTestLoop(d Decider, e Exec, g *safety.Governor, log *activity.Log) *Loop {
	return NewLoop(&fakeCapture{}, d, e, g, log, logging.NewNop(), WithInterval(time.Millisecond))
}

func waitStopped(t *testing.T, l *Loop) {
	t.Helper()
	select {
	case <-l.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("loop did not stop; state %s", l.State())
	}
	if l.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", l.State())
	}
}

func TestStartAndRequestStop(t *testing.T) {
	l := newTestLoop(
		&scriptedDecider{script: []decision.Decision{{Kind: decision.KindNoOp}}},
		&countingExec{},
		safety.NewGovernor(safety.DefaultPolicy()),
		activity.NewLog(),
	)

	if l.State() != StateIdle {
		t.Fatalf("fresh loop should be idle, got %s", l.State())
	}

	if err := l.Start(Task{Goal: "wait around", StepBudget: 1000}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if l.State() != StateRunning {
		t.Fatalf("expected running, got %s", l.State())
	}

	if err := l.RequestStop(); err != nil {
		t.Fatalf("RequestStop failed: %v", err)
	}
	waitStopped(t, l)
}

func TestInvalidTransitions(t *testing.T) {
	l := newTestLoop(
		&scriptedDecider{script: []decision.Decision{{Kind: decision.KindNoOp}}},
		&countingExec{},
		safety.NewGovernor(safety.DefaultPolicy()),
		activity.NewLog(),
	)

	// Stop before any start.
	if err := l.RequestStop(); err != ErrInvalidState {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}

	if err := l.Start(Task{Goal: "g", StepBudget: 1000}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Double start.
	if err := l.Start(Task{Goal: "again"}); err != ErrInvalidState {
		t.Errorf("expected ErrInvalidState on double start, got %v", err)
	}

	l.RequestStop()

	// Double stop: either the loop already reached Stopped or it is
	// still StoppingRequested; both reject a second request.
	if err := l.RequestStop(); err != ErrInvalidState {
		t.Errorf("expected ErrInvalidState on double stop, got %v", err)
	}
	waitStopped(t, l)
}

func TestRestartAfterStopped(t *testing.T) {
	d := &scriptedDecider{script: []decision.Decision{{Kind: decision.KindTerminate, Reasoning: "done"}}}
	l := newTestLoop(d, &countingExec{}, safety.NewGovernor(safety.DefaultPolicy()), activity.NewLog())

	if err := l.Start(Task{Goal: "first"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitStopped(t, l)

	if err := l.Start(Task{Goal: "second"}); err != nil {
		t.Fatalf("restart from stopped failed: %v", err)
	}
	waitStopped(t, l)
}

func TestTerminateStopsAfterOneIteration(t *testing.T) {
	log := activity.NewLog()
	d := &scriptedDecider{script: []decision.Decision{{Kind: decision.KindTerminate, Reasoning: "goal achieved"}}}
	exec := &countingExec{}
	l := newTestLoop(d, exec, safety.NewGovernor(safety.DefaultPolicy()), log)

	if err := l.Start(Task{Goal: "g", StepBudget: 100}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitStopped(t, l)

	if got := d.calls.Load(); got != 1 {
		t.Errorf("expected exactly 1 decision, got %d", got)
	}
	if exec.calls.Load() != 0 {
		t.Error("terminate must not execute anything")
	}
	if log.Len() != 1 {
		t.Fatalf("expected exactly 1 record, got %d", log.Len())
	}
	r := log.Recent(1)[0]
	if r.Event != activity.EventDecision || r.Decision != string(decision.KindTerminate) {
		t.Errorf("unexpected record: %+v", r)
	}
}

func TestStepBudgetExhaustionIsNormalCompletion(t *testing.T) {
	d := &scriptedDecider{script: []decision.Decision{act()}}
	exec := &countingExec{}
	l := newTestLoop(d, exec, safety.NewGovernor(safety.DefaultPolicy()), activity.NewLog())

	if err := l.Start(Task{Goal: "g", StepBudget: 3}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitStopped(t, l)

	if got := exec.calls.Load(); got != 3 {
		t.Errorf("expected 3 executions, got %d", got)
	}
	if l.Steps() != 3 {
		t.Errorf("expected 3 steps, got %d", l.Steps())
	}
}

func TestDeadlineStopsLoop(t *testing.T) {
	d := &scriptedDecider{script: []decision.Decision{{Kind: decision.KindNoOp}}}
	l := newTestLoop(d, &countingExec{}, safety.NewGovernor(safety.DefaultPolicy()), activity.NewLog())

	task := Task{Goal: "g", StepBudget: 100000, Deadline: time.Now().Add(25 * time.Millisecond)}
	if err := l.Start(task); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitStopped(t, l)
}

func TestEmergencyStopForcesStopped(t *testing.T) {
	governor := safety.NewGovernor(safety.DefaultPolicy())
	d := &scriptedDecider{script: []decision.Decision{act()}}
	exec := &countingExec{}
	l := newTestLoop(d, exec, governor, activity.NewLog())

	if err := l.Start(Task{Goal: "g", StepBudget: 100000}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	governor.TriggerEmergencyStop()
	l.Interrupt()
	waitStopped(t, l)

	before := exec.calls.Load()
	time.Sleep(20 * time.Millisecond)
	if exec.calls.Load() != before {
		t.Error("loop kept executing after emergency stop")
	}
}

func TestCaptureFailureAbortsTickOnly(t *testing.T) {
	log := activity.NewLog()
	capture := &fakeCapture{err: fmt.Errorf("no display")}
	d := &scriptedDecider{script: []decision.Decision{act()}}
	exec := &countingExec{}
	l := NewLoop(capture, d, exec, safety.NewGovernor(safety.DefaultPolicy()), log, logging.NewNop(),
		WithInterval(time.Millisecond))

	if err := l.Start(Task{Goal: "g", StepBudget: 3}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitStopped(t, l)

	// Every tick failed capture, so the engine never ran, but the loop
	// kept going until the budget was spent.
	if d.calls.Load() != 0 {
		t.Errorf("decider should never run without a frame, got %d calls", d.calls.Load())
	}
	if exec.calls.Load() != 0 {
		t.Error("nothing should execute without a frame")
	}
	if log.Len() != 3 {
		t.Errorf("each failed tick should log one decision record, got %d", log.Len())
	}
}

func TestStopWhileIdlingBetweenTicks(t *testing.T) {
	d := &scriptedDecider{script: []decision.Decision{{Kind: decision.KindNoOp}}}
	l := NewLoop(&fakeCapture{}, d, &countingExec{}, safety.NewGovernor(safety.DefaultPolicy()),
		activity.NewLog(), logging.NewNop(), WithInterval(time.Hour))

	if err := l.Start(Task{Goal: "g", StepBudget: 100}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Give the loop time to enter its long sleep, then stop; the stop
	// must not wait out the interval.
	time.Sleep(50 * time.Millisecond)
	if err := l.RequestStop(); err != nil {
		t.Fatalf("RequestStop failed: %v", err)
	}
	waitStopped(t, l)
}
