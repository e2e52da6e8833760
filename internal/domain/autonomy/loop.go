// Package autonomy drives the perceive-decide-act loop: capture the
// screen, ask the decision engine for a step, execute it through the
// governed executor, and record everything. The loop owns its state
// exclusively; the control surface only reads it and requests
// transitions.
package autonomy

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deskpilot/backend/internal/decision"
	"github.com/deskpilot/backend/internal/desktop"
	"github.com/deskpilot/backend/internal/domain/action"
	"github.com/deskpilot/backend/internal/domain/activity"
	"github.com/deskpilot/backend/internal/domain/executor"
	"github.com/deskpilot/backend/internal/domain/safety"
	"github.com/deskpilot/backend/internal/infrastructure/logging"
	"github.com/deskpilot/backend/internal/infrastructure/monitoring"
	"github.com/deskpilot/backend/internal/shared/id"
)

// State is the autonomy loop's lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStoppingRequested
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStoppingRequested:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrInvalidState rejects a transition that is not legal from the
// current state, synchronously and without side effects.
var ErrInvalidState = errors.New("invalid autonomy state transition")

// Task is the goal supplied when the loop starts. It is discarded when
// the loop stops.
type Task struct {
	ID         id.TaskID `json:"id"`
	Goal       string    `json:"goal"`
	StepBudget int       `json:"step_budget"`
	Deadline   time.Time `json:"deadline,omitempty"`
}

// Decider proposes the next step for a captured screen.
type Decider interface {
	Decide(ctx context.Context, image []byte, goal string, history []activity.Record) decision.Decision
}

// Exec performs one validated action.
type Exec interface {
	Execute(ctx context.Context, a action.Action) (*executor.Result, error)
}

// Loop is the long-lived autonomy driver.
type Loop struct {
	capture  desktop.Capture
	engine   Decider
	exec     Exec
	governor *safety.Governor
	log      *activity.Log
	logger   *logging.Logger
	metrics  *monitoring.Metrics

	interval time.Duration
	historyN int

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	task   Task
	steps  int
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithInterval sets the pause between iterations.
func WithInterval(d time.Duration) LoopOption {
	return func(l *Loop) { l.interval = d }
}

// WithHistoryWindow bounds how many recent records each decision sees.
func WithHistoryWindow(n int) LoopOption {
	return func(l *Loop) { l.historyN = n }
}

// WithMetrics attaches metrics collection.
func WithMetrics(m *monitoring.Metrics) LoopOption {
	return func(l *Loop) { l.metrics = m }
}

// NewLoop creates an idle loop.
func NewLoop(capture desktop.Capture, engine Decider, exec Exec, governor *safety.Governor, log *activity.Log, logger *logging.Logger, opts ...LoopOption) *Loop {
	l := &Loop{
		capture:  capture,
		engine:   engine,
		exec:     exec,
		governor: governor,
		log:      log,
		logger:   logger,
		interval: 3 * time.Second,
		historyN: 10,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start transitions Idle or Stopped to Running and launches the loop
// goroutine. Any other current state is rejected with ErrInvalidState.
func (l *Loop) Start(task Task) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateRunning || l.state == StateStoppingRequested {
		return ErrInvalidState
	}
	if task.ID == "" {
		task.ID = id.NewTaskID()
	}
	if task.StepBudget <= 0 {
		task.StepBudget = 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.task = task
	l.steps = 0
	l.cancel = cancel
	l.done = make(chan struct{})
	l.setState(StateRunning)

	l.logger.Info("autonomy started",
		zap.String("task_id", string(task.ID)),
		zap.String("goal", task.Goal),
		zap.Int("step_budget", task.StepBudget),
	)
	go l.run(ctx, task)
	return nil
}

// RequestStop transitions Running to StoppingRequested. The loop reaches
// Stopped at the next iteration boundary, or immediately if it is idling
// between ticks.
func (l *Loop) RequestStop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateRunning {
		return ErrInvalidState
	}
	l.setState(StateStoppingRequested)
	l.cancel()
	return nil
}

// Interrupt cancels the loop's context without a state demand. It is the
// emergency-stop fast path: the governor's latched flag already vetoes
// every action, this just keeps the loop from waiting out a long
// decision call before noticing.
func (l *Loop) Interrupt() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil && (l.state == StateRunning || l.state == StateStoppingRequested) {
		l.cancel()
	}
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Steps returns how many iterations the current or last task consumed.
func (l *Loop) Steps() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.steps
}

// Task returns the current task. Meaningful only while not Idle.
func (l *Loop) Task() Task {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.task
}

// Done returns a channel closed when the current run reaches Stopped.
// Nil before the first Start.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// run is the loop body. Each iteration is a whole unit: stop requests
// and the emergency flag are honored at iteration boundaries, never by
// aborting an action already handed to the executor.
func (l *Loop) run(ctx context.Context, task Task) {
	defer func() {
		l.mu.Lock()
		l.setState(StateStopped)
		close(l.done)
		l.mu.Unlock()
		l.logger.Info("autonomy stopped",
			zap.String("task_id", string(task.ID)),
			zap.Int("steps", l.Steps()),
		)
	}()

	for {
		if l.governor.EmergencyStopped() {
			l.logger.Warn("autonomy halted by emergency stop", zap.String("task_id", string(task.ID)))
			return
		}
		if l.stopRequested() || ctx.Err() != nil {
			return
		}
		if l.Steps() >= task.StepBudget {
			l.logger.Info("step budget exhausted", zap.String("task_id", string(task.ID)))
			return
		}
		if !task.Deadline.IsZero() && time.Now().After(task.Deadline) {
			l.logger.Info("task deadline passed", zap.String("task_id", string(task.ID)))
			return
		}

		if l.metrics != nil {
			l.metrics.LoopTicks.Inc()
		}

		if done := l.tick(ctx, task); done {
			return
		}

		l.incrementSteps()
		if !l.sleep(ctx) {
			return
		}
	}
}

// tick runs one capture-decide-act cycle. It returns true when the loop
// should stop.
func (l *Loop) tick(ctx context.Context, task Task) bool {
	image, err := l.capture.Capture(ctx)
	if err != nil {
		// Fatal to this tick only.
		l.logger.Warn("capture failed", zap.Error(err))
		l.log.Append(activity.NewDecisionRecord(string(decision.KindNoOp), "capture failure: "+err.Error()))
		return false
	}

	d := l.engine.Decide(ctx, image, task.Goal, l.log.Recent(l.historyN))

	switch d.Kind {
	case decision.KindTerminate:
		l.log.Append(activity.NewDecisionRecord(string(decision.KindTerminate), d.Reasoning))
		l.logger.Info("task terminated by decision engine",
			zap.String("task_id", string(task.ID)),
			zap.String("reasoning", d.Reasoning),
		)
		return true

	case decision.KindNoOp:
		l.log.Append(activity.NewDecisionRecord(string(decision.KindNoOp), d.Reasoning))
		return false

	case decision.KindAct:
		// Recheck right before the device call; the governor vetoes in
		// this state anyway.
		if l.governor.EmergencyStopped() {
			return true
		}
		// Detach from the loop's cancellation so a stop request never
		// aborts a half-delivered input event; the executor's own
		// device timeouts still bound the call.
		if _, err := l.exec.Execute(context.WithoutCancel(ctx), d.Action); err != nil {
			// Outcome already recorded by the executor. No retry: the
			// next tick re-captures and re-decides with this failure
			// in its history.
			return false
		}
		return false

	default:
		return false
	}
}

func (l *Loop) stopRequested() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == StateStoppingRequested
}

func (l *Loop) incrementSteps() {
	l.mu.Lock()
	l.steps++
	l.mu.Unlock()
}

// sleep idles between ticks, returning false if the loop was canceled.
func (l *Loop) sleep(ctx context.Context) bool {
	if l.interval <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(l.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// setState updates state and the gauge. Callers hold mu.
func (l *Loop) setState(s State) {
	l.state = s
	if l.metrics != nil {
		l.metrics.AutonomyState.Set(float64(s))
	}
}
