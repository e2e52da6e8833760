// Package decision turns a captured screen plus a task into a validated
// next step. The vision boundary returns free text; nothing it says is
// trusted until it parses into a known action shape. An unreachable
// endpoint, a timeout, or an unparsable response all degrade to a no-op
// tick — never a crash, never an unvalidated action.
package decision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deskpilot/backend/internal/domain/action"
	"github.com/deskpilot/backend/internal/domain/activity"
	"github.com/deskpilot/backend/internal/infrastructure/logging"
	"github.com/deskpilot/backend/internal/infrastructure/monitoring"
	"github.com/deskpilot/backend/internal/infrastructure/resilience"
	"github.com/deskpilot/backend/internal/vision"
)

// Kind classifies a decision.
type Kind string

const (
	// KindAct proposes a concrete action for this tick.
	KindAct Kind = "act"
	// KindNoOp means nothing to do this tick; the loop idles.
	KindNoOp Kind = "noop"
	// KindTerminate means the task is complete or unachievable.
	KindTerminate Kind = "terminate"
)

// Decision is the engine's verdict for one tick.
type Decision struct {
	Kind      Kind
	Action    action.Action // valid when Kind == KindAct
	Reasoning string
}

// DecodeError reports an unparsable vision response. It is informational:
// the decision it accompanies is already a safe no-op.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode vision response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Engine obtains proposed actions from the vision boundary. It owns no
// device state.
type Engine struct {
	client  vision.Client
	breaker *resilience.Breaker
	logger  *logging.Logger
	metrics *monitoring.Metrics
	timeout time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTimeout bounds each vision round trip.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.timeout = d }
}

// WithMetrics attaches metrics collection.
func WithMetrics(m *monitoring.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates a decision engine over the given vision client.
func NewEngine(client vision.Client, logger *logging.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		client: client,
		breaker: resilience.NewBreaker("vision", resilience.Settings{
			FailureThreshold: 3,
			Cooldown:         30 * time.Second,
		}),
		logger:  logger,
		timeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide submits the screen, the task goal, and a bounded window of
// recent history, then parses the response defensively. Failures of any
// sort come back as a no-op decision with the cause in Reasoning.
func (e *Engine) Decide(ctx context.Context, image []byte, goal string, history []activity.Record) Decision {
	system := systemPrompt()
	user := userPrompt(goal, history)

	var raw string
	start := time.Now()
	err := e.breaker.Execute(func() error {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		var perr error
		raw, perr = e.client.Propose(callCtx, image, system, user)
		return perr
	})
	if e.metrics != nil {
		e.metrics.RecordDecision(time.Since(start))
	}

	if err != nil {
		e.logger.Warn("vision boundary unavailable",
			zap.String("provider", e.client.Provider()),
			zap.Error(err),
		)
		return Decision{Kind: KindNoOp, Reasoning: fmt.Sprintf("vision boundary unavailable: %v", err)}
	}

	d, derr := parseDecision(raw)
	if derr != nil {
		if e.metrics != nil {
			e.metrics.DecodeFailures.Inc()
		}
		e.logger.Warn("unparsable vision response",
			zap.Error(derr),
			zap.String("raw", truncate(raw, 400)),
		)
		return Decision{Kind: KindNoOp, Reasoning: fmt.Sprintf("decode failure: %v", derr)}
	}
	return d
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "") + "..."
}
