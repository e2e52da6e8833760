// Package executor translates validated actions into device input. It is
// the only component that touches the input device, and its mutex is the
// single mutual-exclusion scope between the autonomy loop and the API:
// evaluate, admit, and device write happen atomically with respect to
// every other caller.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deskpilot/backend/internal/desktop"
	"github.com/deskpilot/backend/internal/domain/action"
	"github.com/deskpilot/backend/internal/domain/activity"
	"github.com/deskpilot/backend/internal/domain/safety"
	"github.com/deskpilot/backend/internal/infrastructure/logging"
	"github.com/deskpilot/backend/internal/infrastructure/monitoring"
)

// Result carries data produced by query actions.
type Result struct {
	Windows []desktop.Window
	Image   []byte
}

// Executor gates every action through the safety governor and serializes
// device access. Every call to Execute resolves to exactly one activity
// record, whatever the outcome.
type Executor struct {
	mu       sync.Mutex
	device   desktop.Device
	capture  desktop.Capture
	governor *safety.Governor
	log      *activity.Log
	logger   *logging.Logger
	metrics  *monitoring.Metrics
}

// New creates an executor.
func New(device desktop.Device, capture desktop.Capture, governor *safety.Governor, log *activity.Log, logger *logging.Logger) *Executor {
	return &Executor{
		device:   device,
		capture:  capture,
		governor: governor,
		log:      log,
		logger:   logger,
	}
}

// WithMetrics attaches metrics collection.
func (e *Executor) WithMetrics(m *monitoring.Metrics) *Executor {
	e.metrics = m
	return e
}

// Execute evaluates, then performs, one action. On veto the device is
// never touched and the caller sees a *safety.VetoError; on device
// failure the caller sees a *desktop.DeviceError. Policy outcomes are
// results, not bugs: neither is ever retried here.
func (e *Executor) Execute(ctx context.Context, a action.Action) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()

	// Window-targeting actions need the resolved title for the
	// forbidden-window check. This is a read-only query; input
	// synthesis still happens only after the governor admits.
	title := ""
	if a.Kind == action.KindActivateWindow {
		var err error
		title, err = e.resolveTitle(ctx, a.WindowID)
		if err != nil {
			e.record(a, activity.OutcomeFailed, err.Error(), nil, start)
			return nil, err
		}
	}

	if err := e.governor.Evaluate(a, title); err != nil {
		var veto *safety.VetoError
		if errors.As(err, &veto) {
			e.logger.Info("action vetoed",
				zap.String("action", a.String()),
				zap.String("source", string(a.Source)),
				zap.String("reason", string(veto.Reason)),
			)
			if e.metrics != nil {
				e.metrics.RecordVeto(string(veto.Reason))
			}
			e.record(a, activity.OutcomeVetoed, string(veto.Reason), nil, start)
		}
		return nil, err
	}

	result, err := e.dispatch(ctx, a)
	if err != nil {
		e.logger.Warn("action failed",
			zap.String("action", a.String()),
			zap.Error(err),
		)
		e.record(a, activity.OutcomeFailed, err.Error(), nil, start)
		return nil, err
	}

	e.logger.Info("action executed",
		zap.String("action", a.String()),
		zap.String("source", string(a.Source)),
	)
	e.record(a, activity.OutcomeExecuted, "", result, start)
	return result, nil
}

// dispatch performs the device call for each action kind. The switch is
// exhaustive over action.Kind. A panicking device primitive is converted
// to a DeviceError so nothing escapes to crash a caller.
func (e *Executor) dispatch(ctx context.Context, a action.Action) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &desktop.DeviceError{Op: string(a.Kind), Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	switch a.Kind {
	case action.KindMove:
		return &Result{}, e.device.MoveMouse(ctx, a.X, a.Y)

	case action.KindClick:
		if x, y, ok := a.Point(); ok {
			if err := e.device.MoveMouse(ctx, x, y); err != nil {
				return nil, err
			}
		}
		return &Result{}, e.device.Click(ctx, a.Button)

	case action.KindType:
		return &Result{}, e.device.TypeText(ctx, a.Text)

	case action.KindKey:
		return &Result{}, e.device.PressKey(ctx, a.Chord)

	case action.KindListWindows:
		windows, err := e.device.ListWindows(ctx)
		if err != nil {
			return nil, err
		}
		return &Result{Windows: windows}, nil

	case action.KindActivateWindow:
		return &Result{}, e.device.ActivateWindow(ctx, a.WindowID)

	case action.KindScreenshot:
		image, err := e.capture.Capture(ctx)
		if err != nil {
			return nil, err
		}
		return &Result{Image: image}, nil

	default:
		return nil, &desktop.DeviceError{Op: string(a.Kind), Err: fmt.Errorf("unknown action kind")}
	}
}

func (e *Executor) resolveTitle(ctx context.Context, windowID string) (string, error) {
	windows, err := e.device.ListWindows(ctx)
	if err != nil {
		return "", err
	}
	for _, w := range windows {
		if w.ID == windowID {
			return w.Title, nil
		}
	}
	return "", &desktop.DeviceError{Op: "activate", Err: fmt.Errorf("window %s not found", windowID)}
}

func (e *Executor) record(a action.Action, outcome activity.Outcome, reason string, result *Result, start time.Time) {
	r := activity.NewActionRecord(a, outcome, reason)
	if result != nil {
		r.Windows = result.Windows
		r.ScreenshotSize = len(result.Image)
	}
	e.log.Append(r)
	if e.metrics != nil {
		e.metrics.RecordAction(string(a.Kind), string(a.Source), string(outcome), time.Since(start))
	}
}
