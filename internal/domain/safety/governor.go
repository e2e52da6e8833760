package safety

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deskpilot/backend/internal/domain/action"
)

// Reason explains a veto. Reasons are stable strings that end up in the
// activity log and in metrics labels.
type Reason string

const (
	ReasonEmergencyStop   Reason = "emergency_stop"
	ReasonRateLimit       Reason = "rate_limit"
	ReasonRestrictedZone  Reason = "restricted_zone"
	ReasonForbiddenWindow Reason = "forbidden_window"
)

// VetoError is the policy-rejection result. It is an expected outcome,
// never retried automatically.
type VetoError struct {
	Reason Reason
}

func (e *VetoError) Error() string {
	return fmt.Sprintf("action vetoed: %s", e.Reason)
}

// Zone is an axis-aligned screen rectangle in which pointer actions are
// always vetoed.
type Zone struct {
	X      int `yaml:"x" json:"x"`
	Y      int `yaml:"y" json:"y"`
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// Contains reports whether the point falls inside the zone. Edges count
// as inside.
func (z Zone) Contains(x, y int) bool {
	return x >= z.X && x <= z.X+z.Width && y >= z.Y && y <= z.Y+z.Height
}

// Policy is the safety configuration loaded once at startup. Only the
// emergency-stop flag on the Governor mutates at runtime.
type Policy struct {
	MaxActions      int           `yaml:"max_actions"`
	Window          time.Duration `yaml:"window"`
	RestrictedZones []Zone        `yaml:"restricted_zones"`
	ForbiddenTitles []string      `yaml:"forbidden_titles"`
}

// DefaultPolicy allows 30 actions per rolling minute with no restricted
// zones or forbidden windows.
func DefaultPolicy() Policy {
	return Policy{
		MaxActions: 30,
		Window:     time.Minute,
	}
}

// Governor is the single policy enforcement point. Both the autonomy loop
// and the API pass every action through Evaluate before the executor
// touches the device, so there is no path that bypasses safety.
type Governor struct {
	policy Policy

	stopped atomic.Bool

	mu     sync.Mutex
	stamps []time.Time

	now func() time.Time
}

// NewGovernor creates a governor with the given policy.
func NewGovernor(policy Policy) *Governor {
	if policy.MaxActions <= 0 {
		policy.MaxActions = DefaultPolicy().MaxActions
	}
	if policy.Window <= 0 {
		policy.Window = DefaultPolicy().Window
	}
	return &Governor{
		policy: policy,
		now:    time.Now,
	}
}

// Policy returns the configured policy.
func (g *Governor) Policy() Policy {
	return g.policy
}

// Evaluate checks an action against policy and, when allowed, admits it
// into the rate window as one atomic step. windowTitle is the resolved
// title for window-targeting actions and is ignored otherwise. A nil
// return means the action is admitted; otherwise the error is a
// *VetoError carrying the first failed check.
//
// Check order: emergency stop, rate limit, restricted zone, forbidden
// window. Admission happens only after every check passes, so a vetoed
// action never consumes rate budget.
func (g *Governor) Evaluate(a action.Action, windowTitle string) error {
	if g.stopped.Load() {
		return &VetoError{Reason: ReasonEmergencyStop}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.prune(now)
	if len(g.stamps) >= g.policy.MaxActions {
		return &VetoError{Reason: ReasonRateLimit}
	}

	if x, y, ok := g.pointerTarget(a); ok {
		for _, zone := range g.policy.RestrictedZones {
			if zone.Contains(x, y) {
				return &VetoError{Reason: ReasonRestrictedZone}
			}
		}
	}

	if a.Kind == action.KindActivateWindow && g.titleForbidden(windowTitle) {
		return &VetoError{Reason: ReasonForbiddenWindow}
	}

	// The flag may have been raised while we held the lock; honor it
	// before admitting.
	if g.stopped.Load() {
		return &VetoError{Reason: ReasonEmergencyStop}
	}

	g.stamps = append(g.stamps, now)
	return nil
}

// TriggerEmergencyStop latches the stop flag. Idempotent; every
// subsequent Evaluate vetoes until an operator resets.
func (g *Governor) TriggerEmergencyStop() {
	g.stopped.Store(true)
}

// ResetEmergencyStop clears the latched flag. This is an explicit
// operator action, never automatic.
func (g *Governor) ResetEmergencyStop() {
	g.stopped.Store(false)
}

// EmergencyStopped reports the current flag state.
func (g *Governor) EmergencyStopped() bool {
	return g.stopped.Load()
}

// Pending reports how many admitted actions remain inside the rolling
// window.
func (g *Governor) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prune(g.now())
	return len(g.stamps)
}

// prune drops timestamps older than the rolling window. Callers hold mu.
func (g *Governor) prune(now time.Time) {
	cutoff := now.Add(-g.policy.Window)
	kept := g.stamps[:0]
	for _, t := range g.stamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	g.stamps = kept
}

// pointerTarget returns the coordinates subject to zone checks: moves
// always carry a point, clicks only when targeted.
func (g *Governor) pointerTarget(a action.Action) (int, int, bool) {
	switch a.Kind {
	case action.KindMove, action.KindClick:
		return a.Point()
	case action.KindType, action.KindKey, action.KindListWindows, action.KindActivateWindow, action.KindScreenshot:
		return 0, 0, false
	default:
		return 0, 0, false
	}
}

func (g *Governor) titleForbidden(title string) bool {
	if title == "" {
		return false
	}
	lower := strings.ToLower(title)
	for _, sub := range g.policy.ForbiddenTitles {
		if sub != "" && strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
