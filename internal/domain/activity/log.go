// Package activity keeps the append-only audit trail. Every attempted
// action, every autonomy decision, and every control event resolves to
// exactly one record here; records are never mutated or reordered after
// append.
package activity

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deskpilot/backend/internal/desktop"
	"github.com/deskpilot/backend/internal/domain/action"
	"github.com/deskpilot/backend/internal/shared/id"
)

// Event classifies a record.
type Event string

const (
	// EventAction records one attempted device action and its outcome.
	EventAction Event = "action"
	// EventDecision records a tick where the engine produced no action
	// (no-op, terminate, or a decode/capture failure).
	EventDecision Event = "decision"
	// EventControl records operator state changes: autonomy start/stop,
	// emergency stop and reset.
	EventControl Event = "control"
)

// Outcome is the resolution of an attempted action.
type Outcome string

const (
	OutcomeExecuted Outcome = "executed"
	OutcomeVetoed   Outcome = "vetoed"
	OutcomeFailed   Outcome = "failed"
)

// Record is one immutable log entry.
type Record struct {
	Seq       uint64        `json:"seq"`
	ID        id.RecordID   `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Event     Event         `json:"event"`
	Source    action.Source `json:"source,omitempty"`

	// Action fields, set for EventAction.
	Action  *action.Action `json:"action,omitempty"`
	Outcome Outcome        `json:"outcome,omitempty"`
	Reason  string         `json:"reason,omitempty"`

	// Decision fields, set for EventDecision.
	Decision  string `json:"decision,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`

	// Control fields, set for EventControl.
	Control string `json:"control,omitempty"`

	// Resulting data references.
	Windows        []desktop.Window `json:"windows,omitempty"`
	ScreenshotSize int              `json:"screenshot_size,omitempty"`
}

// NewActionRecord builds a record for one attempted action.
func NewActionRecord(a action.Action, outcome Outcome, reason string) Record {
	return Record{
		Event:   EventAction,
		Source:  a.Source,
		Action:  &a,
		Outcome: outcome,
		Reason:  reason,
	}
}

// NewDecisionRecord builds a record for an action-less tick.
func NewDecisionRecord(decision, reasoning string) Record {
	return Record{
		Event:     EventDecision,
		Source:    action.SourceAutonomous,
		Decision:  decision,
		Reasoning: reasoning,
	}
}

// NewControlRecord builds a record for an operator control event.
func NewControlRecord(control string, src action.Source) Record {
	return Record{
		Event:   EventControl,
		Source:  src,
		Control: control,
	}
}

// Log is the append-only, timestamp-ordered activity trail. Appends are
// safe for concurrent use and independent of the device mutex; order is
// fixed by a monotonic sequence number assigned under the log's own
// lock.
type Log struct {
	mu      sync.RWMutex
	records []Record
	seq     uint64
	sink    io.Writer
	subs    map[string]chan Record

	now func() time.Time
}

// LogOption configures a Log.
type LogOption func(*Log)

// WithSink mirrors every record as a JSON line to w, typically a
// rotating file.
func WithSink(w io.Writer) LogOption {
	return func(l *Log) { l.sink = w }
}

// NewLog creates an empty activity log.
func NewLog(opts ...LogOption) *Log {
	l := &Log{
		subs: make(map[string]chan Record),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append assigns sequence, ID, and timestamp, stores the record, and
// returns the stored copy. Subscribers are notified without blocking;
// a slow subscriber drops records from its feed, never from the log.
func (l *Log) Append(r Record) Record {
	l.mu.Lock()
	l.seq++
	r.Seq = l.seq
	r.ID = id.NewRecordID()
	r.Timestamp = l.now()
	l.records = append(l.records, r)

	if l.sink != nil {
		if line, err := json.Marshal(r); err == nil {
			l.sink.Write(append(line, '\n'))
		}
	}

	for _, ch := range l.subs {
		select {
		case ch <- r:
		default:
		}
	}
	l.mu.Unlock()
	return r
}

// Len returns the number of records.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Recent returns up to n most recent records, oldest first.
func (l *Log) Recent(n int) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.records) {
		n = len(l.records)
	}
	out := make([]Record, n)
	copy(out, l.records[len(l.records)-n:])
	return out
}

// Subscribe registers a feed of future records. The returned ID releases
// the subscription via Unsubscribe.
func (l *Log) Subscribe() (string, <-chan Record) {
	ch := make(chan Record, 64)
	key := uuid.NewString()
	l.mu.Lock()
	l.subs[key] = ch
	l.mu.Unlock()
	return key, ch
}

// Unsubscribe removes a subscription and closes its channel.
func (l *Log) Unsubscribe(key string) {
	l.mu.Lock()
	if ch, ok := l.subs[key]; ok {
		delete(l.subs, key)
		close(ch)
	}
	l.mu.Unlock()
}
