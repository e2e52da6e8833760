// Package id provides ULID generation for the backend. ULIDs are
// lexicographically sortable, so activity records and tasks order by
// creation time without a secondary key, and the short prefixes keep
// logs readable.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RecordID identifies an activity log record.
type RecordID string

// TaskID identifies an autonomy task.
type TaskID string

// SpanID identifies a trace span.
type SpanID string

const (
	recordPrefix = "act"
	taskPrefix   = "task"
	spanPrefix   = "span"
)

// Generator produces ULIDs from a guarded entropy source.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the shared generator backed by crypto/rand.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = &Generator{entropy: rand.Reader}
	})
	return defaultGenerator
}

// NewGenerator creates a generator with a custom entropy source, useful
// for deterministic tests.
func NewGenerator(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

func (g *Generator) withPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewRecordID generates an activity record ID.
func NewRecordID() RecordID {
	return RecordID(Default().withPrefix(recordPrefix))
}

// NewTaskID generates an autonomy task ID.
func NewTaskID() TaskID {
	return TaskID(Default().withPrefix(taskPrefix))
}

// NewSpanID generates a trace span ID.
func NewSpanID() SpanID {
	return SpanID(Default().withPrefix(spanPrefix))
}
