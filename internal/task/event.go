package task

import (
	"time"

	"github.com/google/uuid"
)

// TaskEvent is an append-only record of something that happened to a task
// (spec.md §3).
type TaskEvent struct {
	ID        uuid.UUID
	TaskID    uuid.UUID
	Type      EventType
	Agent     string
	InputSummary  string
	OutputSummary string
	Tokens    int
	Duration  time.Duration
	Metadata  map[string]string
	Timestamp time.Time
}

// NewEvent builds a TaskEvent for taskID at the current time. Event log
// appends for a task are ordered by (task id, monotonic timestamp) per the
// concurrency model (spec.md §5); callers append events through a single
// EventStore connection per task so this ordering is preserved.
func NewEvent(taskID uuid.UUID, typ EventType) *TaskEvent {
	return &TaskEvent{
		ID:        uuid.New(),
		TaskID:    taskID,
		Type:      typ,
		Metadata:  make(map[string]string),
		Timestamp: time.Now(),
	}
}

// WithAgent sets the originating agent tag and returns the event for chaining.
func (e *TaskEvent) WithAgent(agent string) *TaskEvent {
	e.Agent = agent
	return e
}

// WithSummaries sets the input/output summaries and returns the event.
func (e *TaskEvent) WithSummaries(input, output string) *TaskEvent {
	e.InputSummary = input
	e.OutputSummary = output
	return e
}

// WithUsage sets token count and duration, returning the event.
func (e *TaskEvent) WithUsage(tokens int, d time.Duration) *TaskEvent {
	e.Tokens = tokens
	e.Duration = d
	return e
}

// WithMeta sets a metadata key and returns the event.
func (e *TaskEvent) WithMeta(key, value string) *TaskEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}
