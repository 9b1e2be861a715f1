// Package eventbus implements the ObservationBus/EventLog from spec.md §3:
// every TaskEvent is appended to the durable EventStore, and any hooks
// dynamically registered by name for that event's type are invoked
// best-effort, logging but never propagating a hook failure into the main
// orchestration path. Grounded on goadesign-goa-ai's runtime/agent/hooks
// package (a typed Event interface published through a Bus to named
// subscribers), narrowed from that package's dozens of lifecycle event
// types down to the single task.TaskEvent/task.EventType spec.md §3
// defines.
package eventbus

import (
	"context"

	"go.uber.org/zap"

	"github.com/avery-holt/cascade/internal/logging"
	"github.com/avery-holt/cascade/internal/store"
	"github.com/avery-holt/cascade/internal/task"
)

// Hook is a best-effort subscriber invoked after an event of its registered
// type is durably appended. Hooks must not be relied on for correctness:
// spec.md §9 requires "all hook invocations are best-effort and must not
// fail the main path."
type Hook func(ctx context.Context, e *task.TaskEvent)

// Bus appends every published event to an EventStore and fans it out to
// hooks registered for that event's type.
type Bus struct {
	store store.EventStore
	hooks map[task.EventType]map[string]Hook
}

// New builds a Bus backed by s.
func New(s store.EventStore) *Bus {
	return &Bus{store: s, hooks: make(map[task.EventType]map[string]Hook)}
}

// Register attaches hook under name for eventType, replacing any hook
// previously registered under the same (eventType, name) pair.
func (b *Bus) Register(eventType task.EventType, name string, hook Hook) {
	if b.hooks[eventType] == nil {
		b.hooks[eventType] = make(map[string]Hook)
	}
	b.hooks[eventType][name] = hook
}

// Unregister removes the hook registered under (eventType, name), a no-op
// if none was registered.
func (b *Bus) Unregister(eventType task.EventType, name string) {
	delete(b.hooks[eventType], name)
}

// Publish persists e to the EventStore, then invokes every hook registered
// for e.Type, recovering from and logging any hook panic or nothing more:
// Hook has no error return, so misbehavior can only surface as a log line,
// never a failure the caller has to handle.
func (b *Bus) Publish(ctx context.Context, e *task.TaskEvent) error {
	if err := b.store.CreateTaskEvent(ctx, e); err != nil {
		return err
	}

	log := logging.FromContext(ctx).Sugar().Named("eventbus")
	for name, hook := range b.hooks[e.Type] {
		runHook(ctx, log, name, hook, e)
	}
	return nil
}

func runHook(ctx context.Context, log *zap.SugaredLogger, name string, hook Hook, e *task.TaskEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("event hook panicked", "hook", name, "event_type", e.Type, "recovered", r)
		}
	}()
	hook(ctx, e)
}
