package eventbus_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/avery-holt/cascade/internal/eventbus"
	memstore "github.com/avery-holt/cascade/internal/store/memory"
	"github.com/avery-holt/cascade/internal/task"
)

func TestPublishAppendsToEventStore(t *testing.T) {
	s := memstore.New()
	bus := eventbus.New(s)
	taskID := uuid.New()

	require.NoError(t, bus.Publish(context.Background(), task.NewEvent(taskID, task.EventPlanned)))

	events, err := s.GetTaskEvents(context.Background(), taskID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, task.EventPlanned, events[0].Type)
}

func TestPublishInvokesRegisteredHook(t *testing.T) {
	s := memstore.New()
	bus := eventbus.New(s)
	taskID := uuid.New()

	var seen task.EventType
	bus.Register(task.EventCoded, "recorder", func(ctx context.Context, e *task.TaskEvent) {
		seen = e.Type
	})

	require.NoError(t, bus.Publish(context.Background(), task.NewEvent(taskID, task.EventCoded)))
	require.Equal(t, task.EventCoded, seen)
}

func TestPublishSurvivesPanickingHook(t *testing.T) {
	s := memstore.New()
	bus := eventbus.New(s)
	taskID := uuid.New()

	bus.Register(task.EventFailed, "broken", func(ctx context.Context, e *task.TaskEvent) {
		panic("boom")
	})

	err := bus.Publish(context.Background(), task.NewEvent(taskID, task.EventFailed))
	require.NoError(t, err)

	events, err := s.GetTaskEvents(context.Background(), taskID)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestUnregisterStopsFutureInvocations(t *testing.T) {
	s := memstore.New()
	bus := eventbus.New(s)
	taskID := uuid.New()

	calls := 0
	bus.Register(task.EventTested, "counter", func(ctx context.Context, e *task.TaskEvent) {
		calls++
	})
	require.NoError(t, bus.Publish(context.Background(), task.NewEvent(taskID, task.EventTested)))
	bus.Unregister(task.EventTested, "counter")
	require.NoError(t, bus.Publish(context.Background(), task.NewEvent(taskID, task.EventTested)))

	require.Equal(t, 1, calls)
}
