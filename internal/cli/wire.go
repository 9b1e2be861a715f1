package cli

import (
	"context"
	"sync"

	"github.com/avery-holt/cascade/internal/config"
	"github.com/avery-holt/cascade/internal/eventbus"
	memstore "github.com/avery-holt/cascade/internal/store/memory"
)

// inprocLocker is a single-mutex store.Locker, the same inprocLocker shape
// internal/batch/batch_test.go and internal/testutil.Locker use, kept here
// rather than imported from testutil since this one runs in the real
// binary, not a test.
type inprocLocker struct {
	mu sync.Mutex
}

func (l *inprocLocker) Lock(ctx context.Context, name string) (func(), error) {
	l.mu.Lock()
	return func() { l.mu.Unlock() }, nil
}

// openStore builds the persistence layer a CLI subcommand needs. Per
// DESIGN.md's "internal/store (+ memory, redislock, postgres)" entry,
// store/postgres only implements TaskStore's CRUD and EventStore's
// create/get today -- not the full store.Store the scheduler and
// orchestrator depend on -- so every subcommand here runs against the
// complete in-memory reference implementation. Wiring store/postgres in
// once it implements Batch/Memory/ModelConfig is tracked as future work.
func openStore(cfg *config.Config) (*memstore.Store, *eventbus.Bus) {
	s := memstore.New()
	bus := eventbus.New(s)
	return s, bus
}
