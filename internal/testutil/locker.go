package testutil

import (
	"context"
	"sync"
)

// Locker is an in-process store.Locker fake, following the inprocLocker
// pattern from internal/batch/batch_test.go: a single mutex stands in for
// the per-repo Redis lock spec.md §5 describes.
type Locker struct {
	mu sync.Mutex
}

// NewLocker builds an empty Locker.
func NewLocker() *Locker {
	return &Locker{}
}

func (l *Locker) Lock(ctx context.Context, name string) (func(), error) {
	l.mu.Lock()
	return func() { l.mu.Unlock() }, nil
}
