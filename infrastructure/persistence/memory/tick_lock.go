package memory

import (
	"context"
	"sync"

	"particle-universe/application/ports"
	pkgerrors "particle-universe/pkg/errors"
)

// TickLock is a process-local ports.TickLock, for single-instance deployments
type TickLock struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewTickLock creates an unheld lock set
func NewTickLock() *TickLock {
	return &TickLock{held: make(map[string]bool)}
}

// Acquire takes the universe's lock or reports ConcurrentTickRejected
func (l *TickLock) Acquire(ctx context.Context, universeID string) (ports.ReleaseFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[universeID] {
		return nil, pkgerrors.NewConcurrentTickError(universeID)
	}
	l.held[universeID] = true

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, universeID)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
