// Package joblock provides the mutual exclusion that keeps the planner, pill
// ticker and delivery worker single-flight across engine replicas.
package joblock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLocked is returned by TryLock when another holder owns the lock.
var ErrLocked = errors.New("joblock: lock held elsewhere")

// Unlock releases a lock obtained from TryLock. It is safe to call once.
type Unlock func(ctx context.Context) error

// Locker hands out named, expiring locks.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (Unlock, error)
}

// Local is an in-process Locker for single-replica deployments and tests.
type Local struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocal() *Local {
	return &Local{held: make(map[string]time.Time), now: time.Now}
}

func (l *Local) TryLock(_ context.Context, name string, ttl time.Duration) (Unlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if exp, ok := l.held[name]; ok && now.Before(exp) {
		return nil, ErrLocked
	}
	exp := now.Add(ttl)
	l.held[name] = exp

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		// A holder whose lease lapsed must not release a successor's lock.
		if cur, ok := l.held[name]; ok && cur.Equal(exp) {
			delete(l.held, name)
		}
		return nil
	}, nil
}
