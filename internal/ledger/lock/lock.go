// Package lock provides per-owner single-flight guards for sync runs.
//
// The in-memory Locker covers one process. The Redis Locker extends the
// guard across processes, e.g. the CLI and a running daemon sharing a device.
package lock

import (
	"context"
	"errors"
	gosync "sync"
)

// ErrLocked is returned when another holder owns the lock.
var ErrLocked = errors.New("lock is held by another sync")

// Release gives a lock back. It is safe to call more than once.
type Release func(ctx context.Context) error

// Locker hands out exclusive per-owner locks. Acquire never waits: it
// fails with ErrLocked if the owner is already locked.
type Locker interface {
	Acquire(ctx context.Context, owner string) (Release, error)
}

// Memory is an in-process Locker.
type Memory struct {
	mu   gosync.Mutex
	held map[string]bool
}

// NewMemory creates an empty in-process Locker.
func NewMemory() *Memory {
	return &Memory{held: make(map[string]bool)}
}

// Acquire implements Locker.
func (m *Memory) Acquire(ctx context.Context, owner string) (Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[owner] {
		return nil, ErrLocked
	}
	m.held[owner] = true

	var once gosync.Once
	return func(context.Context) error {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, owner)
			m.mu.Unlock()
		})
		return nil
	}, nil
}
