package integration

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// entityLocks serializes reconciliation per entity id. Entries are reference
// counted and dropped when the last holder or waiter leaves.
type entityLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*entityLock
}

type entityLock struct {
	ch   chan struct{} // holds one token while locked
	refs int
}

func newEntityLocks() *entityLocks {
	return &entityLocks{locks: make(map[uuid.UUID]*entityLock)}
}

// lock blocks until id is free or ctx is done. The returned func unlocks.
func (l *entityLocks) lock(ctx context.Context, id uuid.UUID) (func(), error) {
	l.mu.Lock()
	el, ok := l.locks[id]
	if !ok {
		el = &entityLock{ch: make(chan struct{}, 1)}
		l.locks[id] = el
	}
	el.refs++
	l.mu.Unlock()

	select {
	case el.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(id, el)
		return nil, ctx.Err()
	}

	return func() {
		<-el.ch
		l.release(id, el)
	}, nil
}

func (l *entityLocks) release(id uuid.UUID, el *entityLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	el.refs--
	if el.refs == 0 {
		delete(l.locks, id)
	}
}

func (l *entityLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
