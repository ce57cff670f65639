package locks

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker serializes callers inside a single process.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
	wait  time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker returns a process-local Locker bounded by wait.
func NewMemoryLocker(wait time.Duration) *MemoryLocker {
	return &MemoryLocker{slots: map[string]*slot{}, wait: waitOrDefault(wait)}
}

// Acquire takes every id in ascending order, giving up after the wait window.
func (l *MemoryLocker) Acquire(ctx context.Context, scope string, ids ...string) (Release, error) {
	keys := orderedKeys(ids)
	deadline := time.NewTimer(l.wait)
	defer deadline.Stop()

	held := make([]func(), 0, len(keys))
	for _, id := range keys {
		key := scope + ":" + id
		s := l.ref(key)
		select {
		case s.ch <- struct{}{}:
			held = append(held, func() {
				<-s.ch
				l.unref(key)
			})
		case <-deadline.C:
			l.unref(key)
			releaseAll(held)()
			return nil, ErrTimeout(scope)
		case <-ctx.Done():
			l.unref(key)
			releaseAll(held)()
			return nil, ctx.Err()
		}
	}
	return releaseAll(held), nil
}

func (l *MemoryLocker) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *MemoryLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		return
	}
	s.refs--
	if s.refs <= 0 {
		delete(l.slots, key)
	}
}
