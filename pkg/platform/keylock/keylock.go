// Package keylock provides mutual exclusion scoped to a key.
//
// Unlike a fixed array of hash shards, two distinct keys never share a lock,
// so work on different keys is never serialized. Entries are reference
// counted and removed once no holder or waiter remains.
package keylock

import (
	"context"
	"sync"
)

// Mutex is a set of exclusive locks indexed by a comparable key.
// The zero value is ready to use.
type Mutex[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

// Lock acquires the lock for key, waiting until it is free or ctx is done.
// On success the returned function releases the lock; it must be called
// exactly once.
func (m *Mutex[K]) Lock(ctx context.Context, key K) (func(), error) {
	e := m.acquire(key)
	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, e)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			m.release(key, e)
		})
	}, nil
}

// Len reports how many keys currently have holders or waiters.
func (m *Mutex[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *Mutex[K]) acquire(key K) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks == nil {
		m.locks = make(map[K]*entry)
	}
	e, ok := m.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	return e
}

func (m *Mutex[K]) release(key K, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}
