// Package lock provides the mutual exclusion used by slot allocation.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotAcquired is returned when a lock could not be taken before the wait
// budget ran out. Callers treat it as transient.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker grants exclusive rights over a key until release is called.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// SlotKey names the allocation key of one slot instant.
func SlotKey(serviceID int64, at time.Time) string {
	return fmt.Sprintf("slot:%d:%d", serviceID, at.Unix())
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex is an in-process Locker. Waiters block until the key is free
// or their context ends.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

// Acquire blocks until key is held by the caller.
func (k *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.unref(key, l)
		return nil, fmt.Errorf("%w: %v", ErrNotAcquired, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			k.unref(key, l)
		})
	}, nil
}

func (k *KeyedMutex) unref(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// Len returns the number of keys currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// ServiceGuard serializes schedule replacement against allocation on the
// same service: allocations share the read side, a schedule save takes the
// write side.
type ServiceGuard struct {
	mu    sync.Mutex
	locks map[int64]*sync.RWMutex
}

// NewServiceGuard creates an empty guard.
func NewServiceGuard() *ServiceGuard {
	return &ServiceGuard{locks: make(map[int64]*sync.RWMutex)}
}

func (g *ServiceGuard) get(serviceID int64) *sync.RWMutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[serviceID]
	if !ok {
		l = &sync.RWMutex{}
		g.locks[serviceID] = l
	}
	return l
}

// RLock takes the shared side for serviceID.
func (g *ServiceGuard) RLock(serviceID int64) func() {
	l := g.get(serviceID)
	l.RLock()
	return l.RUnlock
}

// Lock takes the exclusive side for serviceID.
func (g *ServiceGuard) Lock(serviceID int64) func() {
	l := g.get(serviceID)
	l.Lock()
	return l.Unlock
}
