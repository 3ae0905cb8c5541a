// Package lock serializes writers on one aggregate key. The local locker covers a
// single process; the redis locker covers a fleet sharing one database.
package lock

import (
	"context"
	"sync"

	dErrors "donorlink/pkg/domain-errors"
)

// Unlock releases a held lock. Calling it more than once is a no-op.
type Unlock func()

// Local is an in-process keyed mutex. Idle keys are dropped.
type Local struct {
	mu   sync.Mutex
	keys map[string]*entry
}

type entry struct {
	held chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{keys: make(map[string]*entry)}
}

// Lock blocks until key is free or ctx is done.
func (l *Local) Lock(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	e, ok := l.keys[key]
	if !ok {
		e = &entry{held: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.held <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeUnavailable, "timed out waiting for lock")
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.held
			l.release(key, e)
		})
	}, nil
}

func (l *Local) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
}

// Len reports the number of keys held or awaited.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
