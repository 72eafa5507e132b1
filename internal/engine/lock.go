package engine

import (
	"sync"

	"github.com/kode4food/braid/pkg/api"
)

type (
	// instanceLocks serializes replay passes per instance
	instanceLocks struct {
		locks map[api.InstanceID]*instanceLock
		mu    sync.Mutex
	}

	instanceLock struct {
		mu   sync.Mutex
		refs int
	}
)

func newInstanceLocks() *instanceLocks {
	return &instanceLocks{
		locks: map[api.InstanceID]*instanceLock{},
	}
}

// lock blocks until the caller holds the instance, returning the release
// function
func (l *instanceLocks) lock(id api.InstanceID) func() {
	l.mu.Lock()
	il, ok := l.locks[id]
	if !ok {
		il = &instanceLock{}
		l.locks[id] = il
	}
	il.refs++
	l.mu.Unlock()

	il.mu.Lock()
	return func() {
		il.mu.Unlock()
		l.mu.Lock()
		if il.refs--; il.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
