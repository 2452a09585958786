package store

import (
	"sync"

	"github.com/compozy/workflowkit/engine/core"
)

// Observable wraps mutable state so that every mutation is published to
// subscribers as an immutable snapshot.
type Observable[T any] struct {
	// notify is taken before mu is released so deliveries follow update order.
	notify    sync.Mutex
	mu        sync.RWMutex
	state     T
	listeners map[uint64]func(T)
	nextID    uint64
}

func NewObservable[T any](initial T) *Observable[T] {
	return &Observable[T]{
		state:     initial,
		listeners: make(map[uint64]func(T)),
	}
}

// Get returns a deep copy of the current state.
func (o *Observable[T]) Get() T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return core.DeepCopy(o.state)
}

// Read runs fn against the live state under a read lock. fn must not retain
// references into the state or call back into the observable.
func (o *Observable[T]) Read(fn func(*T)) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	fn(&o.state)
}

// Update applies fn atomically and notifies subscribers with the resulting
// snapshot. Subscribers see snapshots in update order and must not call
// Update on the same observable.
func (o *Observable[T]) Update(fn func(*T)) T {
	o.mu.Lock()
	fn(&o.state)
	snapshot := core.DeepCopy(o.state)
	listeners := make([]func(T), 0, len(o.listeners))
	for _, l := range o.listeners {
		listeners = append(listeners, l)
	}
	o.notify.Lock()
	o.mu.Unlock()
	defer o.notify.Unlock()
	for _, l := range listeners {
		l(snapshot)
	}
	return snapshot
}

// Subscribe registers fn for future updates and returns its unsubscribe func.
func (o *Observable[T]) Subscribe(fn func(T)) func() {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.listeners[id] = fn
	o.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.listeners, id)
			o.mu.Unlock()
		})
	}
}
