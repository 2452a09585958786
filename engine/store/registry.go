package store

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is a keyed cache of long-lived store instances shared by every
// consumer that asks for the same key.
type Registry struct {
	mu      sync.Mutex
	entries map[string]any
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]any)}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// GetOrCreate returns the instance stored under key, creating it with factory
// on first use. factory runs under the registry lock and must not use r.
func GetOrCreate[T any](r *Registry, key string, factory func() T) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[key]; ok {
		typed, ok := existing.(T)
		if !ok {
			var zero T
			return zero, fmt.Errorf("registry key %q holds %T, not %T", key, existing, zero)
		}
		return typed, nil
	}
	created := factory()
	r.entries[key] = created
	return created, nil
}

// Lookup returns the instance stored under key without creating one.
func Lookup[T any](r *Registry, key string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	typed, ok := r.entries[key].(T)
	return typed, ok
}

// Put stores value under key, replacing any previous entry.
func (r *Registry) Put(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = value
}

func (r *Registry) Delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reset drops every entry.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]any)
}
