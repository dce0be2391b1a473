// Package registry provides a small generic name-to-item registry used by
// the tool catalog and other lookup tables.
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the generic contract for a named item store.
type Registry[T any] interface {
	Register(name string, item T) error
	Get(name string) (T, bool)
	Names() []string
	List() []T
	Count() int
}

// Base is a thread-safe map-backed Registry implementation.
type Base[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

// NewBase creates an empty Base registry.
func NewBase[T any]() *Base[T] {
	return &Base[T]{
		items: make(map[string]T),
	}
}

// Register adds an item under a unique name.
func (r *Base[T]) Register(name string, item T) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[name]; exists {
		return fmt.Errorf("item with name '%s' already registered", name)
	}

	r.items[name] = item
	return nil
}

// Get returns the item registered under name.
func (r *Base[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, exists := r.items[name]
	return item, exists
}

// Names returns all registered names in lexical order.
func (r *Base[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all items ordered by their registered name, so that callers
// iterating the registry observe a stable order.
func (r *Base[T]) List() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)

	items := make([]T, 0, len(names))
	for _, name := range names {
		items = append(items, r.items[name])
	}
	return items
}

// Count returns the number of registered items.
func (r *Base[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.items)
}
