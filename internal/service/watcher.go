package service

import "sync"

// Change is one observed difference between two snapshots of the same key.
type Change[V comparable] struct {
	Key      string
	Previous V
	Current  V
}

// DiffWatcher remembers the last observed value per key and reports which keys
// changed since the previous snapshot. Keys seen for the first time never report.
type DiffWatcher[T any, V comparable] struct {
	key   func(T) string
	value func(T) V

	mu    sync.Mutex
	prior map[string]V
}

// NewDiffWatcher creates a watcher tracking value(item) per key(item).
func NewDiffWatcher[T any, V comparable](key func(T) string, value func(T) V) *DiffWatcher[T, V] {
	return &DiffWatcher[T, V]{key: key, value: value, prior: make(map[string]V)}
}

// Observe compares items against the previous snapshot and returns the changes.
// Keys absent from items are forgotten.
func (w *DiffWatcher[T, V]) Observe(items []T) []Change[V] {
	w.mu.Lock()
	defer w.mu.Unlock()

	var changes []Change[V]
	next := make(map[string]V, len(items))
	for _, item := range items {
		k := w.key(item)
		v := w.value(item)
		if prev, ok := w.prior[k]; ok && prev != v {
			changes = append(changes, Change[V]{Key: k, Previous: prev, Current: v})
		}
		next[k] = v
	}
	w.prior = next
	return changes
}
