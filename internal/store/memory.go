// Package store implements the synchronized collections: a document backend plus a
// change notifier, exposed as read, write and subscribe operations.
package store

import (
	"context"
	"sync"

	"schoolbus/internal/repository"
)

// Document is a record that can be keyed and deep-copied.
type Document[T any] interface {
	DocumentID() string
	Clone() T
}

// Documents is the backend a Collection reads from and writes to.
type Documents[T any] interface {
	GetByID(ctx context.Context, id string) (T, error)
	GetAll(ctx context.Context) ([]T, error)
	Update(ctx context.Context, doc T) error
}

// MemoryDocuments keeps records in process memory in insertion order.
// Every read and write copies, so callers never share state with the store.
type MemoryDocuments[T Document[T]] struct {
	mu    sync.RWMutex
	order []string
	docs  map[string]T

	readErr  error
	writeErr error
}

// NewMemoryDocuments creates a memory backend seeded with docs.
func NewMemoryDocuments[T Document[T]](docs ...T) *MemoryDocuments[T] {
	m := &MemoryDocuments[T]{docs: make(map[string]T)}
	for _, d := range docs {
		m.put(d)
	}
	return m
}

func (m *MemoryDocuments[T]) put(doc T) {
	id := doc.DocumentID()
	if _, ok := m.docs[id]; !ok {
		m.order = append(m.order, id)
	}
	m.docs[id] = doc.Clone()
}

// GetByID returns a copy of the record or repository.ErrNotFound.
func (m *MemoryDocuments[T]) GetByID(_ context.Context, id string) (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var zero T
	if m.readErr != nil {
		return zero, m.readErr
	}
	doc, ok := m.docs[id]
	if !ok {
		return zero, repository.ErrNotFound
	}
	return doc.Clone(), nil
}

// GetAll returns copies of every record.
func (m *MemoryDocuments[T]) GetAll(_ context.Context) ([]T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.readErr != nil {
		return nil, m.readErr
	}
	out := make([]T, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.docs[id].Clone())
	}
	return out, nil
}

// Update replaces the record with a copy of doc.
func (m *MemoryDocuments[T]) Update(_ context.Context, doc T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return m.writeErr
	}
	m.put(doc)
	return nil
}

// FailReads makes subsequent reads return err; nil restores normal behavior.
func (m *MemoryDocuments[T]) FailReads(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// FailWrites makes subsequent writes return err; nil restores normal behavior.
func (m *MemoryDocuments[T]) FailWrites(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}
