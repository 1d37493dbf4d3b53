package store

import (
	"context"
	"log/slog"

	"schoolbus/internal/domain"
	"schoolbus/internal/logging"
	"schoolbus/internal/repository"
)

// Collection joins a document backend with a notifier: every successful Update
// signals subscribers, which then receive a fresh full snapshot.
type Collection[T any] struct {
	name     repository.Collection
	docs     Documents[T]
	notifier Notifier
	logger   *slog.Logger
}

// Compile-time checks for the concrete collections used by the service.
var (
	_ repository.RiderStore    = (*Collection[*domain.Rider])(nil)
	_ repository.VehicleStore  = (*Collection[*domain.Vehicle])(nil)
	_ repository.GuardianStore = (*Collection[*domain.Guardian])(nil)
)

// NewCollection creates a synchronized collection.
func NewCollection[T any](name repository.Collection, docs Documents[T], notifier Notifier, logger *slog.Logger) *Collection[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collection[T]{
		name:     name,
		docs:     docs,
		notifier: notifier,
		logger:   logger.With(slog.String("collection", string(name))),
	}
}

// GetByID reads one record.
func (c *Collection[T]) GetByID(ctx context.Context, id string) (T, error) {
	return c.docs.GetByID(ctx, id)
}

// GetAll reads every record.
func (c *Collection[T]) GetAll(ctx context.Context) ([]T, error) {
	return c.docs.GetAll(ctx)
}

// Update writes the full record and signals subscribers.
// A failed signal is logged only; the write itself already succeeded.
func (c *Collection[T]) Update(ctx context.Context, doc T) error {
	if err := c.docs.Update(ctx, doc); err != nil {
		return err
	}
	if err := c.notifier.Notify(ctx, c.name); err != nil {
		logging.LogError(c.logger, "notify subscribers", err)
	}
	return nil
}

// Subscribe streams a full snapshot now and after every change until ctx is done.
// The returned channel is closed when the subscription ends.
func (c *Collection[T]) Subscribe(ctx context.Context) (<-chan repository.Snapshot[T], error) {
	changes, err := c.notifier.Listen(ctx, c.name)
	if err != nil {
		return nil, err
	}

	out := make(chan repository.Snapshot[T], 1)
	go func() {
		defer close(out)
		if !c.emit(ctx, out) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				if !c.emit(ctx, out) {
					return
				}
			}
		}
	}()
	return out, nil
}

func (c *Collection[T]) emit(ctx context.Context, out chan<- repository.Snapshot[T]) bool {
	items, err := c.docs.GetAll(ctx)
	if err != nil {
		c.logger.Warn("snapshot load failed", slog.String("error", err.Error()))
	}
	select {
	case out <- repository.Snapshot[T]{Items: items, Err: err}:
		return true
	case <-ctx.Done():
		return false
	}
}
