package store

import (
	"context"
	"sync"

	"schoolbus/internal/repository"
)

// Notifier announces that a collection changed. Listeners reload the full
// collection on every signal, so signals may be coalesced.
type Notifier interface {
	Notify(ctx context.Context, c repository.Collection) error
	Listen(ctx context.Context, c repository.Collection) (<-chan struct{}, error)
}

// LocalNotifier delivers change signals within one process.
type LocalNotifier struct {
	mu        sync.Mutex
	listeners map[repository.Collection]map[chan struct{}]struct{}
}

var _ Notifier = (*LocalNotifier)(nil)

// NewLocalNotifier creates an in-process notifier.
func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{listeners: make(map[repository.Collection]map[chan struct{}]struct{})}
}

// Notify signals every listener of c without blocking.
func (n *LocalNotifier) Notify(_ context.Context, c repository.Collection) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.listeners[c] {
		select {
		case ch <- struct{}{}:
		default: // a signal is already pending
		}
	}
	return nil
}

// Listen returns a channel signalled after every change to c. It is closed once ctx is done.
func (n *LocalNotifier) Listen(ctx context.Context, c repository.Collection) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	if n.listeners[c] == nil {
		n.listeners[c] = make(map[chan struct{}]struct{})
	}
	n.listeners[c][ch] = struct{}{}
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		delete(n.listeners[c], ch)
		close(ch)
		n.mu.Unlock()
	}()
	return ch, nil
}
