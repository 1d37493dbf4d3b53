package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"schoolbus/internal/repository"
)

const changeChannelPrefix = "sync:"

// Notifier fans out collection change signals to every process over Redis Pub/Sub.
type Notifier struct {
	client *redis.Client
}

// NewNotifier creates a new Notifier.
func NewNotifier(client *redis.Client) *Notifier {
	return &Notifier{client: client}
}

func changeChannel(c repository.Collection) string {
	return changeChannelPrefix + string(c)
}

// Notify publishes a change signal for c.
func (n *Notifier) Notify(ctx context.Context, c repository.Collection) error {
	return n.client.Publish(ctx, changeChannel(c), "changed").Err()
}

// Listen subscribes to change signals for c. Signals that arrive while one is
// still pending are coalesced. The channel is closed once ctx is done.
func (n *Notifier) Listen(ctx context.Context, c repository.Collection) (<-chan struct{}, error) {
	sub := n.client.Subscribe(ctx, changeChannel(c))
	// Wait for the subscription confirmation so no change is missed after return.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan struct{}, 1)
	msgs := sub.Channel()
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}
