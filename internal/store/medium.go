package store

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/inboxvault/inboxvault/pkg/config"
	appErrors "github.com/inboxvault/inboxvault/pkg/errors"
)

// Notification signals that the shared collection changed. It carries
// no payload: subscribers re-read the collection instead of trusting a
// possibly stale delta.
type Notification struct{}

// Medium is the shared persistence surface the archive lives in. Other
// processes may write to the same key; Subscribe delivers a
// notification for every write, including this process's own.
type Medium interface {
	// Get returns the stored collection payload, nil when none exists.
	Get(ctx context.Context) ([]byte, error)
	// Set replaces the stored collection payload and notifies
	// subscribers.
	Set(ctx context.Context, payload []byte) error
	// Subscribe streams change notifications until ctx is cancelled.
	Subscribe(ctx context.Context) (<-chan Notification, error)
}

// RedisMedium stores the collection as a single key and broadcasts
// changes over a pub/sub channel.
type RedisMedium struct {
	client  *redis.Client
	key     string
	channel string
	logger  *zap.Logger
}

func NewRedisMedium(client *redis.Client, cfg config.VaultConfig, logger *zap.Logger) *RedisMedium {
	return &RedisMedium{
		client:  client,
		key:     cfg.StorageKey,
		channel: cfg.ChangeChannel,
		logger:  logger,
	}
}

func (m *RedisMedium) Get(ctx context.Context) ([]byte, error) {
	raw, err := m.client.Get(ctx, m.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "read archive collection")
	}
	return raw, nil
}

func (m *RedisMedium) Set(ctx context.Context, payload []byte) error {
	if err := m.client.Set(ctx, m.key, payload, 0).Err(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "write archive collection")
	}
	// Publish after the write so subscribers re-read fresh state. The
	// write's own notification comes back too; the guard filters it.
	if err := m.client.Publish(ctx, m.channel, "changed").Err(); err != nil {
		m.logger.Warn("publish change notification", zap.Error(err))
	}
	return nil
}

func (m *RedisMedium) Subscribe(ctx context.Context) (<-chan Notification, error) {
	sub := m.client.Subscribe(ctx, m.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "subscribe to archive changes")
	}

	out := make(chan Notification, 1)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-in:
				if !ok {
					return
				}
				// Coalesce: one pending notification is enough, the
				// reader re-reads the whole collection anyway.
				select {
				case out <- Notification{}:
				default:
				}
			}
		}
	}()
	return out, nil
}
