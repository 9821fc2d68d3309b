package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher is the subset of the Redis client used to publish changes.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher broadcasts changes to every instance over Redis pub/sub.
// Failures are logged and dropped.
type RedisPublisher struct {
	client  Publisher
	channel string
	logger  *slog.Logger
}

func NewRedisPublisher(client Publisher, channel string, logger *slog.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel, logger: logger}
}

func (p *RedisPublisher) Notify(ctx context.Context, c Change) {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	payload, err := json.Marshal(c)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to encode change", "topic", c.Topic, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.WarnContext(ctx, "failed to publish change",
			"topic", c.Topic,
			"channel", p.channel,
			"error", err,
		)
	}
}

// RedisRelay forwards changes published on the Redis channel to a local
// Notifier, typically the process's Broker.
type RedisRelay struct {
	client  *redis.Client
	channel string
	target  Notifier
	logger  *slog.Logger
}

func NewRedisRelay(client *redis.Client, channel string, target Notifier, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, target: target, logger: logger}
}

// Run subscribes and relays until ctx is cancelled. It returns once the
// subscription is confirmed; relaying continues in the background.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.InfoContext(ctx, "change relay subscribed", "channel", r.channel)

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var c Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					r.logger.WarnContext(ctx, "dropping malformed change", "error", err)
					continue
				}
				r.target.Notify(ctx, c)
			}
		}
	}()
	return nil
}
