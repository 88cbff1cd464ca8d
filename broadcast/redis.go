package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the Redis pub/sub channel used when none is configured.
const DefaultChannel = "gosession:broadcast"

// Redis is a bus over a Redis pub/sub channel.
type Redis struct {
	redis   redis.UniversalClient
	channel string
	logger  *zap.Logger
}

// NewRedis returns a bus publishing on channel. An empty channel selects [DefaultChannel].
func NewRedis(client redis.UniversalClient, channel string, logger *zap.Logger) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{redis: client, channel: channel, logger: logger.Named("broadcast")}
}

// Publish implements [Bus].
func (r *Redis) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := r.redis.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("broadcast: publish: %w", err)
	}
	return nil
}

// Subscribe implements [Bus]. It returns once the subscription is confirmed.
func (r *Redis) Subscribe(ctx context.Context) (<-chan Message, error) {
	sub := r.redis.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("broadcast: subscribe: %w", err)
	}

	out := make(chan Message, subscriberBuffer)
	in := sub.Channel()
	go func() {
		defer close(out)
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-in:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil || !msg.Kind.Valid() {
					r.logger.Debug("ignoring malformed broadcast", zap.String("payload", raw.Payload))
					continue
				}
				if !offer(out, msg) {
					r.logger.Debug("subscriber full, dropping broadcast", zap.String("kind", string(msg.Kind)))
				}
			}
		}
	}()
	return out, nil
}
