package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultRedisPrefix = "gosession"

const deleteValueScript = `
local existed = redis.call("DEL", KEYS[1])
if existed == 1 then
  redis.call("PUBLISH", KEYS[2], ARGV[1])
end
return existed
`

var deleteValueLua = redis.NewScript(deleteValueScript)

// RedisConfig configures a [RedisBackend].
type RedisConfig struct {
	// Prefix namespaces value keys as "<prefix>:v:<key>". Defaults to "gosession".
	Prefix string
	// TTL expires stored values. Zero keeps them until deleted.
	TTL time.Duration
}

// RedisBackend stores values in Redis and publishes each write on "<prefix>:changes" so that
// other processes sharing the same prefix can react to it.
type RedisBackend struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	origin string
	logger *zap.Logger
}

type redisChange struct {
	Origin  string `json:"origin"`
	Key     string `json:"key"`
	Deleted bool   `json:"deleted,omitempty"`
}

// NewRedisBackend returns a backend over client. Each backend gets a random origin id so that
// it can ignore notifications about its own writes.
func NewRedisBackend(client redis.UniversalClient, cfg RedisConfig, logger *zap.Logger) *RedisBackend {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBackend{
		redis:  client,
		prefix: prefix,
		ttl:    cfg.TTL,
		origin: uuid.NewString(),
		logger: logger.Named("vault.redis"),
	}
}

func (b *RedisBackend) key(key string) string {
	return b.prefix + ":v:" + key
}

func (b *RedisBackend) channel() string {
	return b.prefix + ":changes"
}

// Load implements [Backend].
func (b *RedisBackend) Load(ctx context.Context, key string) (string, error) {
	v, err := b.redis.Get(ctx, b.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return v, nil
}

// Save implements [Backend]. The value and its change notification are sent in one transaction.
func (b *RedisBackend) Save(ctx context.Context, key, value string) error {
	msg, err := b.changeMessage(key, false)
	if err != nil {
		return err
	}
	_, err = b.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, b.key(key), value, b.ttl)
		pipe.Publish(ctx, b.channel(), msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Delete implements [Backend]. A change is only announced when a value was actually removed.
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	msg, err := b.changeMessage(key, true)
	if err != nil {
		return err
	}
	if err := deleteValueLua.Run(ctx, b.redis, []string{b.key(key), b.channel()}, msg).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (b *RedisBackend) changeMessage(key string, deleted bool) (string, error) {
	data, err := json.Marshal(redisChange{Origin: b.origin, Key: key, Deleted: deleted})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Watch implements [Watcher]. It returns once the subscription is confirmed, so writes issued
// after Watch returns are observed.
func (b *RedisBackend) Watch(ctx context.Context) (<-chan Change, error) {
	sub := b.redis.Subscribe(ctx, b.channel())
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	out := make(chan Change, watchBuffer)
	msgs := sub.Channel()
	go func() {
		defer close(out)
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var c redisChange
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					b.logger.Debug("ignoring malformed change message", zap.Error(err))
					continue
				}
				if c.Origin == b.origin {
					continue
				}
				deliver(out, Change{Key: c.Key, Deleted: c.Deleted})
			}
		}
	}()
	return out, nil
}
