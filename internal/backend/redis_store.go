package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/routegw/internal/config"
	"github.com/vyrodovalexey/routegw/internal/observability"
)

// redisExpiryGrace keeps a session readable in Redis slightly past its
// expiry so the expiry timer can still find and release it.
const redisExpiryGrace = 5 * time.Second

// RedisStore keeps sticky sessions in Redis so several gateway replicas
// share affinity. Values are JSON encoded.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger observability.Logger
	now    func() time.Time
}

// NewRedisStore connects to the Redis server described by cfg and verifies
// the connection.
func NewRedisStore(ctx context.Context, cfg *config.SessionStoreConfig, logger observability.Logger) (*RedisStore, error) {
	if cfg == nil || cfg.Address == "" {
		return nil, fmt.Errorf("redis session store: address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis session store: ping %s: %w", cfg.Address, err)
	}

	return NewRedisStoreFromClient(client, cfg.KeyPrefix, logger), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string, logger observability.Logger) *RedisStore {
	if prefix == "" {
		prefix = config.DefaultSessionKeyPrefix
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger,
		now:    time.Now,
	}
}

func (s *RedisStore) resolveKey(key string) string {
	return s.prefix + key
}

// Get returns the session stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) (StickySession, bool, error) {
	val, err := s.client.Get(ctx, s.resolveKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return StickySession{}, false, nil
	}
	if err != nil {
		s.logger.Error("redis session get failed",
			observability.String("key", key),
			observability.Error(err))
		return StickySession{}, false, err
	}

	var session StickySession
	if err := json.Unmarshal(val, &session); err != nil {
		return StickySession{}, false, fmt.Errorf("decode sticky session %s: %w", key, err)
	}
	return session, true, nil
}

// Set stores session with a Redis TTL tracking its expiry.
func (s *RedisStore) Set(ctx context.Context, session StickySession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode sticky session %s: %w", session.Key, err)
	}

	ttl := session.Expiry.Sub(s.now()) + redisExpiryGrace
	if ttl < redisExpiryGrace {
		ttl = redisExpiryGrace
	}

	if err := s.client.Set(ctx, s.resolveKey(session.Key), data, ttl).Err(); err != nil {
		s.logger.Error("redis session set failed",
			observability.String("key", session.Key),
			observability.Error(err))
		return err
	}
	return nil
}

// Delete removes the session stored under key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.resolveKey(key)).Err(); err != nil {
		s.logger.Error("redis session delete failed",
			observability.String("key", key),
			observability.Error(err))
		return err
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
