package blacklist

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "blacklist:"

// RedisStore keeps revoked-token entries in redis with native TTL expiry.
// Useful when several server processes share revocation state with lower
// latency than the relational store.
type RedisStore struct {
	Client *redis.Client
}

func (s *RedisStore) Insert(ctx context.Context, digest string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	// SET is idempotent, duplicate inserts overwrite harmlessly.
	return s.Client.Set(ctx, redisKeyPrefix+digest, 1, ttl).Err()
}

func (s *RedisStore) Lookup(ctx context.Context, digest string) (bool, time.Time, error) {
	ttl, err := s.Client.TTL(ctx, redisKeyPrefix+digest).Result()
	if err != nil {
		return false, time.Time{}, err
	}
	if ttl <= 0 {
		// -2 missing key, -1 no expiry (never written by us).
		return false, time.Time{}, nil
	}
	return true, time.Now().Add(ttl), nil
}

// Cleanup is a no-op: redis expires entries itself.
func (s *RedisStore) Cleanup(ctx context.Context) (int64, error) {
	return 0, nil
}
