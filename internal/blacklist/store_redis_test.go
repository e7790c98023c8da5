package blacklist

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return &RedisStore{Client: client}, mr
}

func TestRedisStoreInsertLookup(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)

	require.NoError(t, s.Insert(ctx, "digest-1", expiresAt))

	found, exp, err := s.Lookup(ctx, "digest-1")
	require.NoError(t, err)
	require.True(t, found)
	require.WithinDuration(t, expiresAt, exp, 2*time.Second)

	found, _, err = s.Lookup(ctx, "unknown")
	require.NoError(t, err)
	require.False(t, found)
}

func TestRedisStoreEntriesExpire(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, "digest-1", time.Now().Add(time.Minute)))
	mr.FastForward(2 * time.Minute)

	found, _, err := s.Lookup(ctx, "digest-1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestRedisStoreSkipsAlreadyExpired(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, "digest-1", time.Now().Add(-time.Minute)))
	found, _, err := s.Lookup(ctx, "digest-1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestRedisStoreCleanupIsNoOp(t *testing.T) {
	s, _ := newRedisStore(t)
	deleted, err := s.Cleanup(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(0), deleted)
}
