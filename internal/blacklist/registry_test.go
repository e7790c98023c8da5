package blacklist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// stubStore is a durable store with injectable failures.
type stubStore struct {
	mu        sync.Mutex
	entries   map[string]time.Time
	insertErr error
	lookupErr error
}

func newStubStore() *stubStore {
	return &stubStore{entries: map[string]time.Time{}}
}

func (s *stubStore) Insert(_ context.Context, digest string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.entries[digest] = expiresAt
	return nil
}

func (s *stubStore) Lookup(_ context.Context, digest string) (bool, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return false, time.Time{}, s.lookupErr
	}
	exp, ok := s.entries[digest]
	return ok, exp, nil
}

func (s *stubStore) Cleanup(context.Context) (int64, error) {
	return 0, nil
}

func TestRevokeIsImmediatelyVisible(t *testing.T) {
	store := newStubStore()
	r := NewRegistry(store, 100, time.Minute, nil)
	ctx := context.Background()

	r.Revoke(ctx, "the-token", time.Hour)
	require.True(t, r.IsRevoked(ctx, "the-token"))
	require.False(t, r.IsRevoked(ctx, "another-token"))
}

func TestRevokeSurvivesDurableWriteFailure(t *testing.T) {
	store := newStubStore()
	store.insertErr = errors.New("store is down")
	r := NewRegistry(store, 100, time.Minute, nil)
	ctx := context.Background()

	// The write failure is absorbed; the in-process cache still rejects
	// the token.
	r.Revoke(ctx, "the-token", time.Hour)
	require.True(t, r.IsRevoked(ctx, "the-token"))
}

// hangingStore blocks Insert until the caller's context gives up.
type hangingStore struct {
	*stubStore
}

func (s *hangingStore) Insert(ctx context.Context, _ string, _ time.Time) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRevokeBoundsDurableWriteTime(t *testing.T) {
	store := &hangingStore{newStubStore()}
	r := NewRegistry(store, 100, time.Minute, nil)

	done := make(chan struct{})
	go func() {
		r.Revoke(context.Background(), "the-token", time.Hour)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Revoke blocked on a hung durable store")
	}

	// The in-process cache still rejects the token.
	require.True(t, r.IsRevoked(context.Background(), "the-token"))
}

func TestIsRevokedFailsOpenOnReadError(t *testing.T) {
	store := newStubStore()
	store.lookupErr = errors.New("store is down")
	r := NewRegistry(store, 100, time.Minute, nil)

	require.False(t, r.IsRevoked(context.Background(), "some-token"))
}

func TestDurableHitIsPromotedToCache(t *testing.T) {
	store := newStubStore()
	r := NewRegistry(store, 100, time.Minute, nil)
	ctx := context.Background()

	// Entry written by another process: only in the durable store.
	digest := Digest("foreign-token")
	store.entries[digest] = time.Now().Add(time.Hour)

	require.True(t, r.IsRevoked(ctx, "foreign-token"))

	// A second check hits the promoted cache entry even if the store
	// becomes unreachable.
	store.lookupErr = errors.New("store is down")
	require.True(t, r.IsRevoked(ctx, "foreign-token"))
}

func TestExpiredDurableEntryIsNotRevoked(t *testing.T) {
	store := newStubStore()
	r := NewRegistry(store, 100, time.Minute, nil)

	digest := Digest("old-token")
	store.entries[digest] = time.Now().Add(-time.Minute)

	require.False(t, r.IsRevoked(context.Background(), "old-token"))
}

func TestRevokeIgnoresAlreadyExpiredTokens(t *testing.T) {
	store := newStubStore()
	r := NewRegistry(store, 100, time.Minute, nil)
	ctx := context.Background()

	r.Revoke(ctx, "expired-token", 0)
	r.Revoke(ctx, "expired-token", -time.Minute)

	require.False(t, r.IsRevoked(ctx, "expired-token"))
	require.Empty(t, store.entries)
}

func TestCacheEntryBoundedByRemainingLifetime(t *testing.T) {
	store := newStubStore()
	// Cache ceiling of a minute, but the token dies in 30ms.
	r := NewRegistry(store, 100, time.Minute, nil)
	ctx := context.Background()

	r.Revoke(ctx, "short-lived", 30*time.Millisecond)
	require.True(t, r.IsRevoked(ctx, "short-lived"))

	// Once the token expired naturally, nothing keeps rejecting it.
	time.Sleep(50 * time.Millisecond)
	store.mu.Lock()
	delete(store.entries, Digest("short-lived"))
	store.mu.Unlock()
	require.False(t, r.IsRevoked(ctx, "short-lived"))
}

func TestDigestIsStableAndIrreversible(t *testing.T) {
	d1 := Digest("token")
	d2 := Digest("token")
	require.Equal(t, d1, d2)
	require.Len(t, d1, 64)
	require.NotEqual(t, d1, Digest("other"))
	require.NotContains(t, d1, "token")
}

func TestCapTTL(t *testing.T) {
	require.Equal(t, time.Minute, capTTL(time.Hour, time.Minute))
	require.Equal(t, time.Second, capTTL(time.Second, time.Minute))
	require.Equal(t, time.Hour, capTTL(time.Hour, 0))
}
