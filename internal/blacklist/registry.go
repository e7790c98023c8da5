// Package blacklist records access tokens invalidated before their natural
// expiry. Checks hit an in-process cache first and fall back to a durable
// store shared across processes. Tokens are keyed by sha256 digest; the
// raw token never reaches the store.
package blacklist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/sweemee/exam-server/internal/memcache"
)

const (
	readTimeout  = time.Second
	writeTimeout = time.Second
)

// Store is the durable side of the registry.
type Store interface {
	// Insert records a digest until expiresAt. A duplicate insert is
	// success, not an error.
	Insert(ctx context.Context, digest string, expiresAt time.Time) error
	// Lookup reports whether the digest is present and, if so, when the
	// entry expires.
	Lookup(ctx context.Context, digest string) (bool, time.Time, error)
	// Cleanup drops entries past their expiry.
	Cleanup(ctx context.Context) (int64, error)
}

type Registry struct {
	store    Store
	cache    *memcache.Cache[struct{}]
	cacheTTL time.Duration
	log      *slog.Logger
}

func NewRegistry(store Store, maxSize int, cacheTTL time.Duration, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		store:    store,
		cache:    memcache.New[struct{}](maxSize),
		cacheTTL: cacheTTL,
		log:      log,
	}
}

// Revoke blacklists rawToken for its remaining lifetime. The in-process
// cache is written first so this process rejects the token immediately;
// the durable write is bounded and best-effort, a failure or timeout is
// logged, not returned — logout must not hang or fail because the store
// is slow.
func (r *Registry) Revoke(ctx context.Context, rawToken string, remaining time.Duration) {
	if remaining <= 0 {
		return
	}
	digest := Digest(rawToken)
	r.cache.Set(digest, struct{}{}, capTTL(remaining, r.cacheTTL))

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	expiresAt := time.Now().Add(remaining)
	if err := r.store.Insert(ctx, digest, expiresAt); err != nil {
		r.log.Error("blacklist durable write failed, in-process cache still protects this token",
			"error", err, "digest_prefix", digest[:10])
	}
}

// IsRevoked checks the cache, then the durable store. A durable read
// failure fails open: we would rather let one revoked token through than
// reject all authenticated traffic while the store is down. That is a
// deliberate availability-over-enforcement trade-off.
func (r *Registry) IsRevoked(ctx context.Context, rawToken string) bool {
	digest := Digest(rawToken)
	if _, ok := r.cache.Get(digest); ok {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	found, expiresAt, err := r.store.Lookup(ctx, digest)
	if err != nil {
		r.log.Warn("blacklist durable read failed, failing open",
			"error", err, "digest_prefix", digest[:10])
		return false
	}
	if !found {
		return false
	}

	if remaining := time.Until(expiresAt); remaining > 0 {
		r.cache.Set(digest, struct{}{}, capTTL(remaining, r.cacheTTL))
		return true
	}
	return false
}

// Cleanup sweeps expired entries from both layers.
func (r *Registry) Cleanup(ctx context.Context) (int64, error) {
	r.cache.Purge()
	return r.store.Cleanup(ctx)
}

// Digest returns the irreversible cache/store key for a raw token.
func Digest(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}

// capTTL bounds a cache entry's TTL by both the token's remaining lifetime
// and the cache's own ceiling. Blacklisting past natural expiry is waste.
func capTTL(remaining, ceiling time.Duration) time.Duration {
	if ceiling > 0 && remaining > ceiling {
		return ceiling
	}
	return remaining
}
