package blacklist

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sweemee/exam-server/internal/models"
)

func newGormStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.RevokedToken{}))
	return &GormStore{DB: db}
}

func TestGormStoreInsertLookup(t *testing.T) {
	s := newGormStore(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)

	require.NoError(t, s.Insert(ctx, "digest-1", expiresAt))

	found, exp, err := s.Lookup(ctx, "digest-1")
	require.NoError(t, err)
	require.True(t, found)
	require.WithinDuration(t, expiresAt, exp, time.Second)

	found, _, err = s.Lookup(ctx, "unknown")
	require.NoError(t, err)
	require.False(t, found)
}

func TestGormStoreDuplicateInsertIsSuccess(t *testing.T) {
	s := newGormStore(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)

	require.NoError(t, s.Insert(ctx, "digest-1", expiresAt))
	require.NoError(t, s.Insert(ctx, "digest-1", expiresAt))
}

func TestGormStoreLookupSkipsExpired(t *testing.T) {
	s := newGormStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, "digest-1", time.Now().Add(-time.Minute)))
	found, _, err := s.Lookup(ctx, "digest-1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestGormStoreCleanup(t *testing.T) {
	s := newGormStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, "stale", time.Now().Add(-time.Minute)))
	require.NoError(t, s.Insert(ctx, "live", time.Now().Add(time.Hour)))

	deleted, err := s.Cleanup(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	found, _, err := s.Lookup(ctx, "live")
	require.NoError(t, err)
	require.True(t, found)
}
