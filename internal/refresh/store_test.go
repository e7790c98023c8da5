package refresh

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sweemee/exam-server/internal/autherr"
	"github.com/sweemee/exam-server/internal/models"
)

func initTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.RefreshToken{}))
	return db
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return &Store{DB: initTestDB(t), TTL: time.Hour, Retention: time.Hour}
}

var testMeta = Meta{UserAgent: "go-test", IPAddress: "127.0.0.1"}

func TestIssueAndValidate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	raw, rec, err := s.Issue(ctx, 1, "student", testMeta)
	require.NoError(t, err)

	parts := strings.Split(raw, ".")
	require.Len(t, parts, 2)
	require.Len(t, parts[0], selectorSize*2)
	require.Len(t, parts[1], verifierSize*2)

	// The raw verifier never reaches the store.
	require.NotContains(t, rec.VerifierHash, parts[1])
	require.Equal(t, parts[0], rec.Selector)
	require.False(t, rec.Revoked)

	got, err := s.Validate(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, rec.ID, got.ID)
	require.Equal(t, uint(1), got.UserID)
	require.Equal(t, "student", got.SubjectType)
}

func TestValidateRejectsWrongVerifier(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	raw, _, err := s.Issue(ctx, 1, "student", testMeta)
	require.NoError(t, err)

	// Same selector, forged verifier: still valid hex of the right length.
	selector := strings.Split(raw, ".")[0]
	forged := selector + "." + strings.Repeat("ab", verifierSize)

	_, err = s.Validate(ctx, forged)
	require.ErrorIs(t, err, autherr.ErrSignature)
}

func TestValidateUnknownSelector(t *testing.T) {
	s := newTestStore(t)
	unknown := strings.Repeat("aa", selectorSize) + "." + strings.Repeat("bb", verifierSize)
	_, err := s.Validate(context.Background(), unknown)
	require.ErrorIs(t, err, autherr.ErrNotFound)
}

func TestValidateMalformedCredential(t *testing.T) {
	s := newTestStore(t)
	for _, raw := range []string{"", "no-dot", "a.b", "a.b.c", strings.Repeat("aa", selectorSize) + ".short"} {
		_, err := s.Validate(context.Background(), raw)
		require.ErrorIs(t, err, autherr.ErrDecoding, raw)
	}
}

func TestValidateExpired(t *testing.T) {
	s := newTestStore(t)
	s.TTL = -time.Minute
	ctx := context.Background()

	raw, _, err := s.Issue(ctx, 1, "student", testMeta)
	require.NoError(t, err)

	_, err = s.Validate(ctx, raw)
	require.ErrorIs(t, err, autherr.ErrExpired)
}

func TestRotate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	oldRaw, oldRec, err := s.Issue(ctx, 1, "student", testMeta)
	require.NoError(t, err)

	newRaw, newRec, err := s.Rotate(ctx, oldRaw, testMeta)
	require.NoError(t, err)
	require.NotEqual(t, oldRaw, newRaw)
	require.Equal(t, oldRec.UserID, newRec.UserID)
	require.Equal(t, oldRec.SubjectType, newRec.SubjectType)

	// The new credential works, the old one is dead.
	_, err = s.Validate(ctx, newRaw)
	require.NoError(t, err)

	// The old record carries the replacement link.
	var old models.RefreshToken
	require.NoError(t, s.DB.First(&old, "id = ?", oldRec.ID).Error)
	require.True(t, old.Revoked)
	require.NotNil(t, old.RevokedAt)
	require.NotNil(t, old.ReplacedBy)
	require.Equal(t, newRec.ID, *old.ReplacedBy)
}

func TestRotateReplayDetection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	oldRaw, _, err := s.Issue(ctx, 1, "student", testMeta)
	require.NoError(t, err)
	_, _, err = s.Rotate(ctx, oldRaw, testMeta)
	require.NoError(t, err)

	// Presenting the rotated credential again is reuse, every time.
	for i := 0; i < 2; i++ {
		_, _, err = s.Rotate(ctx, oldRaw, testMeta)
		require.ErrorIs(t, err, autherr.ErrReplay)
		_, err = s.Validate(ctx, oldRaw)
		require.ErrorIs(t, err, autherr.ErrReplay)
	}

	// Exactly one live credential for the subject.
	n, err := s.CountActiveForSubject(ctx, 1, "student")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestRotateRollsBackOnInsertFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	raw, _, err := s.Issue(ctx, 1, "student", testMeta)
	require.NoError(t, err)

	// Make the insert of the replacement record fail mid-transaction.
	require.NoError(t, s.DB.Exec(
		`CREATE TRIGGER block_refresh_insert BEFORE INSERT ON refresh_tokens
		 BEGIN SELECT RAISE(ABORT, 'injected failure'); END;`).Error)

	_, _, err = s.Rotate(ctx, raw, testMeta)
	require.Error(t, err)

	require.NoError(t, s.DB.Exec(`DROP TRIGGER block_refresh_insert`).Error)

	// The rollback left the old credential untouched and still valid.
	rec, err := s.Validate(ctx, raw)
	require.NoError(t, err)
	require.False(t, rec.Revoked)

	n, err := s.CountActiveForSubject(ctx, 1, "student")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestRevoke(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	raw, _, err := s.Issue(ctx, 1, "student", testMeta)
	require.NoError(t, err)

	require.NoError(t, s.Revoke(ctx, raw))
	// Idempotent.
	require.NoError(t, s.Revoke(ctx, raw))

	// Plain revocation, not rotation: no ReplacedBy, so replay of the
	// credential reads as revoked rather than reuse.
	_, err = s.Validate(ctx, raw)
	require.ErrorIs(t, err, autherr.ErrRevoked)
	require.NotErrorIs(t, err, autherr.ErrReplay)
}

func TestRevokeAllForSubject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.Issue(ctx, 1, "student", testMeta)
	require.NoError(t, err)
	_, _, err = s.Issue(ctx, 1, "student", testMeta)
	require.NoError(t, err)
	otherRaw, _, err := s.Issue(ctx, 2, "teacher", testMeta)
	require.NoError(t, err)

	revoked, err := s.RevokeAllForSubject(ctx, 1, "student")
	require.NoError(t, err)
	require.Equal(t, int64(2), revoked)

	n, err := s.CountActiveForSubject(ctx, 1, "student")
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	// The other subject is untouched.
	_, err = s.Validate(ctx, otherRaw)
	require.NoError(t, err)
}

func TestCleanupHonorsRetention(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Naturally expired live credential: deleted immediately.
	s.TTL = -time.Minute
	expiredRaw, _, err := s.Issue(ctx, 1, "student", testMeta)
	require.NoError(t, err)
	s.TTL = time.Hour

	// Freshly revoked: kept for forensics until retention passes.
	freshRaw, _, err := s.Issue(ctx, 1, "student", testMeta)
	require.NoError(t, err)
	require.NoError(t, s.Revoke(ctx, freshRaw))

	// Revoked past retention: deleted.
	staleRaw, staleRec, err := s.Issue(ctx, 1, "student", testMeta)
	require.NoError(t, err)
	require.NoError(t, s.Revoke(ctx, staleRaw))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, s.DB.Model(&models.RefreshToken{}).
		Where("id = ?", staleRec.ID).
		Update("revoked_at", past).Error)

	// Live and valid: kept.
	liveRaw, _, err := s.Issue(ctx, 1, "student", testMeta)
	require.NoError(t, err)

	deleted, err := s.Cleanup(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	_, err = s.Validate(ctx, expiredRaw)
	require.ErrorIs(t, err, autherr.ErrNotFound)
	_, err = s.Validate(ctx, staleRaw)
	require.ErrorIs(t, err, autherr.ErrNotFound)
	_, err = s.Validate(ctx, freshRaw)
	require.ErrorIs(t, err, autherr.ErrRevoked)
	_, err = s.Validate(ctx, liveRaw)
	require.NoError(t, err)
}
