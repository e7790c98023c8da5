// Package refresh persists long-lived session credentials using a
// selector/verifier split: the selector is a public lookup key, the
// verifier never touches the store except as a one-way digest.
package refresh

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sweemee/exam-server/internal/autherr"
	"github.com/sweemee/exam-server/internal/models"
)

const (
	selectorSize = 16
	verifierSize = 32

	lookupTimeout = 2 * time.Second
	rotateTimeout = 3 * time.Second
)

// Meta is the issuance metadata recorded with each credential.
type Meta struct {
	UserAgent string
	IPAddress string
}

// Rotator is the rotation contract the authentication gate depends on.
type Rotator interface {
	Rotate(ctx context.Context, raw string, meta Meta) (string, *models.RefreshToken, error)
}

// Store manages refresh credentials in the durable store.
type Store struct {
	DB        *gorm.DB
	TTL       time.Duration
	Retention time.Duration
}

// Issue creates a new credential for the subject and returns the raw
// client-facing form selector.verifier. The raw verifier exists only in
// the return value.
func (s *Store) Issue(ctx context.Context, userID uint, subjectType string, meta Meta) (string, *models.RefreshToken, error) {
	selector, verifier, err := newCredential()
	if err != nil {
		return "", nil, err
	}

	rec := &models.RefreshToken{
		ID:           uuid.New(),
		UserID:       userID,
		SubjectType:  subjectType,
		Selector:     selector,
		VerifierHash: hashVerifier(verifier),
		UserAgent:    orUnknown(meta.UserAgent),
		IPAddress:    orUnknown(meta.IPAddress),
		ExpiresAt:    time.Now().Add(s.TTL),
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	if err := s.DB.WithContext(ctx).Create(rec).Error; err != nil {
		return "", nil, storeErr(err)
	}
	return selector + "." + verifier, rec, nil
}

// Validate splits the presented credential, looks the record up by
// selector and compares the verifier digest in constant time. Replay of an
// already-rotated credential surfaces as autherr.ErrReplay.
func (s *Store) Validate(ctx context.Context, raw string) (*models.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	return s.validate(ctx, s.DB, raw)
}

func (s *Store) validate(ctx context.Context, tx *gorm.DB, raw string) (*models.RefreshToken, error) {
	selector, verifier, err := splitCredential(raw)
	if err != nil {
		return nil, err
	}

	var rec models.RefreshToken
	if err := tx.WithContext(ctx).Where("selector = ?", selector).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unknown refresh credential", autherr.ErrNotFound)
		}
		return nil, storeErr(err)
	}

	// Verifier check comes before state checks so a wrong secret never
	// learns whether the selector it guessed is live or revoked.
	presented := sha256.Sum256([]byte(verifier))
	stored, err := hex.DecodeString(rec.VerifierHash)
	if err != nil || subtle.ConstantTimeCompare(presented[:], stored) != 1 {
		return nil, fmt.Errorf("%w: verifier mismatch", autherr.ErrSignature)
	}

	if rec.Revoked {
		if rec.ReplacedBy != nil {
			return nil, fmt.Errorf("%w: credential already rotated", autherr.ErrReplay)
		}
		return nil, fmt.Errorf("%w: refresh credential revoked", autherr.ErrRevoked)
	}
	if time.Now().After(rec.ExpiresAt) {
		return nil, fmt.Errorf("%w: refresh credential expired", autherr.ErrExpired)
	}
	return &rec, nil
}

// Rotate validates the presented credential and atomically replaces it:
// within one transaction the old record is flipped to revoked with
// ReplacedBy pointing at the new record, and the new record is inserted.
// If anything fails the transaction rolls back and the old credential
// stays valid. Of two concurrent rotations of the same credential exactly
// one wins; the loser observes the revoked flag and gets ErrReplay.
func (s *Store) Rotate(ctx context.Context, raw string, meta Meta) (string, *models.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(ctx, rotateTimeout)
	defer cancel()

	var (
		newRaw string
		newRec *models.RefreshToken
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		old, err := s.validate(ctx, tx, raw)
		if err != nil {
			return err
		}

		selector, verifier, err := newCredential()
		if err != nil {
			return err
		}
		newRec = &models.RefreshToken{
			ID:           uuid.New(),
			UserID:       old.UserID,
			SubjectType:  old.SubjectType,
			Selector:     selector,
			VerifierHash: hashVerifier(verifier),
			UserAgent:    orUnknown(meta.UserAgent),
			IPAddress:    orUnknown(meta.IPAddress),
			ExpiresAt:    time.Now().Add(s.TTL),
		}

		now := time.Now()
		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND revoked = ?", old.ID, false).
			Updates(map[string]any{
				"revoked":     true,
				"revoked_at":  now,
				"replaced_by": newRec.ID,
			})
		if res.Error != nil {
			return storeErr(res.Error)
		}
		if res.RowsAffected != 1 {
			// Someone else rotated between our read and our update.
			return fmt.Errorf("%w: credential already rotated", autherr.ErrReplay)
		}

		if err := tx.Create(newRec).Error; err != nil {
			return storeErr(err)
		}
		newRaw = selector + "." + verifier
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return newRaw, newRec, nil
}

// Revoke flips a single credential to revoked, with no ReplacedBy link.
// Used by plain logout; idempotent.
func (s *Store) Revoke(ctx context.Context, raw string) error {
	selector, _, err := splitCredential(raw)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	res := s.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("selector = ? AND revoked = ?", selector, false).
		Updates(map[string]any{"revoked": true, "revoked_at": time.Now()})
	if res.Error != nil {
		return storeErr(res.Error)
	}
	return nil
}

// RevokeAllForSubject bulk-revokes every live credential of one subject.
// A filtered update, no documents are loaded.
func (s *Store) RevokeAllForSubject(ctx context.Context, userID uint, subjectType string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, rotateTimeout)
	defer cancel()
	res := s.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND subject_type = ? AND revoked = ?", userID, subjectType, false).
		Updates(map[string]any{"revoked": true, "revoked_at": time.Now()})
	if res.Error != nil {
		return 0, storeErr(res.Error)
	}
	return res.RowsAffected, nil
}

// CountActiveForSubject reports how many non-revoked, non-expired
// credentials the subject currently holds.
func (s *Store) CountActiveForSubject(ctx context.Context, userID uint, subjectType string) (int64, error) {
	var n int64
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	err := s.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND subject_type = ? AND revoked = ? AND expires_at > ?",
			userID, subjectType, false, time.Now()).
		Count(&n).Error
	if err != nil {
		return 0, storeErr(err)
	}
	return n, nil
}

// Cleanup deletes naturally expired live records immediately and revoked
// records only once the retention window has passed, so revocations stay
// queryable for forensics.
func (s *Store) Cleanup(ctx context.Context) (int64, error) {
	now := time.Now()
	cutoff := now.Add(-s.Retention)
	res := s.DB.WithContext(ctx).
		Where("(revoked = ? AND expires_at < ?) OR (revoked = ? AND revoked_at < ?)",
			false, now, true, cutoff).
		Delete(&models.RefreshToken{})
	if res.Error != nil {
		return 0, storeErr(res.Error)
	}
	return res.RowsAffected, nil
}

func newCredential() (selector, verifier string, err error) {
	buf := make([]byte, selectorSize+verifierSize)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generating credential: %w", err)
	}
	return hex.EncodeToString(buf[:selectorSize]), hex.EncodeToString(buf[selectorSize:]), nil
}

func splitCredential(raw string) (selector, verifier string, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || len(parts[0]) != selectorSize*2 || len(parts[1]) != verifierSize*2 {
		return "", "", fmt.Errorf("%w: bad refresh credential format", autherr.ErrDecoding)
	}
	return parts[0], parts[1], nil
}

func hashVerifier(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return hex.EncodeToString(sum[:])
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", autherr.ErrStoreUnavailable, err)
}
