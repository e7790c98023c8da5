package blacklist

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sweemee/exam-server/internal/models"
)

// GormStore keeps revoked-token entries in the relational store. The
// default durable backend; shared across processes through the database.
type GormStore struct {
	DB *gorm.DB
}

func (s *GormStore) Insert(ctx context.Context, digest string, expiresAt time.Time) error {
	rec := models.RevokedToken{
		Digest:    digest,
		ExpiresAt: expiresAt,
		Reason:    "logout",
	}
	err := s.DB.WithContext(ctx).Create(&rec).Error
	if err != nil && isDuplicate(err) {
		// Already blacklisted, e.g. a retried logout. Fine.
		return nil
	}
	return err
}

func (s *GormStore) Lookup(ctx context.Context, digest string) (bool, time.Time, error) {
	var rec models.RevokedToken
	err := s.DB.WithContext(ctx).
		Where("digest = ? AND expires_at > ?", digest, time.Now()).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, err
	}
	return true, rec.ExpiresAt, nil
}

func (s *GormStore) Cleanup(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&models.RevokedToken{})
	return res.RowsAffected, res.Error
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
