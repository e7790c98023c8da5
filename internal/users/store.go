// Package users is the authentication boundary onto the user table: lookup
// for principal resolution and creation at registration. Nothing here
// mutates domain state beyond the account record.
package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sweemee/exam-server/internal/autherr"
	"github.com/sweemee/exam-server/internal/models"
)

const lookupTimeout = 2 * time.Second

type Store struct {
	DB *gorm.DB
}

func (s *Store) FindByID(ctx context.Context, id uint) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	var u models.User
	err := s.DB.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %d", autherr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", autherr.ErrStoreUnavailable, err)
	}
	return &u, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	var u models.User
	err := s.DB.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: email %s", autherr.ErrNotFound, email)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", autherr.ErrStoreUnavailable, err)
	}
	return &u, nil
}

func (s *Store) Create(ctx context.Context, u *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	if err := s.DB.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}
