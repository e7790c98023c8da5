// Package tokens issues and verifies the short-lived signed access tokens
// carried in the accessToken cookie.
package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sweemee/exam-server/internal/autherr"
)

type AccessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and parses access tokens with a single HS256 secret.
type Issuer struct {
	Secret []byte
	TTL    time.Duration
}

func (i *Issuer) Sign(subjectID uint, role string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(i.TTL)
	claims := AccessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(subjectID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(i.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse verifies signature and expiry. An expired-but-authentic token
// returns the claims together with autherr.ErrExpired so the caller can
// attempt a transparent refresh; anything else returns autherr.ErrSignature
// and must be rejected outright.
func (i *Issuer) Parse(tokenStr string) (*AccessClaims, error) {
	var claims AccessClaims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return i.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return &claims, fmt.Errorf("%w: %v", autherr.ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", autherr.ErrSignature, err)
	}
	if !tkn.Valid {
		return nil, autherr.ErrSignature
	}
	return &claims, nil
}

// SubjectID decodes the numeric subject id from the claims.
func (c *AccessClaims) SubjectID() (uint, error) {
	var id uint
	if _, err := fmt.Sscan(c.Subject, &id); err != nil {
		return 0, fmt.Errorf("%w: bad subject claim %q", autherr.ErrSignature, c.Subject)
	}
	return id, nil
}

// Remaining returns how long the token is still naturally valid, never
// negative.
func (c *AccessClaims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	d := c.ExpiresAt.Time.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
