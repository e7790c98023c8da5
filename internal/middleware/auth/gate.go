// Package auth is the per-request authentication gate. Pipeline:
// extract → decrypt → blacklist check → verify → resolve principal →
// authorize role → attach principal. An expired-but-authentic access token
// triggers a transparent refresh instead of a rejection.
package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sweemee/exam-server/internal/audit"
	"github.com/sweemee/exam-server/internal/autherr"
	"github.com/sweemee/exam-server/internal/blacklist"
	"github.com/sweemee/exam-server/internal/logging"
	"github.com/sweemee/exam-server/internal/models"
	"github.com/sweemee/exam-server/internal/refresh"
	"github.com/sweemee/exam-server/internal/sessioncache"
	"github.com/sweemee/exam-server/internal/tokencrypt"
	"github.com/sweemee/exam-server/pkg/tokens"
)

// UserResolver resolves the subject behind a verified token. Implemented
// by users.Store; an interface here so gate tests can inject failures.
type UserResolver interface {
	FindByID(ctx context.Context, id uint) (*models.User, error)
}

type Gate struct {
	Codec    *tokencrypt.Codec
	Issuer   *tokens.Issuer
	Registry *blacklist.Registry
	Sessions *sessioncache.Cache
	Users    UserResolver
	Rotator  refresh.Rotator
	Audit    *audit.Dispatcher
	Domain   string
}

// Require authenticates the request and, when roles are given, authorizes
// against them. An empty role list means any authenticated principal.
// models.RoleAnyAdmin accepts any elevated role, and an admin passes every
// requirement regardless of what was declared.
func (g *Gate) Require(roles ...models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			log := logging.FromContext(ctx)

			encrypted := ExtractToken(c)
			if encrypted == "" {
				return reject(c, http.StatusUnauthorized, autherr.CodeNoToken)
			}

			raw, err := g.Codec.Decrypt(encrypted)
			if err != nil {
				log.Warn("access token decrypt failed", "error", err, "ip", c.RealIP())
				return reject(c, http.StatusUnauthorized, autherr.CodeInvalidToken)
			}

			if g.Registry.IsRevoked(ctx, raw) {
				log.Warn("revoked access token presented", "ip", c.RealIP())
				return reject(c, http.StatusUnauthorized, autherr.CodeTokenRevoked)
			}

			claims, err := g.Issuer.Parse(raw)
			switch {
			case err == nil:
			case errors.Is(err, autherr.ErrExpired):
				claims, err = g.autoRefresh(c)
				if err != nil {
					log.Info("transparent refresh failed", "error", err, "ip", c.RealIP())
					return reject(c, http.StatusUnauthorized, autherr.CodeTokenExpired)
				}
			default:
				log.Warn("access token verification failed", "error", err, "ip", c.RealIP())
				return reject(c, http.StatusUnauthorized, autherr.CodeInvalidToken)
			}

			principal, err := g.resolve(ctx, claims)
			if err != nil {
				log.Warn("principal resolution failed", "error", err, "subject", claims.Subject)
				return reject(c, http.StatusUnauthorized, autherr.Code(err))
			}

			if !authorized(principal.Role, roles) {
				log.Warn("insufficient role", "subject_id", principal.ID, "role", principal.Role)
				return reject(c, http.StatusForbidden, autherr.CodeForbidden)
			}

			SetPrincipal(c, principal)
			return next(c)
		}
	}
}

// autoRefresh runs the rotation protocol with the refresh cookie after the
// access token expired with a valid signature. On success the new pair is
// already set on the response and the request continues under the fresh
// claims.
func (g *Gate) autoRefresh(c echo.Context) (*tokens.AccessClaims, error) {
	ctx := c.Request().Context()

	refreshCookie, err := c.Cookie(RefreshCookie)
	if err != nil || refreshCookie.Value == "" {
		return nil, autherr.ErrExpired
	}
	rawRefresh, err := g.Codec.Decrypt(refreshCookie.Value)
	if err != nil {
		return nil, err
	}

	meta := refresh.Meta{UserAgent: c.Request().UserAgent(), IPAddress: c.RealIP()}
	newRefresh, rec, err := g.Rotator.Rotate(ctx, rawRefresh, meta)
	if err != nil {
		return nil, err
	}

	// Role comes from the current user record, not the expired claims, so
	// a role change since issuance takes effect on the rotated token.
	user, err := g.Users.FindByID(ctx, rec.UserID)
	if err != nil {
		return nil, err
	}

	newAccess, accessExp, err := g.Issuer.Sign(user.ID, string(user.Role))
	if err != nil {
		return nil, err
	}

	if err := SetTokenCookies(c, g.Codec, g.Domain, newAccess, accessExp, newRefresh, rec.ExpiresAt); err != nil {
		return nil, err
	}

	g.Audit.Emit(audit.Event{
		Action:      audit.ActionTokenRotated,
		SubjectID:   user.ID,
		SubjectType: string(user.Role),
		Email:       user.Email,
		IPAddress:   c.RealIP(),
		UserAgent:   c.Request().UserAgent(),
	})

	return g.Issuer.Parse(newAccess)
}

// resolve turns verified claims into a Principal: session cache first,
// user store on miss. A role claim that no longer matches the user record
// is rejected, not silently honored.
func (g *Gate) resolve(ctx context.Context, claims *tokens.AccessClaims) (models.Principal, error) {
	subjectID, err := claims.SubjectID()
	if err != nil {
		return models.Principal{}, err
	}
	role := models.Role(claims.Role)
	if !role.Valid() {
		return models.Principal{}, autherr.ErrRoleMismatch
	}

	if p, ok := g.Sessions.Get(subjectID, role); ok {
		return p, nil
	}

	user, err := g.Users.FindByID(ctx, subjectID)
	if err != nil {
		return models.Principal{}, err
	}
	if user.Role != role {
		return models.Principal{}, autherr.ErrRoleMismatch
	}

	p := user.Principal()
	g.Sessions.Set(p)
	return p, nil
}

func authorized(have models.Role, required []models.Role) bool {
	if len(required) == 0 {
		return true
	}
	// Superuser bypass: an admin satisfies every requirement. Intentional.
	if have == models.RoleAdmin {
		return true
	}
	for _, r := range required {
		if r == models.RoleAnyAdmin {
			if have.Elevated() {
				return true
			}
			continue
		}
		if r == have {
			return true
		}
	}
	return false
}

// reject collapses every failure into a generic unauthorized/forbidden
// body plus a stable machine code. Internal detail stays in the logs.
func reject(c echo.Context, status int, code string) error {
	message := "Unauthorized"
	if status == http.StatusForbidden {
		message = "Forbidden"
	}
	return echo.NewHTTPError(status, echo.Map{
		"status":  "error",
		"message": message,
		"code":    code,
	})
}
