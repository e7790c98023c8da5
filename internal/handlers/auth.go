package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sweemee/exam-server/internal/audit"
	"github.com/sweemee/exam-server/internal/autherr"
	"github.com/sweemee/exam-server/internal/blacklist"
	"github.com/sweemee/exam-server/internal/hash"
	"github.com/sweemee/exam-server/internal/logging"
	authmw "github.com/sweemee/exam-server/internal/middleware/auth"
	"github.com/sweemee/exam-server/internal/models"
	"github.com/sweemee/exam-server/internal/refresh"
	"github.com/sweemee/exam-server/internal/sessioncache"
	"github.com/sweemee/exam-server/internal/tokencrypt"
	"github.com/sweemee/exam-server/internal/users"
	"github.com/sweemee/exam-server/pkg/tokens"
)

type AuthHandler struct {
	Users    *users.Store
	Codec    *tokencrypt.Codec
	Issuer   *tokens.Issuer
	Refresh  *refresh.Store
	Registry *blacklist.Registry
	Sessions *sessioncache.Cache
	Audit    *audit.Dispatcher
	Domain   string
}

type credentialsRequest struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}
	if req.Role == "" {
		req.Role = models.RoleStudent
	}
	// Elevated accounts are provisioned administratively, never
	// self-registered.
	if !req.Role.Valid() || req.Role.Elevated() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid role")
	}

	ctx := c.Request().Context()
	if _, err := h.Users.FindByEmail(ctx, req.Email); err == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "user already exists with this email")
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not process password")
	}
	user := models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: pwHash,
		Role:         req.Role,
	}
	if err := h.Users.Create(ctx, &user); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create user")
	}

	if err := h.issuePair(c, &user); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create session")
	}

	h.emit(c, audit.ActionRegisterSuccess, &user, "")
	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"user":    user.Principal(),
	})
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	log := logging.FromContext(ctx)

	user, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil || !hash.CheckPassword(user.PasswordHash, req.Password) {
		h.Audit.Emit(audit.Event{
			Action:    audit.ActionLoginFailed,
			Email:     req.Email,
			IPAddress: c.RealIP(),
			UserAgent: c.Request().UserAgent(),
			Details:   "invalid email or password",
		})
		log.Warn("login failed", "email", req.Email, "ip", c.RealIP())
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
	}

	if err := h.issuePair(c, user); err != nil {
		log.Error("issuing session failed", "error", err, "user_id", user.ID)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create session")
	}

	h.emit(c, audit.ActionLoginSuccess, user, "")
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"user":    user.Principal(),
	})
}

// RefreshTokens is the explicit rotation endpoint. The credential comes
// from the refreshToken cookie or, for non-cookie clients, the request
// body; either way it is the encrypted form.
func (h *AuthHandler) RefreshTokens(c echo.Context) error {
	ctx := c.Request().Context()
	log := logging.FromContext(ctx)

	encrypted := ""
	if cookie, err := c.Cookie(authmw.RefreshCookie); err == nil && cookie.Value != "" {
		encrypted = cookie.Value
	} else {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := c.Bind(&body); err == nil {
			encrypted = body.RefreshToken
		}
	}
	if encrypted == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "refresh token required")
	}

	rawRefresh, err := h.Codec.Decrypt(encrypted)
	if err != nil {
		log.Warn("refresh credential decrypt failed", "error", err, "ip", c.RealIP())
		return unauthorized(err)
	}

	meta := refresh.Meta{UserAgent: c.Request().UserAgent(), IPAddress: c.RealIP()}
	newRefresh, rec, err := h.Refresh.Rotate(ctx, rawRefresh, meta)
	if err != nil {
		log.Warn("rotation rejected", "error", err, "ip", c.RealIP())
		return unauthorized(err)
	}

	user, err := h.Users.FindByID(ctx, rec.UserID)
	if err != nil {
		return unauthorized(err)
	}

	newAccess, accessExp, err := h.Issuer.Sign(user.ID, string(user.Role))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create access token")
	}
	if err := authmw.SetTokenCookies(c, h.Codec, h.Domain, newAccess, accessExp, newRefresh, rec.ExpiresAt); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not set cookies")
	}

	// The access token that accompanied the old refresh credential dies
	// with it.
	h.revokeAccessToken(c)

	h.emit(c, audit.ActionTokenRotated, user, "")
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// Logout revokes the current pair. Cookies are cleared even when a store
// write fails; the client session ends either way.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	log := logging.FromContext(ctx)

	h.revokeAccessToken(c)

	if cookie, err := c.Cookie(authmw.RefreshCookie); err == nil && cookie.Value != "" {
		if rawRefresh, err := h.Codec.Decrypt(cookie.Value); err == nil {
			if err := h.Refresh.Revoke(ctx, rawRefresh); err != nil {
				log.Error("refresh revocation failed on logout", "error", err)
			}
		}
	}

	if p, ok := authmw.FromContext(c); ok {
		h.Sessions.Invalidate(p.ID, p.Role)
		h.Audit.Emit(audit.Event{
			Action:      audit.ActionLogout,
			SubjectID:   p.ID,
			SubjectType: string(p.Role),
			Email:       p.Email,
			IPAddress:   c.RealIP(),
			UserAgent:   c.Request().UserAgent(),
		})
	}

	authmw.ClearTokenCookies(c, h.Domain)
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out successfully"})
}

// LogoutAll bulk-revokes every live refresh credential of the subject, for
// logout-everywhere and suspected-compromise handling.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	p, ok := authmw.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	ctx := c.Request().Context()
	log := logging.FromContext(ctx)

	revoked, err := h.Refresh.RevokeAllForSubject(ctx, p.ID, string(p.Role))
	if err != nil {
		log.Error("logout-all failed", "error", err, "subject_id", p.ID)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not revoke sessions")
	}

	h.revokeAccessToken(c)
	h.Sessions.Invalidate(p.ID, p.Role)
	authmw.ClearTokenCookies(c, h.Domain)

	h.Audit.Emit(audit.Event{
		Action:      audit.ActionLogoutAll,
		SubjectID:   p.ID,
		SubjectType: string(p.Role),
		Email:       p.Email,
		IPAddress:   c.RealIP(),
		UserAgent:   c.Request().UserAgent(),
	})
	return c.JSON(http.StatusOK, echo.Map{
		"message":          "logged out everywhere",
		"sessions_revoked": revoked,
	})
}

// Me reports the authenticated principal, resolved by the gate.
func (h *AuthHandler) Me(c echo.Context) error {
	p, ok := authmw.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":       true,
		"authenticated": true,
		"user":          p,
	})
}

// issuePair creates a fresh access token and refresh credential for the
// user and sets both cookies.
func (h *AuthHandler) issuePair(c echo.Context, user *models.User) error {
	ctx := c.Request().Context()

	access, accessExp, err := h.Issuer.Sign(user.ID, string(user.Role))
	if err != nil {
		return err
	}

	meta := refresh.Meta{UserAgent: c.Request().UserAgent(), IPAddress: c.RealIP()}
	rawRefresh, rec, err := h.Refresh.Issue(ctx, user.ID, string(user.Role), meta)
	if err != nil {
		return err
	}

	return authmw.SetTokenCookies(c, h.Codec, h.Domain, access, accessExp, rawRefresh, rec.ExpiresAt)
}

// revokeAccessToken blacklists the access token accompanying the request
// for its remaining lifetime. Best-effort: an absent, expired or garbled
// token is simply skipped.
func (h *AuthHandler) revokeAccessToken(c echo.Context) {
	encrypted := authmw.ExtractToken(c)
	if encrypted == "" {
		return
	}
	raw, err := h.Codec.Decrypt(encrypted)
	if err != nil {
		return
	}
	claims, err := h.Issuer.Parse(raw)
	if err != nil || claims == nil {
		return
	}
	remaining := claims.Remaining(time.Now())
	if remaining <= 0 {
		return
	}
	h.Registry.Revoke(c.Request().Context(), raw, remaining)
}

func (h *AuthHandler) emit(c echo.Context, action string, user *models.User, details string) {
	h.Audit.Emit(audit.Event{
		Action:      action,
		SubjectID:   user.ID,
		SubjectType: string(user.Role),
		Email:       user.Email,
		IPAddress:   c.RealIP(),
		UserAgent:   c.Request().UserAgent(),
		Details:     details,
	})
}

// unauthorized maps taxonomy errors onto the generic response with a
// stable machine code.
func unauthorized(err error) error {
	status := http.StatusUnauthorized
	if errors.Is(err, autherr.ErrForbidden) {
		status = http.StatusForbidden
	}
	return echo.NewHTTPError(status, echo.Map{
		"status":  "error",
		"message": "Unauthorized",
		"code":    autherr.Code(err),
	})
}
