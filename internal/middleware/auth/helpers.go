package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sweemee/exam-server/internal/models"
	"github.com/sweemee/exam-server/internal/tokencrypt"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"

	principalKey = "principal"
)

// SetPrincipal attaches the authenticated principal to the request scope.
func SetPrincipal(c echo.Context, p models.Principal) {
	c.Set(principalKey, p)
}

// FromContext is the canonical accessor for the current principal.
// Handlers use this and nothing else.
func FromContext(c echo.Context) (models.Principal, bool) {
	p, ok := c.Get(principalKey).(models.Principal)
	return p, ok
}

// ExtractToken pulls the encrypted access token from the cookie or, for
// non-cookie clients, the Authorization bearer header.
func ExtractToken(c echo.Context) string {
	if cookie, err := c.Cookie(AccessCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func CreateCookie(name, value, domain string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   domain,
		Expires:  exp,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

// SetTokenCookies encrypts both raw tokens and sets the pair on the
// response. Raw token material never travels in a cookie unencrypted.
func SetTokenCookies(c echo.Context, codec *tokencrypt.Codec, domain, rawAccess string, accessExp time.Time, rawRefresh string, refreshExp time.Time) error {
	encAccess, err := codec.Encrypt(rawAccess)
	if err != nil {
		return err
	}
	encRefresh, err := codec.Encrypt(rawRefresh)
	if err != nil {
		return err
	}
	c.SetCookie(CreateCookie(AccessCookie, encAccess, domain, accessExp))
	c.SetCookie(CreateCookie(RefreshCookie, encRefresh, domain, refreshExp))
	return nil
}

// ClearTokenCookies overwrites both cookies with already-expired ones.
func ClearTokenCookies(c echo.Context, domain string) {
	expired := time.Now().Add(-time.Hour)
	c.SetCookie(CreateCookie(AccessCookie, "", domain, expired))
	c.SetCookie(CreateCookie(RefreshCookie, "", domain, expired))
}
