package loggingmw

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sweemee/exam-server/internal/logging"
)

func RequestLogger(base *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(echo.HeaderXRequestID)

			l := base.With(
				"method", c.Request().Method,
				"path", c.Path(),
				"url", c.Request().URL.Path,
				"remote_ip", c.RealIP(),
				"user_agent", c.Request().UserAgent(),
			)
			if rid != "" {
				l = l.With("request_id", rid)
				c.Response().Header().Set(echo.HeaderXRequestID, rid)
			}

			req := c.Request().WithContext(logging.IntoContext(c.Request().Context(), l))
			c.SetRequest(req)

			start := time.Now()
			err := next(c)
			dur := time.Since(start)
			status := c.Response().Status

			if err != nil {
				c.Echo().HTTPErrorHandler(err, c)
				status = c.Response().Status
			}

			switch {
			case status >= 500 || (err != nil && status < 400):
				l.Error("request completed", "status", status, "duration_ms", dur.Milliseconds(), "error", errStr(err))
			case status >= 400:
				// Auth rejections carry a stable machine code; surface it so
				// 401 noise is greppable by cause.
				args := []any{"status", status, "duration_ms", dur.Milliseconds()}
				if code := rejectionCode(err); code != "" {
					args = append(args, "code", code)
				}
				l.Warn("request completed", args...)
			default:
				l.Info("request completed", "status", status, "duration_ms", dur.Milliseconds(), "bytes", c.Response().Size)
			}
			return nil
		}
	}
}

// rejectionCode extracts the machine code the authentication gate attaches
// to its HTTP errors, if there is one.
func rejectionCode(err error) string {
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		return ""
	}
	body, ok := he.Message.(echo.Map)
	if !ok {
		return ""
	}
	code, _ := body["code"].(string)
	return code
}

func errStr(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%v", err)
}
