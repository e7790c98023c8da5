package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/sweemee/exam-server/internal/handlers"
	authmw "github.com/sweemee/exam-server/internal/middleware/auth"
	"github.com/sweemee/exam-server/internal/models"
)

type Deps struct {
	AuthHandler *handlers.AuthHandler
	Gate        *authmw.Gate
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/refresh", d.AuthHandler.RefreshTokens)
	auth.POST("/logout", d.AuthHandler.Logout, d.Gate.Require())
	auth.POST("/logout-all", d.AuthHandler.LogoutAll, d.Gate.Require())
	auth.GET("/me", d.AuthHandler.Me, d.Gate.Require())

	// Role-gated groups for the route-handling layer to attach exam,
	// class and admin endpoints onto.
	v1.Group("/student", d.Gate.Require(models.RoleStudent))
	v1.Group("/teacher", d.Gate.Require(models.RoleTeacher))
	v1.Group("/admin", d.Gate.Require(models.RoleAnyAdmin))
}
