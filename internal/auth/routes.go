package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/edustack/edustack/internal/middleware"
)

// RegisterRoutes sets up all auth routes on the given Echo instance.
// Registration is rate-limited per IP to blunt activation-mail abuse; the
// auth middleware is exported separately so other route groups can reuse it.
func RegisterRoutes(e *echo.Echo, h *Handler, service AuthService) {
	// Public routes -- no session required.
	e.POST("/register", h.Register, middleware.RateLimit(3, 15*time.Minute))
	e.POST("/activate-user", h.Activate)
	e.POST("/login", h.Login)
	e.POST("/social-auth", h.SocialAuth)
	e.GET("/refresh-token", h.Refresh)

	// Authenticated routes.
	authed := e.Group("", RequireAuth(service))
	authed.GET("/me", h.Me)
	authed.GET("/logout", h.Logout)
	authed.PUT("/update-user-info", h.UpdateInfo)
	authed.PUT("/update-password", h.UpdatePassword)
	authed.PUT("/update-user-avatar", h.UpdateAvatar)
}
