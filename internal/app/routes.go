package app

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/edustack/edustack/internal/auth"
	"github.com/edustack/edustack/internal/token"
)

// RegisterRoutes builds the auth service graph and mounts all routes.
// This is the single place where dependencies meet: repository, session
// store, token service, mailer, and image store are constructed here and
// handed to the auth service.
func (a *App) RegisterRoutes(mail auth.MailSender, images auth.ImageStore) {
	e := a.Echo

	// Health check endpoint for container orchestration.
	e.GET("/healthz", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		if err := a.DB.PingContext(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "database unreachable"})
		}
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "redis unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	repo := auth.NewUserRepository(a.DB)
	sessions := auth.NewSessionStore(a.Redis)
	tokens := token.NewService(a.Config.Token)

	service := auth.NewAuthService(repo, sessions, tokens, mail, images, a.Config.Mail.SendTimeout)
	handler := auth.NewHandler(service, tokens.AccessExpire(), tokens.RefreshExpire(), a.Config.Storage.MaxUploadSize)

	auth.RegisterRoutes(e, handler, service)
}
