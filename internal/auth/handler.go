package auth

import (
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/edustack/edustack/internal/apperror"
)

// Cookie names for the token pair. Both are HttpOnly so scripts cannot read
// them; the browser replays them automatically on same-site requests.
const (
	accessCookieName  = "access_token"
	refreshCookieName = "refresh_token"
)

// Handler handles HTTP requests for authentication. Handlers are thin: they
// bind the request, call the service, and write the JSON response. No
// business logic lives here.
type Handler struct {
	service       AuthService
	accessMaxAge  time.Duration
	refreshMaxAge time.Duration
	maxUploadSize int64
}

// NewHandler creates a new auth handler. The max-age durations control the
// token cookies' lifetimes and must match the token service's expiries.
func NewHandler(service AuthService, accessMaxAge, refreshMaxAge time.Duration, maxUploadSize int64) *Handler {
	return &Handler{
		service:       service,
		accessMaxAge:  accessMaxAge,
		refreshMaxAge: refreshMaxAge,
		maxUploadSize: maxUploadSize,
	}
}

// Register starts a registration (POST /register). Returns the signed
// activation token; the matching 4-digit code travels only by email.
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	activationToken, err := h.service.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success":         true,
		"message":         "Please check your email to activate your account",
		"activationToken": activationToken,
	})
}

// Activate confirms a pending registration (POST /activate-user). The new
// account is created but not logged in; the client proceeds to /login.
func (h *Handler) Activate(c echo.Context) error {
	var req ActivateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	if _, err := h.service.Activate(c.Request().Context(), req.ActivationToken, req.ActivationCode); err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"message": "Account activated successfully",
	})
}

// Login authenticates with email/password (POST /login). On success both
// token cookies are set and the access token is echoed in the body for
// clients that prefer an Authorization header.
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	user, pair, err := h.service.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}

	h.setAuthCookies(c, pair)

	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"user":        user,
		"accessToken": pair.AccessToken,
	})
}

// SocialAuth logs in or provisions a social account (POST /social-auth).
func (h *Handler) SocialAuth(c echo.Context) error {
	var req SocialAuthRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	user, pair, err := h.service.SocialAuth(c.Request().Context(), req)
	if err != nil {
		return err
	}

	h.setAuthCookies(c, pair)

	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"user":        user,
		"accessToken": pair.AccessToken,
	})
}

// Refresh rotates the token pair (GET /refresh-token). The refresh token is read
// from its cookie; on success both cookies are replaced with fresh tokens.
func (h *Handler) Refresh(c echo.Context) error {
	refreshToken := readCookie(c, refreshCookieName)
	if refreshToken == "" {
		return errSessionNotFound()
	}

	_, pair, err := h.service.Refresh(c.Request().Context(), refreshToken)
	if err != nil {
		return err
	}

	h.setAuthCookies(c, pair)

	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"accessToken": pair.AccessToken,
	})
}

// Logout revokes the session and clears both cookies (GET /logout).
func (h *Handler) Logout(c echo.Context) error {
	if err := h.service.Logout(c.Request().Context(), GetUserID(c)); err != nil {
		return err
	}

	h.clearAuthCookies(c)

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Logged out successfully",
	})
}

// Me returns the authenticated user (GET /me). The user was already loaded
// from the session cache by RequireAuth.
func (h *Handler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"user":    GetUser(c),
	})
}

// UpdateInfo changes profile fields (PUT /update-user-info).
func (h *Handler) UpdateInfo(c echo.Context) error {
	var req UpdateInfoRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	user, err := h.service.UpdateProfile(c.Request().Context(), GetUserID(c), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"user":    user,
	})
}

// UpdatePassword rotates the password (PUT /update-password). On
// success the session is already revoked server-side, so the cookies are
// cleared too and the client must log in again.
func (h *Handler) UpdatePassword(c echo.Context) error {
	var req UpdatePasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	if err := h.service.UpdatePassword(c.Request().Context(), GetUserID(c), req.OldPassword, req.NewPassword); err != nil {
		return err
	}

	h.clearAuthCookies(c)

	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"message": "Password updated, please log in again",
	})
}

// UpdateAvatar uploads a new profile image (PUT /update-user-avatar).
// Expects a multipart form with the image under the "avatar" field.
func (h *Handler) UpdateAvatar(c echo.Context) error {
	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		return apperror.NewBadRequest("avatar image is required")
	}
	if fileHeader.Size > h.maxUploadSize {
		return apperror.NewBadRequest("avatar image is too large")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return apperror.NewBadRequest("could not read avatar image")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadSize))
	if err != nil {
		return apperror.NewBadRequest("could not read avatar image")
	}

	user, err := h.service.UpdateAvatar(c.Request().Context(), GetUserID(c), data)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"user":    user,
	})
}

// --- Cookie helpers ---

// readCookie returns the named cookie's value, or "" when absent.
func readCookie(c echo.Context, name string) string {
	cookie, err := c.Cookie(name)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return cookie.Value
}

// setAuthCookies sets both token cookies. They are HttpOnly (JS can't read
// them), Secure behind TLS, and SameSite=Lax.
func (h *Handler) setAuthCookies(c echo.Context, pair TokenPair) {
	setTokenCookie(c, accessCookieName, pair.AccessToken, h.accessMaxAge)
	setTokenCookie(c, refreshCookieName, pair.RefreshToken, h.refreshMaxAge)
}

// clearAuthCookies removes both token cookies by setting MaxAge to -1.
func (h *Handler) clearAuthCookies(c echo.Context) {
	setTokenCookie(c, accessCookieName, "", -1)
	setTokenCookie(c, refreshCookieName, "", -1)
}

func setTokenCookie(c echo.Context, name, value string, maxAge time.Duration) {
	req := c.Request()
	seconds := -1
	if maxAge > 0 {
		seconds = int(maxAge.Seconds())
	}
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   seconds,
	})
}
