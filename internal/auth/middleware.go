package auth

import (
	"github.com/labstack/echo/v4"
)

// Context keys for storing the authenticated identity in the Echo context.
// Downstream handlers access them via the exported getters below.
const (
	contextKeyUser   = "auth_user"
	contextKeyUserID = "auth_user_id"
)

// RequireAuth returns middleware that resolves the access-token cookie
// against the session cache and injects the user into the request context.
// A request without a cookie, with a bad token, or whose session entry has
// been deleted does not pass.
func RequireAuth(service AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			accessToken := readCookie(c, accessCookieName)
			if accessToken == "" {
				return errUnauthenticated()
			}

			user, err := service.Authenticate(c.Request().Context(), accessToken)
			if err != nil {
				return err
			}

			c.Set(contextKeyUser, user)
			c.Set(contextKeyUserID, user.ID)

			return next(c)
		}
	}
}

// RequireRole returns middleware that allows only the listed roles through.
// Must run after RequireAuth on the same route.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := GetUser(c)
			if user == nil {
				return errUnauthenticated()
			}

			for _, role := range roles {
				if user.Role == role {
					return next(c)
				}
			}

			return errForbidden(user.Role)
		}
	}
}

// --- Exported getters for downstream handlers ---

// GetUser retrieves the authenticated user from the Echo context.
// Returns nil if the request is not authenticated (middleware not applied).
func GetUser(c echo.Context) *User {
	user, ok := c.Get(contextKeyUser).(*User)
	if !ok {
		return nil
	}
	return user
}

// GetUserID retrieves the authenticated user's ID from the Echo context.
// Returns empty string if the request is not authenticated.
func GetUserID(c echo.Context) string {
	id, ok := c.Get(contextKeyUserID).(string)
	if !ok {
		return ""
	}
	return id
}
