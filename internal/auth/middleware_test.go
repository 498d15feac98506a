package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

// invoke runs a middleware chain against a request carrying the given access
// token cookie and reports whether the wrapped handler ran.
func invoke(t *testing.T, mw echo.MiddlewareFunc, accessToken string, inspect func(c echo.Context)) (handlerRan bool, err error) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if accessToken != "" {
		req.AddCookie(&http.Cookie{Name: accessCookieName, Value: accessToken})
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := mw(func(c echo.Context) error {
		handlerRan = true
		if inspect != nil {
			inspect(c)
		}
		return c.NoContent(http.StatusOK)
	})

	return handlerRan, handler(c)
}

func TestRequireAuth_NoCookie(t *testing.T) {
	env := newTestEnv(t)

	ran, err := invoke(t, RequireAuth(env.svc), "", nil)
	if ran {
		t.Error("handler must not run without a cookie")
	}
	appErr := assertAppError(t, err, 401)
	if appErr.Message != "Please log in to access this resource" {
		t.Errorf("unexpected message: %s", appErr.Message)
	}
}

func TestRequireAuth_GarbageToken(t *testing.T) {
	env := newTestEnv(t)

	ran, err := invoke(t, RequireAuth(env.svc), "not-a-jwt", nil)
	if ran {
		t.Error("handler must not run with a garbage token")
	}
	assertAppError(t, err, 400)
}

func TestRequireAuth_ValidSession(t *testing.T) {
	env := newTestEnv(t)
	user := fixtureUser(t, "secure-password")
	pair := login(t, env, user)

	ran, err := invoke(t, RequireAuth(env.svc), pair.AccessToken, func(c echo.Context) {
		if got := GetUserID(c); got != user.ID {
			t.Errorf("GetUserID = %q, want %q", got, user.ID)
		}
		if got := GetUser(c); got == nil || got.Email != user.Email {
			t.Errorf("GetUser = %+v, want user %s", got, user.Email)
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Fatal("handler should have run")
	}
}

func TestRequireAuth_RevokedSession(t *testing.T) {
	env := newTestEnv(t)
	user := fixtureUser(t, "secure-password")
	pair := login(t, env, user)

	if err := env.sessions.Delete(t.Context(), user.ID); err != nil {
		t.Fatalf("deleting session: %v", err)
	}

	ran, err := invoke(t, RequireAuth(env.svc), pair.AccessToken, nil)
	if ran {
		t.Error("handler must not run after the session was revoked")
	}
	assertAppError(t, err, 401)
}

func TestRequireRole(t *testing.T) {
	withUser := func(role string) echo.MiddlewareFunc {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				c.Set(contextKeyUser, &User{ID: "user-1", Role: role})
				return next(c)
			}
		}
	}

	e := echo.New()
	run := func(role string, mw echo.MiddlewareFunc) (bool, error) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		ran := false
		handler := withUser(role)(mw(func(c echo.Context) error {
			ran = true
			return c.NoContent(http.StatusOK)
		}))
		return ran, handler(c)
	}

	// Matching role passes.
	ran, err := run("admin", RequireRole("admin"))
	if err != nil || !ran {
		t.Fatalf("admin should pass: ran=%v err=%v", ran, err)
	}

	// Non-matching role is rejected with the role in the message.
	ran, err = run("user", RequireRole("admin"))
	if ran {
		t.Error("user must not pass an admin gate")
	}
	appErr := assertAppError(t, err, 403)
	if appErr.Message != "Role: user is not allowed to access this resource" {
		t.Errorf("unexpected message: %s", appErr.Message)
	}

	// Any of several allowed roles passes.
	ran, err = run("moderator", RequireRole("admin", "moderator"))
	if err != nil || !ran {
		t.Fatalf("moderator should pass: ran=%v err=%v", ran, err)
	}
}

func TestRequireRole_NoUserInContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := RequireRole("admin")(func(c echo.Context) error {
		t.Fatal("handler must not run without an authenticated user")
		return nil
	})

	assertAppError(t, handler(c), 401)
}
