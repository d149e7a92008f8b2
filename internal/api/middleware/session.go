package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/portalkit/auth-portal/internal/sessions"
)

const (
	// CookieName identifies the browser session.
	CookieName = "portal_sid"

	// SessionKey is the echo context key the handle is injected under.
	SessionKey = "portal_session"
)

// Session resolves the browser cookie to a session handle, creating a fresh
// session (and cookie) for unknown visitors, and injects the handle into the
// request context. Credentials are persisted after the handler runs so the
// snapshot store tracks token changes.
func Session(reg *sessions.Registry, secure bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			var h *sessions.Handle
			if ck, err := c.Cookie(CookieName); err == nil && ck.Value != "" {
				h = reg.Resolve(ctx, ck.Value)
			}
			if h == nil {
				var err error
				h, err = reg.Create(ctx)
				if err != nil {
					return echo.NewHTTPError(http.StatusServiceUnavailable, "session unavailable")
				}
				c.SetCookie(&http.Cookie{
					Name:     CookieName,
					Value:    h.ID,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			c.Set(SessionKey, h)

			err := next(c)
			reg.Persist(ctx, h)
			return err
		}
	}
}

// CurrentSession extracts the handle injected by Session. Nil when the
// middleware did not run.
func CurrentSession(c echo.Context) *sessions.Handle {
	h, _ := c.Get(SessionKey).(*sessions.Handle)
	return h
}
