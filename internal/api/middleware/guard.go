package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/portalkit/auth-portal/internal/core/domain"
)

// Guard gates a route behind authentication and, optionally, a role set.
//
// While the session's identity fetch is still in flight it renders a neutral
// loading page and takes no navigation decision. Once loaded: visitors
// without a session are redirected to the login screen; authenticated
// visitors whose role is not in allowedRoles get an access-denied page. An
// empty role set admits any authenticated visitor.
func Guard(allowedRoles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := CurrentSession(c)
			if h == nil {
				return c.Redirect(http.StatusSeeOther, "/login")
			}

			state := h.State.Snapshot()
			if state.IsLoading {
				c.Response().Header().Set("Refresh", "1")
				return c.Render(http.StatusOK, "loading.html", nil)
			}
			if !state.IsAuthenticated {
				return c.Redirect(http.StatusSeeOther, "/login")
			}
			if len(allowedRoles) > 0 && !domain.HasRole(state.User, allowedRoles...) {
				return c.Render(http.StatusForbidden, "denied.html", map[string]any{
					"Role": state.User.Role,
				})
			}
			return next(c)
		}
	}
}
