package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/portalkit/auth-portal/internal/api/middleware"
	"github.com/portalkit/auth-portal/internal/core/domain"
)

// PageHandler renders the portal's pages.
type PageHandler struct {
	log zerolog.Logger
}

func NewPageHandler(log zerolog.Logger) *PageHandler {
	return &PageHandler{log: log}
}

// Landing renders the public marketing page. It adapts to the session state
// but requires nothing.
func (h *PageHandler) Landing(c echo.Context) error {
	var state domain.SessionState
	if sess := middleware.CurrentSession(c); sess != nil {
		state = sess.State.Snapshot()
	}
	return c.Render(http.StatusOK, "landing.html", map[string]any{
		"Authenticated": state.IsAuthenticated,
		"User":          state.User,
	})
}

// dashboardView is the render model for the role-gated dashboard. Panels are
// switched on permissions, not raw roles, so the static permission table
// stays the single source of truth.
type dashboardView struct {
	User           *domain.User
	Notice         string
	TokenExpiry    time.Time
	ShowAdminPanel bool
	ShowUserPanel  bool
	CanManageRoles bool
	Users          []domain.User
	UsersError     string
	Roles          []string
}

// Dashboard renders the protected dashboard. The route is wrapped by the
// session guard, so an authenticated user is guaranteed here.
func (h *PageHandler) Dashboard(c echo.Context) error {
	sess := middleware.CurrentSession(c)
	user := sess.State.User()

	view := dashboardView{
		User:           user,
		Notice:         noticeText(c.QueryParam("notice")),
		ShowAdminPanel: domain.HasPermission(user, domain.PermViewAdminPanel),
		ShowUserPanel:  domain.HasPermission(user, domain.PermManageUsers),
		CanManageRoles: domain.HasPermission(user, domain.PermManageRoles),
		Roles:          domain.Roles,
	}
	if exp, ok := sess.API.TokenExpiry(); ok {
		view.TokenExpiry = exp
	}

	if view.ShowUserPanel {
		users, err := sess.API.ListUsers(c.Request().Context(), c.QueryParam("role"))
		switch {
		case errors.Is(err, domain.ErrSessionExpired):
			sess.Auth.Logout(c.Request().Context())
			return c.Redirect(http.StatusSeeOther, "/login")
		case err != nil:
			h.log.Warn().Err(err).Msg("user directory fetch failed")
			view.UsersError = "the user directory is currently unavailable"
		default:
			view.Users = users
		}
	}

	return c.Render(http.StatusOK, "dashboard.html", view)
}

func noticeText(code string) string {
	switch code {
	case "password-updated":
		return "Your password has been updated."
	case "role-updated":
		return "The user's role has been updated."
	default:
		return ""
	}
}
