package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/portalkit/auth-portal/internal/api/middleware"
	"github.com/portalkit/auth-portal/internal/core/domain"
	"github.com/portalkit/auth-portal/internal/core/ports"
	"github.com/portalkit/auth-portal/internal/upstream"
)

// AuthHandler serves the login/register/logout forms and the account
// operations reachable from the dashboard.
type AuthHandler struct {
	log zerolog.Logger
}

func NewAuthHandler(log zerolog.Logger) *AuthHandler {
	return &AuthHandler{log: log}
}

type loginForm struct {
	Email    string `form:"email"    validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

type registerForm struct {
	Email           string `form:"email"            validate:"required,email"`
	Username        string `form:"username"         validate:"required,min=3"`
	Password        string `form:"password"         validate:"required,min=8"`
	PasswordConfirm string `form:"password_confirm" validate:"required,eqfield=Password"`
	FirstName       string `form:"first_name"`
	LastName        string `form:"last_name"`
}

type passwordForm struct {
	OldPassword        string `form:"old_password"         validate:"required"`
	NewPassword        string `form:"new_password"         validate:"required,min=8"`
	NewPasswordConfirm string `form:"new_password_confirm" validate:"required,eqfield=NewPassword"`
}

type roleForm struct {
	UserID string `form:"user_id" validate:"required"`
	Role   string `form:"role"    validate:"required,oneof=admin manager user"`
}

// LoginForm renders the sign-in page. Authenticated visitors are sent
// straight to the dashboard.
func (h *AuthHandler) LoginForm(c echo.Context) error {
	if sess := middleware.CurrentSession(c); sess != nil && sess.State.Snapshot().IsAuthenticated {
		return c.Redirect(http.StatusSeeOther, "/dashboard")
	}
	return c.Render(http.StatusOK, "login.html", map[string]any{"Error": "", "Email": ""})
}

// Login handles the sign-in form post. Backend failures re-render the form
// with the error; success navigates to the dashboard.
func (h *AuthHandler) Login(c echo.Context) error {
	var form loginForm
	if err := c.Bind(&form); err != nil {
		return c.Render(http.StatusBadRequest, "login.html", map[string]any{"Error": "invalid form submission", "Email": ""})
	}
	if err := c.Validate(&form); err != nil {
		return c.Render(http.StatusBadRequest, "login.html", map[string]any{
			"Error": err.Error(),
			"Email": form.Email,
		})
	}

	sess := middleware.CurrentSession(c)
	if err := sess.Auth.Login(c.Request().Context(), form.Email, form.Password); err != nil {
		return c.Render(http.StatusUnauthorized, "login.html", map[string]any{
			"Error": loginErrorText(err),
			"Email": form.Email,
		})
	}
	return c.Redirect(http.StatusSeeOther, "/dashboard")
}

// RegisterForm renders the account-creation page.
func (h *AuthHandler) RegisterForm(c echo.Context) error {
	if sess := middleware.CurrentSession(c); sess != nil && sess.State.Snapshot().IsAuthenticated {
		return c.Redirect(http.StatusSeeOther, "/dashboard")
	}
	return c.Render(http.StatusOK, "register.html", registerViewData("", registerForm{}))
}

// Register handles the account-creation form post. The password-confirmation
// equality check lives here, at the form layer.
func (h *AuthHandler) Register(c echo.Context) error {
	var form registerForm
	if err := c.Bind(&form); err != nil {
		return c.Render(http.StatusBadRequest, "register.html", registerViewData("invalid form submission", registerForm{}))
	}
	if err := c.Validate(&form); err != nil {
		return c.Render(http.StatusBadRequest, "register.html", registerViewData(err.Error(), form))
	}

	sess := middleware.CurrentSession(c)
	err := sess.Auth.Register(c.Request().Context(), ports.RegisterInput{
		Email:           form.Email,
		Username:        form.Username,
		Password:        form.Password,
		PasswordConfirm: form.PasswordConfirm,
		FirstName:       form.FirstName,
		LastName:        form.LastName,
	})
	if err != nil {
		return c.Render(http.StatusBadRequest, "register.html", registerViewData(registerErrorText(err), form))
	}
	return c.Redirect(http.StatusSeeOther, "/dashboard")
}

// Logout resets the session regardless of what the backend says and sends
// the visitor to the login screen.
func (h *AuthHandler) Logout(c echo.Context) error {
	if sess := middleware.CurrentSession(c); sess != nil {
		sess.Auth.Logout(c.Request().Context())
	}
	return c.Redirect(http.StatusSeeOther, "/login")
}

// ChangePassword rotates the signed-in user's password.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	var form passwordForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form submission")
	}
	if err := c.Validate(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sess := middleware.CurrentSession(c)
	err := sess.API.ChangePassword(c.Request().Context(), form.OldPassword, form.NewPassword)
	switch {
	case errors.Is(err, domain.ErrSessionExpired):
		sess.Auth.Logout(c.Request().Context())
		return c.Redirect(http.StatusSeeOther, "/login")
	case err != nil:
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/dashboard?notice=password-updated")
}

// UpdateRole changes another user's role. The route is guarded admin-only;
// the backend enforces the same rule independently.
func (h *AuthHandler) UpdateRole(c echo.Context) error {
	var form roleForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form submission")
	}
	if err := c.Validate(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sess := middleware.CurrentSession(c)
	if _, err := sess.API.UpdateRole(c.Request().Context(), form.UserID, form.Role); err != nil {
		if errors.Is(err, domain.ErrSessionExpired) {
			sess.Auth.Logout(c.Request().Context())
			return c.Redirect(http.StatusSeeOther, "/login")
		}
		return err
	}
	h.log.Info().Str("target", form.UserID).Str("role", form.Role).Msg("role updated")
	return c.Redirect(http.StatusSeeOther, "/dashboard?notice=role-updated")
}

// registerViewData fills every key the registration template reads so
// repopulated fields render cleanly.
func registerViewData(errMsg string, form registerForm) map[string]any {
	return map[string]any{
		"Error":     errMsg,
		"Email":     form.Email,
		"Username":  form.Username,
		"FirstName": form.FirstName,
		"LastName":  form.LastName,
	}
}

func loginErrorText(err error) string {
	if errors.Is(err, domain.ErrInvalidCredentials) {
		return "invalid email or password"
	}
	var ue *upstream.UpstreamError
	if errors.As(err, &ue) {
		return ue.Message
	}
	return "sign-in is currently unavailable, please try again"
}

func registerErrorText(err error) string {
	if errors.Is(err, domain.ErrUserExists) {
		return "an account with that email already exists"
	}
	var ue *upstream.UpstreamError
	if errors.As(err, &ue) {
		return ue.Message
	}
	return "registration is currently unavailable, please try again"
}
