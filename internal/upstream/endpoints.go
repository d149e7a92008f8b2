package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/portalkit/auth-portal/internal/core/domain"
	"github.com/portalkit/auth-portal/internal/core/ports"
)

// authEnvelope is the backend's response shape for auth operations.
type authEnvelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	User    *domain.User `json:"user,omitempty"`
	Tokens  *tokenPair   `json:"tokens,omitempty"`
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}

// Me asks the backend who the session belongs to, using the held access
// token. Any non-2xx outcome is treated by callers as "no session".
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var out authEnvelope
	if err := c.do(ctx, http.MethodGet, "/auth/me/", nil, &out); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, domain.ErrNotAuthenticated
	}
	return out.User, nil
}

// Login exchanges credentials for a session. The backend sets the refresh
// cookie on this response; the access token is taken from the JSON body.
func (c *Client) Login(ctx context.Context, email, password string) (*domain.User, error) {
	var out authEnvelope
	body := map[string]string{"email": email, "password": password}
	if err := c.doPublic(ctx, http.MethodPost, "/auth/login/", body, &out); err != nil {
		var ue *UpstreamError
		if errors.As(err, &ue) && ue.Status == http.StatusUnauthorized {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if !out.Success || out.User == nil {
		return nil, domain.ErrInvalidCredentials
	}
	if out.Tokens != nil {
		c.setAccessToken(out.Tokens.Access)
	}
	return out.User, nil
}

// Register creates an account. The backend signs the new user in on success,
// so tokens are captured exactly like Login.
func (c *Client) Register(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
	var out authEnvelope
	if err := c.doPublic(ctx, http.MethodPost, "/auth/register/", in, &out); err != nil {
		var ue *UpstreamError
		if errors.As(err, &ue) && ue.Status == http.StatusConflict {
			return nil, domain.ErrUserExists
		}
		return nil, err
	}
	if !out.Success || out.User == nil {
		return nil, &UpstreamError{Status: http.StatusBadRequest, Message: out.Message}
	}
	if out.Tokens != nil {
		c.setAccessToken(out.Tokens.Access)
	}
	return out.User, nil
}

// Logout invalidates the backend session and drops local credentials even
// when the backend call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/auth/logout/", nil, nil)
	c.setAccessToken("")
	c.jar.SetCookies(c.baseURL, []*http.Cookie{{
		Name:   refreshCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	}})
	return err
}

// Refresh mints a new access token from the refresh cookie, deduplicated
// through the same coordinator the 401 recovery path uses.
func (c *Client) Refresh(ctx context.Context) error {
	token, err := c.coord.Await(ctx, c.refreshCall)
	if err != nil {
		return err
	}
	c.setAccessToken(token)
	return nil
}

// refreshCall performs the actual refresh request. No bearer token is
// attached: the refresh cookie alone authorises the call, so an expired
// access token cannot poison it.
func (c *Client) refreshCall(ctx context.Context) (string, error) {
	var out refreshResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Post("/auth/token/refresh/")
	if err != nil {
		c.log.Debug().Err(err).Msg("token refresh transport failure")
		recordRefresh(false)
		return "", errors.Join(domain.ErrSessionExpired, err)
	}
	if !resp.IsSuccess() || out.Access == "" {
		recordRefresh(false)
		return "", domain.ErrSessionExpired
	}
	recordRefresh(true)
	return out.Access, nil
}

// ListUsers fetches all users, optionally filtered by role. The backend
// enforces that only managers and admins may call this.
func (c *Client) ListUsers(ctx context.Context, role string) ([]domain.User, error) {
	path := "/users/"
	if role != "" {
		path += "?role=" + url.QueryEscape(role)
	}
	var out []domain.User
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateRole changes another user's role. Admin only on the backend side.
func (c *Client) UpdateRole(ctx context.Context, userID, role string) (*domain.User, error) {
	var out authEnvelope
	body := map[string]string{"user_id": userID, "role": role}
	if err := c.do(ctx, http.MethodPost, "/users/role/", body, &out); err != nil {
		var ue *UpstreamError
		if errors.As(err, &ue) && ue.Status == http.StatusNotFound {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return out.User, nil
}

// ChangePassword rotates the caller's password.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	body := map[string]string{"old_password": oldPassword, "new_password": newPassword}
	var out authEnvelope
	return c.do(ctx, http.MethodPost, "/auth/password/", body, &out)
}
