package ports

import (
	"context"

	"github.com/portalkit/auth-portal/internal/core/domain"
)

// RegisterInput carries the account-creation form to the backend. Password
// and PasswordConfirm equality is checked at the form layer, not here.
type RegisterInput struct {
	Email           string `json:"email"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
}

// IdentityProvider is the portal's view of the remote auth backend. One
// instance serves one browser session and carries that session's credentials.
type IdentityProvider interface {
	// Me asks "who am I" using the session's ambient credentials.
	Me(ctx context.Context) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*domain.User, error)
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	// Logout invalidates the backend session. Best effort.
	Logout(ctx context.Context) error
	// Refresh mints a new access token from the refresh cookie.
	Refresh(ctx context.Context) error

	// ListUsers returns all users, optionally filtered by role.
	// Manager/admin only on the backend side.
	ListUsers(ctx context.Context, role string) ([]domain.User, error)
	// UpdateRole changes another user's role. Admin only on the backend side.
	UpdateRole(ctx context.Context, userID, role string) (*domain.User, error)
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
}
