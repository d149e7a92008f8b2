package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portalkit/auth-portal/internal/core/domain"
	"github.com/portalkit/auth-portal/internal/core/ports"
)

// stubClient satisfies Client; Me succeeds only with the "valid" access token.
type stubClient struct {
	access  string
	refresh string
}

func (s *stubClient) Me(ctx context.Context) (*domain.User, error) {
	if s.access != "valid" {
		return nil, domain.ErrNotAuthenticated
	}
	return &domain.User{ID: "u1", Email: "a@b.com", Role: domain.RoleUser}, nil
}

func (s *stubClient) Login(ctx context.Context, email, password string) (*domain.User, error) {
	return nil, domain.ErrInvalidCredentials
}

func (s *stubClient) Register(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
	return nil, domain.ErrInvalidCredentials
}

func (s *stubClient) Logout(ctx context.Context) error {
	s.access, s.refresh = "", ""
	return nil
}

func (s *stubClient) Refresh(ctx context.Context) error { return domain.ErrSessionExpired }

func (s *stubClient) ListUsers(ctx context.Context, role string) ([]domain.User, error) {
	return nil, nil
}

func (s *stubClient) UpdateRole(ctx context.Context, userID, role string) (*domain.User, error) {
	return nil, nil
}

func (s *stubClient) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	return nil
}

func (s *stubClient) TokenSnapshot() (string, string)      { return s.access, s.refresh }
func (s *stubClient) RestoreTokens(access, refresh string) { s.access, s.refresh = access, refresh }
func (s *stubClient) TokenExpiry() (time.Time, bool)       { return time.Time{}, false }

func stubFactory(clients *[]*stubClient) ClientFactory {
	return func() (Client, error) {
		c := &stubClient{}
		*clients = append(*clients, c)
		return c, nil
	}
}

func TestRegistry_Create_BootstrapsInBackground(t *testing.T) {
	var clients []*stubClient
	r := NewRegistry(stubFactory(&clients), Options{Log: zerolog.Nop()})

	h, err := r.Create(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, h.ID)

	require.Eventually(t, func() bool {
		return !h.State.Snapshot().IsLoading
	}, time.Second, time.Millisecond, "bootstrap must resolve the loading state")

	got := h.State.Snapshot()
	assert.False(t, got.IsAuthenticated, "no credentials means unauthenticated")
	assert.Nil(t, got.User)
}

func TestRegistry_Resolve_KnownAndUnknown(t *testing.T) {
	var clients []*stubClient
	r := NewRegistry(stubFactory(&clients), Options{Log: zerolog.Nop()})

	h, err := r.Create(context.Background())
	require.NoError(t, err)

	assert.Same(t, h, r.Resolve(context.Background(), h.ID))
	assert.Nil(t, r.Resolve(context.Background(), "no-such-session"))
}

func TestRegistry_EvictIdle(t *testing.T) {
	var clients []*stubClient
	r := NewRegistry(stubFactory(&clients), Options{TTL: time.Minute, Log: zerolog.Nop()})

	h1, err := r.Create(context.Background())
	require.NoError(t, err)
	h2, err := r.Create(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, r.Len())

	// h2 stays fresh relative to the sweep time below; h1 goes idle.
	r.mu.Lock()
	r.handles[h2.ID].lastSeen = time.Now().Add(80 * time.Second)
	r.mu.Unlock()

	evicted := r.evictIdle(time.Now().Add(90 * time.Second))
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, r.Len())
	assert.Nil(t, r.Resolve(context.Background(), h1.ID))
	assert.Same(t, h2, r.Resolve(context.Background(), h2.ID))
}
