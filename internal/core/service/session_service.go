package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/portalkit/auth-portal/internal/api/metrics"
	"github.com/portalkit/auth-portal/internal/core/domain"
	"github.com/portalkit/auth-portal/internal/core/ports"
)

// SessionService drives the authentication lifecycle for one browser session.
// It owns the state transitions on a shared *domain.Session; the view layer
// only ever reads snapshots of that state.
//
// Failure semantics: Bootstrap and Logout absorb backend errors into state,
// Login and Register surface them to the caller, and a Refresh failure
// cascades into Logout.
type SessionService struct {
	api   ports.IdentityProvider
	state *domain.Session
	log   zerolog.Logger
}

func NewSessionService(api ports.IdentityProvider, state *domain.Session, log zerolog.Logger) *SessionService {
	return &SessionService{api: api, state: state, log: log}
}

// State returns a snapshot of the current session state.
func (s *SessionService) State() domain.SessionState {
	return s.state.Snapshot()
}

// Bootstrap performs the initial identity fetch. It never returns an error:
// any failure, including "no session", lands in the unauthenticated state.
func (s *SessionService) Bootstrap(ctx context.Context) {
	user, err := s.api.Me(ctx)
	if err != nil {
		s.log.Debug().Err(err).Msg("identity fetch failed, starting unauthenticated")
		s.state.SetUnauthenticated()
		return
	}
	s.state.SetAuthenticated(user)
}

// Login exchanges credentials for an authenticated session. On failure the
// error propagates to the caller and identity state is left unchanged.
func (s *SessionService) Login(ctx context.Context, email, password string) error {
	s.state.SetLoading(true)
	user, err := s.api.Login(ctx, email, password)
	if err != nil {
		s.state.SetLoading(false)
		metrics.LoginsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return err
	}
	s.state.SetAuthenticated(user)
	metrics.LoginsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	s.log.Info().Str("user", user.Email).Str("role", user.Role).Msg("login successful")
	return nil
}

// Register creates an account and, like Login, authenticates on success.
func (s *SessionService) Register(ctx context.Context, in ports.RegisterInput) error {
	s.state.SetLoading(true)
	user, err := s.api.Register(ctx, in)
	if err != nil {
		s.state.SetLoading(false)
		metrics.RegistrationsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return err
	}
	s.state.SetAuthenticated(user)
	metrics.RegistrationsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	s.log.Info().Str("user", user.Email).Msg("registration successful")
	return nil
}

// Logout tells the backend to invalidate the session, swallowing any error,
// and unconditionally resets local state to unauthenticated.
func (s *SessionService) Logout(ctx context.Context) {
	if err := s.api.Logout(ctx); err != nil {
		s.log.Warn().Err(err).Msg("backend logout failed, resetting state anyway")
	}
	s.state.SetUnauthenticated()
}

// RefreshToken asks the backend for a fresh access token. Failure is terminal
// for the session and cascades into Logout.
func (s *SessionService) RefreshToken(ctx context.Context) error {
	if err := s.api.Refresh(ctx); err != nil {
		s.log.Info().Err(err).Msg("token refresh failed, logging out")
		s.Logout(ctx)
		if errors.Is(err, domain.ErrSessionExpired) {
			return err
		}
		return domain.ErrSessionExpired
	}
	return nil
}
