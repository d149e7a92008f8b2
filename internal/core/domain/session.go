package domain

import "sync"

// SessionState is an immutable snapshot of a session at one point in time.
// Invariant: IsAuthenticated implies User != nil.
type SessionState struct {
	User            *User
	IsAuthenticated bool
	IsLoading       bool
}

// Session holds the mutable authentication state for one browser session:
// who the visitor is, whether they are authenticated, and whether an identity
// fetch is still in flight. It is the single shared state record read by the
// view layer; all mutation goes through the methods below.
type Session struct {
	mu              sync.RWMutex
	user            *User
	isAuthenticated bool
	isLoading       bool
}

// NewSession returns a session in the loading state: the initial identity
// fetch has not completed yet and no navigation decision may be taken.
func NewSession() *Session {
	return &Session{isLoading: true}
}

// Snapshot returns a consistent copy of the current state.
func (s *Session) Snapshot() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionState{
		User:            s.user,
		IsAuthenticated: s.isAuthenticated,
		IsLoading:       s.isLoading,
	}
}

// User returns the cached identity, or nil when unauthenticated.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// SetAuthenticated records a successful identity fetch or login and clears
// the loading flag. A nil user degrades to the unauthenticated state so the
// authenticated-implies-user invariant cannot be violated.
func (s *Session) SetAuthenticated(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u == nil {
		s.user = nil
		s.isAuthenticated = false
		s.isLoading = false
		return
	}
	s.user = u
	s.isAuthenticated = true
	s.isLoading = false
}

// SetUnauthenticated resets the session to the signed-out state.
func (s *Session) SetUnauthenticated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.isAuthenticated = false
	s.isLoading = false
}

// SetLoading toggles the loading flag without touching identity fields. Used
// while a login or register call is in flight.
func (s *Session) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isLoading = loading
}
