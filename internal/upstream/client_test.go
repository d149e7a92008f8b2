package upstream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portalkit/auth-portal/internal/core/domain"
	"github.com/portalkit/auth-portal/internal/core/ports"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(Options{BaseURL: srv.URL + "/api", Timeout: 5 * time.Second, Log: zerolog.Nop()})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func meOK(w http.ResponseWriter, role string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    map[string]any{"id": "u1", "email": "a@b.com", "username": "alice", "role": role},
	})
}

func TestClient_ConcurrentExpiry_SingleRefresh(t *testing.T) {
	const n = 8

	var (
		refreshCalls atomic.Int32
		staleHits    atomic.Int32
	)
	allExpired := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/me/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			if staleHits.Add(1) == n {
				close(allExpired)
			}
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		meOK(w, domain.RoleUser)
	})
	mux.HandleFunc("POST /api/auth/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		// Hold the refresh open until every request has failed once, so all
		// of them are queued on the coordinator before it resolves.
		<-allExpired
		writeJSON(w, http.StatusOK, map[string]string{"access": "fresh-token"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)
	c.RestoreTokens("stale-token", "refresh-1")

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Me(context.Background())
		}()
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "request %d", i)
	}
	assert.EqualValues(t, 1, refreshCalls.Load(), "exactly one refresh call expected")
	assert.EqualValues(t, n, staleHits.Load(), "every request should have failed once before refresh")
}

func TestClient_RetriedRequestStill401_PassesThrough(t *testing.T) {
	var refreshCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/me/", func(w http.ResponseWriter, r *http.Request) {
		// Token never satisfies this endpoint: the retry must fail through
		// rather than loop.
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "still no"})
	})
	mux.HandleFunc("POST /api/auth/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		writeJSON(w, http.StatusOK, map[string]string{"access": "fresh-token"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)
	c.RestoreTokens("stale-token", "refresh-1")

	_, err := c.Me(context.Background())
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusUnauthorized, ue.Status)
	assert.Equal(t, "still no", ue.Message)
	assert.EqualValues(t, 1, refreshCalls.Load())
}

func TestClient_RefreshFailure_RejectsEveryWaiter(t *testing.T) {
	const n = 5

	var staleHits atomic.Int32
	allExpired := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/me/", func(w http.ResponseWriter, r *http.Request) {
		if staleHits.Add(1) == n {
			close(allExpired)
		}
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("POST /api/auth/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		<-allExpired
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "refresh expired"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)
	c.RestoreTokens("stale-token", "refresh-1")

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Me(context.Background())
		}()
	}
	wg.Wait()

	for i, err := range errs {
		assert.ErrorIs(t, err, domain.ErrSessionExpired, "waiter %d must be rejected, not dropped", i)
	}
}

func TestClient_Login_CapturesTokens(t *testing.T) {
	var refreshCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["email"] != "a@b.com" || body["password"] != "x" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "Invalid credentials"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "refresh-1", Path: "/", HttpOnly: true})
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"user":    map[string]any{"id": "u1", "email": "a@b.com", "username": "alice", "role": "manager"},
			"tokens":  map[string]string{"access": "access-1", "refresh": "refresh-1"},
		})
	})
	mux.HandleFunc("GET /api/auth/me/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		meOK(w, domain.RoleManager)
	})
	mux.HandleFunc("POST /api/auth/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		writeJSON(w, http.StatusOK, map[string]string{"access": "access-2"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)

	user, err := c.Login(context.Background(), "a@b.com", "x")
	require.NoError(t, err)
	assert.Equal(t, "manager", user.Role)

	access, refresh := c.TokenSnapshot()
	assert.Equal(t, "access-1", access)
	assert.Equal(t, "refresh-1", refresh)

	// Follow-up request authenticates with the captured token; no refresh.
	_, err = c.Me(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0, refreshCalls.Load())
}

func TestClient_Login_BadCredentials_NoRefreshAttempt(t *testing.T) {
	var refreshCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "Invalid credentials"})
	})
	mux.HandleFunc("POST /api/auth/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		writeJSON(w, http.StatusOK, map[string]string{"access": "x"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)

	_, err := c.Login(context.Background(), "a@b.com", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.EqualValues(t, 0, refreshCalls.Load(), "a credential 401 must not trigger the refresh path")
}

func TestClient_Register(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register/", func(w http.ResponseWriter, r *http.Request) {
		var in ports.RegisterInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if in.Email == "taken@b.com" {
			writeJSON(w, http.StatusConflict, map[string]any{"success": false, "error": "user already exists"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"user":    map[string]any{"id": "u2", "email": in.Email, "username": in.Username, "role": "user"},
			"tokens":  map[string]string{"access": "access-9"},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)

	user, err := c.Register(context.Background(), ports.RegisterInput{
		Email: "new@b.com", Username: "new", Password: "pw12345678", PasswordConfirm: "pw12345678",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, user.Role)
	access, _ := c.TokenSnapshot()
	assert.Equal(t, "access-9", access)

	_, err = c.Register(context.Background(), ports.RegisterInput{Email: "taken@b.com", Username: "dup"})
	assert.ErrorIs(t, err, domain.ErrUserExists)
}

func TestClient_Logout_DropsCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/logout/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)
	c.RestoreTokens("access-1", "refresh-1")

	require.NoError(t, c.Logout(context.Background()))

	access, refresh := c.TokenSnapshot()
	assert.Empty(t, access)
	assert.Empty(t, refresh)
}

func TestClient_ListUsers_RefreshesOnExpiry(t *testing.T) {
	var refreshCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/users/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if got := r.URL.Query().Get("role"); got != "manager" {
			t.Errorf("unexpected role filter %q", got)
		}
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": "u1", "email": "m@b.com", "username": "mia", "role": "manager"},
		})
	})
	mux.HandleFunc("POST /api/auth/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		writeJSON(w, http.StatusOK, map[string]string{"access": "fresh-token"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)
	c.RestoreTokens("stale-token", "refresh-1")

	users, err := c.ListUsers(context.Background(), "manager")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "mia", users[0].Username)
	assert.EqualValues(t, 1, refreshCalls.Load())
}

func TestRefreshCoordinator_WaiterHonorsContext(t *testing.T) {
	rc := newRefreshCoordinator()

	release := make(chan struct{})
	go func() {
		_, _ = rc.Await(context.Background(), func(context.Context) (string, error) {
			<-release
			return "tok", nil
		})
	}()

	// Give the leader time to take the refreshing slot.
	require.Eventually(t, func() bool {
		rc.mu.Lock()
		defer rc.mu.Unlock()
		return rc.refreshing
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := rc.Await(ctx, func(context.Context) (string, error) { return "", nil })
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
}

func TestRefreshCoordinator_WaitersResumeInEnqueueOrder(t *testing.T) {
	rc := newRefreshCoordinator()

	release := make(chan struct{})
	leaderDone := make(chan error, 1)
	go func() {
		_, err := rc.Await(context.Background(), func(context.Context) (string, error) {
			<-release
			return "tok", nil
		})
		leaderDone <- err
	}()
	require.Eventually(t, func() bool {
		rc.mu.Lock()
		defer rc.mu.Unlock()
		return rc.refreshing
	}, time.Second, time.Millisecond)

	const n = 4
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := rc.Await(context.Background(), func(context.Context) (string, error) {
				t.Error("waiter must not start its own refresh")
				return "", nil
			})
			assert.NoError(t, err)
			assert.Equal(t, "tok", tok)
		}()
	}

	require.Eventually(t, func() bool {
		rc.mu.Lock()
		defer rc.mu.Unlock()
		return len(rc.waiters) == n
	}, time.Second, time.Millisecond)

	close(release)
	wg.Wait()
	require.NoError(t, <-leaderDone)

	rc.mu.Lock()
	defer rc.mu.Unlock()
	assert.False(t, rc.refreshing)
	assert.Empty(t, rc.waiters, "waiter queue must be cleared after a refresh resolves")
}

func TestClient_AccessTokenInfo(t *testing.T) {
	c, err := New(Options{BaseURL: "http://localhost:8000/api", Log: zerolog.Nop()})
	require.NoError(t, err)

	_, ok := c.AccessTokenInfo()
	assert.False(t, ok, "no token held yet")

	// Unsigned-style token built by hand is fine: decoding is unverified.
	c.RestoreTokens(testJWT(t, map[string]any{
		"user_id": "u1",
		"exp":     float64(1900000000),
		"iat":     float64(1890000000),
	}), "")

	info, ok := c.AccessTokenInfo()
	require.True(t, ok)
	assert.Equal(t, "u1", info.UserID)
	assert.Equal(t, int64(1900000000), info.ExpiresAt.Unix())
	assert.Equal(t, int64(1890000000), info.IssuedAt.Unix())
}

func testJWT(t *testing.T, claims map[string]any) string {
	t.Helper()
	b64 := func(v any) string {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		return base64.RawURLEncoding.EncodeToString(raw)
	}
	return b64(map[string]string{"alg": "HS256", "typ": "JWT"}) + "." + b64(claims) + ".sig"
}
