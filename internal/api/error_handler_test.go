package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/portalkit/auth-portal/internal/api/view"
	"github.com/portalkit/auth-portal/internal/core/domain"
)

func serveError(t *testing.T, err error, accept string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Renderer = view.MustRenderer()

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	if accept != "" {
		req.Header.Set(echo.HeaderAccept, accept)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	NewHTTPErrorHandler(zerolog.Nop())(err, c)
	return rec
}

func TestErrorHandler_DomainErrorStatusCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"invalid credentials", domain.ErrInvalidCredentials, http.StatusUnauthorized},
		{"session expired", domain.ErrSessionExpired, http.StatusUnauthorized},
		{"access denied", domain.ErrAccessDenied, http.StatusForbidden},
		{"user not found", domain.ErrUserNotFound, http.StatusNotFound},
		{"user exists", domain.ErrUserExists, http.StatusConflict},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serveError(t, tc.err, "")
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestErrorHandler_BrowserGetsErrorPage(t *testing.T) {
	rec := serveError(t, domain.ErrAccessDenied, "text/html,application/xhtml+xml")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Something went wrong")
	assert.Contains(t, rec.Body.String(), "access denied")
}

func TestErrorHandler_APIClientGetsJSON(t *testing.T) {
	rec := serveError(t, domain.ErrUserNotFound, "application/json")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"user not found"}`, rec.Body.String())
}

func TestErrorHandler_UnexpectedErrorIsNotLeaked(t *testing.T) {
	rec := serveError(t, errors.New("pq: secret dsn in message"), "application/json")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
	assert.Contains(t, rec.Body.String(), "internal server error")
}
