package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type staticValidator struct {
	err error
}

func (v staticValidator) ValidateToken(string) error { return v.err }

func newHandler(v TokenValidator) http.Handler {
	logger := slog.New(slog.DiscardHandler)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return RequireAuth(v, logger)(next)
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/allowed", nil)

	newHandler(staticValidator{}).ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "unauthorized")
}

func TestRequireAuth_NonBearerScheme(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/allowed", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	newHandler(staticValidator{}).ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/allowed", nil)
	r.Header.Set("Authorization", "Bearer wrong")

	newHandler(staticValidator{err: errors.New("token mismatch")}).ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid PDP token")
}

func TestRequireAuth_ValidToken(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/allowed", nil)
	r.Header.Set("Authorization", "Bearer good")

	newHandler(staticValidator{}).ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}
