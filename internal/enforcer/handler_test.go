package enforcer

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHealth struct {
	tripped bool
}

func (s *stubHealth) Status() bool { return s.tripped }

func newTestRouter(t *testing.T, env *serviceEnv, health *stubHealth) http.Handler {
	t.Helper()
	if health == nil {
		health = &stubHealth{}
	}
	h := NewHandler(env.service, health, testLogger())
	r := chi.NewRouter()
	h.Register(r)
	h.RegisterHealth(r)
	return r
}

func post(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerAllowed(t *testing.T) {
	env := newServiceEnv(t, map[string]string{
		"/v1/data/permit/root": `{"allow": true}`,
	}, nil)
	router := newTestRouter(t, env, nil)

	rec := post(t, router, "/allowed",
		`{"user": {"key": "u1"}, "action": "read", "resource": {"type": "doc"}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"allow": true,
		"result": true,
		"query": {"user": "u1", "action": "read", "resource": "doc"}
	}`, rec.Body.String())
}

func TestHandlerAllowedRejectsV1Shape(t *testing.T) {
	env := newServiceEnv(t, map[string]string{}, nil)
	router := newTestRouter(t, env, nil)

	rec := post(t, router, "/allowed",
		`{"user": "u1", "action": "read", "resource": {"type": "doc"}}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported_api_version")
	assert.Equal(t, int64(0), env.stub.calls.Load(), "v1 requests never reach the engine")
}

func TestHandlerAllowedMalformedBody(t *testing.T) {
	env := newServiceEnv(t, map[string]string{}, nil)
	router := newTestRouter(t, env, nil)

	rec := post(t, router, "/allowed", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerBulkAcceptsBareArray(t *testing.T) {
	env := newServiceEnv(t, map[string]string{
		"/v1/data/permit/bulk": `{"allow": [{"allow": true, "result": true}]}`,
	}, nil)
	router := newTestRouter(t, env, nil)

	rec := post(t, router, "/allowed/bulk",
		`[{"user": {"key": "u1"}, "action": "read", "resource": {"type": "doc"}}]`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"allow": [{"allow": true, "result": true}]}`, rec.Body.String())
}

func TestHandlerBulkAcceptsChecksObject(t *testing.T) {
	env := newServiceEnv(t, map[string]string{
		"/v1/data/permit/bulk": `{"allow": [{"allow": false, "result": false}]}`,
	}, nil)
	router := newTestRouter(t, env, nil)

	rec := post(t, router, "/allowed/bulk",
		`{"checks": [{"user": {"key": "u1"}, "action": "read", "resource": {"type": "doc"}}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"allow": [{"allow": false, "result": false}]}`, rec.Body.String())
}

func TestHandlerEngineFailureStaysHTTP200(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	env := newServiceEnvAt(t, url, nil, nil, "none")
	router := newTestRouter(t, env, nil)

	rec := post(t, router, "/allowed",
		`{"user": {"key": "u1"}, "action": "read", "resource": {"type": "doc"}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"allow":false`)
	assert.Contains(t, rec.Body.String(), `"result":false`)
}

func TestHandlerHealthy(t *testing.T) {
	env := newServiceEnv(t, map[string]string{}, nil)

	router := newTestRouter(t, env, &stubHealth{tripped: false})
	req := httptest.NewRequest(http.MethodGet, "/healthy", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	router = newTestRouter(t, env, &stubHealth{tripped: true})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandlerReady(t *testing.T) {
	stub, srv := newEngineStub(t, nil)
	env := newServiceEnvAt(t, srv.URL, stub, nil, "none")
	router := newTestRouter(t, env, nil)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
