package enforcer

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdp/internal/cache"
	"pdp/internal/decisionlog"
	"pdp/internal/engine"
	"pdp/internal/mapping"
	"pdp/internal/platform/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeStats struct {
	successes atomic.Int64
	failures  atomic.Int64
}

func (f *fakeStats) ReportSuccess() { f.successes.Add(1) }
func (f *fakeStats) ReportFailure() { f.failures.Add(1) }

type recordingSink struct {
	entries []decisionlog.Entry
}

func (r *recordingSink) Emit(_ context.Context, e decisionlog.Entry) {
	r.entries = append(r.entries, e)
}
func (r *recordingSink) Close(context.Context) error { return nil }

type engineStub struct {
	t       *testing.T
	results map[string]string // path -> result JSON
	inputs  map[string]json.RawMessage
	calls   atomic.Int64
}

func newEngineStub(t *testing.T, results map[string]string) (*engineStub, *httptest.Server) {
	stub := &engineStub{t: t, results: results, inputs: map[string]json.RawMessage{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusOK)
			return
		}
		stub.calls.Add(1)
		path := r.URL.Path
		var body struct {
			Input json.RawMessage `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		stub.inputs[path] = body.Input

		result, ok := stub.results[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":` + result + `}`))
	}))
	t.Cleanup(srv.Close)
	return stub, srv
}

type serviceEnv struct {
	service *Service
	stats   *fakeStats
	sink    *recordingSink
	stub    *engineStub
}

func newServiceEnv(t *testing.T, results map[string]string, rules []mapping.Rule) *serviceEnv {
	stub, srv := newEngineStub(t, results)
	return newServiceEnvAt(t, srv.URL, stub, rules, "none")
}

func newServiceEnvAt(t *testing.T, url string, stub *engineStub, rules []mapping.Rule, cacheStore string) *serviceEnv {
	log := testLogger()
	engineCfg := config.Engine{
		URL:                 url,
		QueryTimeout:        time.Second,
		RootPath:            "permit/root",
		BulkPath:            "permit/bulk",
		AllTenantsPath:      "permit/any_tenant",
		UserPermissionsPath: "permit/user_permissions",
		UserTenantsPath:     "permit/user_permissions/tenants",
	}
	store, err := cache.New(config.Cache{
		Store:  cacheStore,
		TTL:    time.Minute,
		Memory: config.MemoryCache{NumCounters: 1000, MaxCost: 1 << 20},
	})
	require.NoError(t, err)

	stats := &fakeStats{}
	sink := &recordingSink{}
	service := NewService(
		engine.New(engineCfg, log),
		engineCfg,
		store,
		time.Minute,
		stats,
		sink,
		mapping.NewMatcher(rules, log),
		log,
		nil,
	)
	return &serviceEnv{service: service, stats: stats, sink: sink, stub: stub}
}

func TestAllowed(t *testing.T) {
	env := newServiceEnv(t, map[string]string{
		"/v1/data/permit/root": `{"allow": true, "debug": {"warnings": []}}`,
	}, nil)

	result := env.service.Allowed(context.Background(), AuthorizationQuery{
		User:     User{Key: "u1"},
		Action:   "read",
		Resource: Resource{Type: "doc"},
	})

	assert.True(t, result.Allow)
	assert.True(t, result.Result)
	assert.Equal(t, int64(1), env.stats.successes.Load())
	require.Len(t, env.sink.entries, 1)
	assert.Equal(t, "allowed", env.sink.entries[0].Endpoint)
	assert.Equal(t, "u1", env.sink.entries[0].UserKey)
	assert.True(t, env.sink.entries[0].Allow)
	assert.Equal(t, "engine", env.sink.entries[0].Source)
}

func TestAllowedEngineFailureFallsBackToDeny(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	env := newServiceEnvAt(t, url, nil, nil, "none")
	result := env.service.Allowed(context.Background(), AuthorizationQuery{
		User:     User{Key: "u1"},
		Action:   "read",
		Resource: Resource{Type: "doc"},
	})

	assert.False(t, result.Allow)
	assert.False(t, result.Result)
	assert.Equal(t, int64(1), env.stats.failures.Load())
	require.Len(t, env.sink.entries, 1)
	assert.Equal(t, "fallback", env.sink.entries[0].Source)
}

func TestAllowedSendsCanonicalInput(t *testing.T) {
	env := newServiceEnv(t, map[string]string{
		"/v1/data/permit/root": `{"allow": false}`,
	}, nil)

	env.service.Allowed(context.Background(), AuthorizationQuery{
		User:     User{Key: "u1", Attributes: map[string]any{"dept": "eng"}},
		Action:   "read",
		Resource: Resource{Type: "doc", Tenant: "acme"},
	})

	var input AuthorizationQuery
	require.NoError(t, json.Unmarshal(env.stub.inputs["/v1/data/permit/root"], &input))
	assert.Equal(t, "u1", input.User.Key)
	assert.Equal(t, "read", input.Action)
	assert.Equal(t, "acme", input.Resource.Tenant)
}

func TestAllowedURLSynthesizesQuery(t *testing.T) {
	env := newServiceEnv(t, map[string]string{
		"/v1/data/permit/root": `{"allow": true}`,
	}, []mapping.Rule{
		{URL: "/files/{id}", HTTPMethod: "DELETE", Resource: "file", Action: "delete"},
	})

	result := env.service.AllowedURL(context.Background(), UrlAuthorizationQuery{
		User:       User{Key: "u1"},
		HTTPMethod: "DELETE",
		URL:        "/files/7",
		Tenant:     "default",
	})

	assert.True(t, result.Allow)
	var input AuthorizationQuery
	require.NoError(t, json.Unmarshal(env.stub.inputs["/v1/data/permit/root"], &input))
	assert.Equal(t, "delete", input.Action)
	assert.Equal(t, "file", input.Resource.Type)
	assert.Equal(t, "default", input.Resource.Tenant)
	assert.Equal(t, map[string]any{"id": "7"}, input.Resource.Attributes)
}

func TestAllowedURLBindsQueryPlaceholders(t *testing.T) {
	env := newServiceEnv(t, map[string]string{
		"/v1/data/permit/root": `{"allow": true}`,
	}, []mapping.Rule{
		{URL: "/reports/{id}?version={v}", HTTPMethod: "GET", Resource: "report", Action: "read"},
	})

	result := env.service.AllowedURL(context.Background(), UrlAuthorizationQuery{
		User:       User{Key: "u1"},
		HTTPMethod: "GET",
		URL:        "/reports/9?version=2&trace=on",
	})

	assert.True(t, result.Allow)
	var input AuthorizationQuery
	require.NoError(t, json.Unmarshal(env.stub.inputs["/v1/data/permit/root"], &input))
	assert.Equal(t, map[string]any{"id": "9", "v": "2"}, input.Resource.Attributes,
		"query attributes are keyed by placeholder name, unmapped params are dropped")
}

func TestAllowedURLNoMatchDeniesWithoutEngine(t *testing.T) {
	env := newServiceEnv(t, map[string]string{}, nil)

	result := env.service.AllowedURL(context.Background(), UrlAuthorizationQuery{
		User:       User{Key: "u1"},
		HTTPMethod: "GET",
		URL:        "/unmapped",
	})

	assert.False(t, result.Allow)
	assert.Contains(t, result.Debug["reason"], "no mapping rule")
	assert.Equal(t, int64(0), env.stub.calls.Load())
}

func TestAllowedBulk(t *testing.T) {
	env := newServiceEnv(t, map[string]string{
		"/v1/data/permit/bulk": `{"allow": [{"allow": true, "result": true}, {"allow": false, "result": false}]}`,
	}, nil)

	checks := []AuthorizationQuery{
		{User: User{Key: "u1"}, Action: "read", Resource: Resource{Type: "doc"}},
		{User: User{Key: "u1"}, Action: "write", Resource: Resource{Type: "doc"}},
	}
	result := env.service.AllowedBulk(context.Background(), checks)

	require.Len(t, result.Allow, 2)
	assert.True(t, result.Allow[0].Allow)
	assert.False(t, result.Allow[1].Allow)
	assert.Len(t, env.sink.entries, 2)
}

func TestAllowedBulkFallbackDeniesEveryCheck(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	env := newServiceEnvAt(t, url, nil, nil, "none")

	checks := []AuthorizationQuery{
		{User: User{Key: "u1"}, Action: "read", Resource: Resource{Type: "doc"}},
		{User: User{Key: "u1"}, Action: "write", Resource: Resource{Type: "doc"}},
		{User: User{Key: "u2"}, Action: "read", Resource: Resource{Type: "doc"}},
	}
	result := env.service.AllowedBulk(context.Background(), checks)

	require.Len(t, result.Allow, 3)
	for _, r := range result.Allow {
		assert.False(t, r.Allow)
		assert.NotEmpty(t, r.Debug["reason"])
	}
}

func TestAllowedAllTenants(t *testing.T) {
	env := newServiceEnv(t, map[string]string{
		"/v1/data/permit/any_tenant": `{"allowed_tenants": [
			{"tenant": {"key": "default", "attributes": {}}, "allow": true, "result": true}
		]}`,
	}, nil)

	result := env.service.AllowedAllTenants(context.Background(), AuthorizationQuery{
		User:     User{Key: "u1"},
		Action:   "read",
		Resource: Resource{Type: "doc"},
	})

	require.Len(t, result.AllowedTenants, 1)
	assert.Equal(t, "default", result.AllowedTenants[0].Tenant.Key)
	assert.True(t, result.AllowedTenants[0].Allow)
}

func TestAllTenantsFallbackIsEmptyList(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	env := newServiceEnvAt(t, url, nil, nil, "none")

	result := env.service.AllowedAllTenants(context.Background(), AuthorizationQuery{
		User: User{Key: "u1"}, Action: "read", Resource: Resource{Type: "doc"},
	})
	assert.NotNil(t, result.AllowedTenants)
	assert.Empty(t, result.AllowedTenants)
}

func TestUserPermissions(t *testing.T) {
	env := newServiceEnv(t, map[string]string{
		"/v1/data/permit/user_permissions": `{"permissions": {
			"document:doc-1": {
				"resource": {"key": "doc-1", "type": "document", "attributes": {}},
				"permissions": ["document:read"]
			}
		}}`,
	}, nil)

	result := env.service.UserPermissions(context.Background(), UserPermissionsQuery{
		User:          User{Key: "u1"},
		ResourceTypes: []string{"document"},
	})

	require.Contains(t, result, "document:doc-1")
	assert.Equal(t, []string{"document:read"}, result["document:doc-1"].Permissions)
}

func TestUserPermissionsFallbackIsEmptyMap(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	env := newServiceEnvAt(t, url, nil, nil, "none")

	result := env.service.UserPermissions(context.Background(), UserPermissionsQuery{User: User{Key: "u1"}})
	assert.NotNil(t, result)
	assert.Empty(t, result)
}

func TestUserTenants(t *testing.T) {
	env := newServiceEnv(t, map[string]string{
		"/v1/data/permit/user_permissions/tenants": `[{"key": "tenant-1", "attributes": {}}]`,
	}, nil)

	result := env.service.UserTenants(context.Background(), UserTenantsQuery{User: User{Key: "u1"}})
	require.Len(t, result, 1)
	assert.Equal(t, "tenant-1", result[0].Key)
}

func TestAllowedUsesCache(t *testing.T) {
	stub, srv := newEngineStub(t, map[string]string{
		"/v1/data/permit/root": `{"allow": true}`,
	})
	env := newServiceEnvAt(t, srv.URL, stub, nil, "memory")

	query := AuthorizationQuery{
		User: User{Key: "u1"}, Action: "read", Resource: Resource{Type: "doc"},
	}
	first := env.service.Allowed(context.Background(), query)
	require.True(t, first.Allow)
	require.Equal(t, int64(1), env.stub.calls.Load())

	// ristretto applies writes asynchronously
	require.Eventually(t, func() bool {
		env.service.Allowed(context.Background(), query)
		return env.sink.entries[len(env.sink.entries)-1].Source == "cache"
	}, time.Second, 10*time.Millisecond)

	cached := env.service.Allowed(context.Background(), query)
	assert.True(t, cached.Allow)
}

func TestCacheKeySeparatesUsers(t *testing.T) {
	stub, srv := newEngineStub(t, map[string]string{
		"/v1/data/permit/root": `{"allow": true}`,
	})
	env := newServiceEnvAt(t, srv.URL, stub, nil, "memory")

	env.service.Allowed(context.Background(), AuthorizationQuery{
		User: User{Key: "u1"}, Action: "read", Resource: Resource{Type: "doc"},
	})
	env.service.Allowed(context.Background(), AuthorizationQuery{
		User: User{Key: "u2"}, Action: "read", Resource: Resource{Type: "doc"},
	})

	assert.Equal(t, int64(2), env.stub.calls.Load(), "distinct users never share an entry")
}

func TestCancelledRequestSkipsDecisionLog(t *testing.T) {
	env := newServiceEnv(t, map[string]string{
		"/v1/data/permit/root": `{"allow": true}`,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	env.service.Allowed(ctx, AuthorizationQuery{
		User: User{Key: "u1"}, Action: "read", Resource: Resource{Type: "doc"},
	})
	assert.Empty(t, env.sink.entries)
}
