package enforcer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"pdp/internal/cache"
	"pdp/internal/decisionlog"
	"pdp/internal/mapping"
	"pdp/internal/platform/config"
	"pdp/pkg/requestcontext"
)

// EngineClient is the slice of the engine client the enforcer needs.
type EngineClient interface {
	Query(ctx context.Context, path string, input any, out any) error
	Health(ctx context.Context) error
}

// StatsReporter feeds the decision statistics tracker.
type StatsReporter interface {
	ReportSuccess()
	ReportFailure()
}

// Service answers authorization checks. Engine failures never surface as
// errors: every query shape has a deny-biased fallback returned with a
// normal status, observable only through logs, metrics and the statistics
// tracker.
type Service struct {
	engine  EngineClient
	paths   config.Engine
	store   cache.Store
	ttl     time.Duration
	stats   StatsReporter
	sink    decisionlog.Sink
	matcher *mapping.Matcher
	logger  *slog.Logger
	metrics *Metrics
}

func NewService(
	engine EngineClient,
	paths config.Engine,
	store cache.Store,
	ttl time.Duration,
	stats StatsReporter,
	sink decisionlog.Sink,
	matcher *mapping.Matcher,
	logger *slog.Logger,
	metrics *Metrics,
) *Service {
	return &Service{
		engine:  engine,
		paths:   paths,
		store:   store,
		ttl:     ttl,
		stats:   stats,
		sink:    sink,
		matcher: matcher,
		logger:  logger,
		metrics: metrics,
	}
}

// EngineHealthy reports whether the policy engine answers its health check.
func (s *Service) EngineHealthy(ctx context.Context) error {
	return s.engine.Health(ctx)
}

var fallbackDebug = map[string]any{"reason": "policy engine unavailable"}

// Allowed answers a single check.
func (s *Service) Allowed(ctx context.Context, query AuthorizationQuery) AuthorizationResult {
	const endpoint = "allowed"
	var envelope struct {
		Allow bool           `json:"allow"`
		Debug map[string]any `json:"debug"`
	}
	source, err := s.fetch(ctx, endpoint, query, s.paths.RootPath, query, &envelope)
	if err != nil {
		s.record(ctx, endpoint, false, "fallback", query, fallbackDebug)
		return AuthorizationResult{Debug: fallbackDebug}
	}

	s.record(ctx, endpoint, envelope.Allow, source, query, envelope.Debug)
	return AuthorizationResult{
		Allow:  envelope.Allow,
		Result: envelope.Allow,
		Query: map[string]any{
			"user":     query.User.Key,
			"action":   query.Action,
			"resource": query.Resource.Type,
		},
		Debug: envelope.Debug,
	}
}

// AllowedURL resolves the URL through the mapping rule catalog and runs the
// synthesized check. No matching rule is a decision, not an error: the
// caller gets a structured deny without an engine call.
func (s *Service) AllowedURL(ctx context.Context, query UrlAuthorizationQuery) AuthorizationResult {
	rule, ok := s.matcher.Match(query.HTTPMethod, query.URL)
	if !ok {
		s.logger.InfoContext(ctx, "no mapping rule matched",
			"method", query.HTTPMethod,
			"url", query.URL)
		noMatch := map[string]any{"reason": "no mapping rule matched the request url"}
		s.record(ctx, "allowed_url", false, "static", AuthorizationQuery{User: query.User}, noMatch)
		return AuthorizationResult{Debug: noMatch}
	}

	attributes := mapping.ExtractPathAttributes(rule, query.URL)
	for key, value := range mapping.ExtractQueryAttributes(rule, query.URL) {
		attributes[key] = value
	}
	return s.Allowed(ctx, AuthorizationQuery{
		User:   query.User,
		Action: rule.ResourceAction(),
		Resource: Resource{
			Type:       rule.Resource,
			Tenant:     query.Tenant,
			Attributes: attributes,
		},
		Context: query.Context,
		SDK:     query.SDK,
	})
}

// AllowedBulk answers a list of checks in order. On engine failure every
// check falls back to deny.
func (s *Service) AllowedBulk(ctx context.Context, checks []AuthorizationQuery) BulkAuthorizationResult {
	const endpoint = "allowed/bulk"
	input := map[string]any{"checks": checks}
	var envelope struct {
		Allow []AuthorizationResult `json:"allow"`
	}
	source, err := s.fetch(ctx, endpoint, input, s.paths.BulkPath, input, &envelope)
	if err != nil {
		denied := make([]AuthorizationResult, len(checks))
		for i, check := range checks {
			denied[i] = AuthorizationResult{Debug: fallbackDebug}
			s.record(ctx, endpoint, false, "fallback", check, fallbackDebug)
		}
		return BulkAuthorizationResult{Allow: denied}
	}

	for i, check := range checks {
		allow := i < len(envelope.Allow) && envelope.Allow[i].Allow
		s.record(ctx, endpoint, allow, source, check, nil)
	}
	return BulkAuthorizationResult{Allow: envelope.Allow}
}

// AllowedAllTenants answers a check across every tenant the user belongs
// to.
func (s *Service) AllowedAllTenants(ctx context.Context, query AuthorizationQuery) AllTenantsAuthorizationResult {
	const endpoint = "allowed/all-tenants"
	var envelope struct {
		AllowedTenants []TenantAuthorizationResult `json:"allowed_tenants"`
	}
	source, err := s.fetch(ctx, endpoint, query, s.paths.AllTenantsPath, query, &envelope)
	if err != nil {
		s.record(ctx, endpoint, false, "fallback", query, fallbackDebug)
		return AllTenantsAuthorizationResult{AllowedTenants: []TenantAuthorizationResult{}}
	}

	s.record(ctx, endpoint, len(envelope.AllowedTenants) > 0, source, query, nil)
	if envelope.AllowedTenants == nil {
		envelope.AllowedTenants = []TenantAuthorizationResult{}
	}
	return AllTenantsAuthorizationResult{AllowedTenants: envelope.AllowedTenants}
}

// UserPermissions lists every permission the user holds, keyed by the
// granting object.
func (s *Service) UserPermissions(ctx context.Context, query UserPermissionsQuery) UserPermissionsResult {
	const endpoint = "user-permissions"
	var envelope struct {
		Permissions UserPermissionsResult `json:"permissions"`
	}
	source, err := s.fetch(ctx, endpoint, query, s.paths.UserPermissionsPath, query, &envelope)
	if err != nil {
		s.record(ctx, endpoint, false, "fallback", AuthorizationQuery{User: query.User}, fallbackDebug)
		return UserPermissionsResult{}
	}

	s.record(ctx, endpoint, len(envelope.Permissions) > 0, source, AuthorizationQuery{User: query.User}, nil)
	if envelope.Permissions == nil {
		envelope.Permissions = UserPermissionsResult{}
	}
	return envelope.Permissions
}

// UserTenants lists the tenants the user holds any permission in.
func (s *Service) UserTenants(ctx context.Context, query UserTenantsQuery) UserTenantsResult {
	const endpoint = "user-tenants"
	var tenants UserTenantsResult
	source, err := s.fetch(ctx, endpoint, query, s.paths.UserTenantsPath, query, &tenants)
	if err != nil {
		s.record(ctx, endpoint, false, "fallback", AuthorizationQuery{User: query.User}, fallbackDebug)
		return UserTenantsResult{}
	}

	s.record(ctx, endpoint, len(tenants) > 0, source, AuthorizationQuery{User: query.User}, nil)
	if tenants == nil {
		tenants = UserTenantsResult{}
	}
	return tenants
}

// fetch answers a query from the cache or the engine. The cache payload must
// include the acting user and every query-affecting field. Engine failures
// feed the statistics tracker and return the error for per-shape fallback;
// a request cancelled mid-flight skips the cache write.
func (s *Service) fetch(ctx context.Context, endpoint string, cachePayload any, path string, input any, out any) (string, error) {
	key, err := cache.Key(endpoint, cachePayload)
	if err != nil {
		s.logger.WarnContext(ctx, "uncacheable query", "endpoint", endpoint, "error", err)
		key = ""
	}

	if key != "" {
		data, hit, err := s.store.Get(ctx, key)
		switch {
		case err != nil:
			s.metrics.IncrementCacheLookup("error")
			s.logger.WarnContext(ctx, "cache lookup failed", "endpoint", endpoint, "error", err)
		case hit:
			if err := json.Unmarshal(data, out); err == nil {
				s.metrics.IncrementCacheLookup("hit")
				return "cache", nil
			}
			s.metrics.IncrementCacheLookup("error")
		default:
			s.metrics.IncrementCacheLookup("miss")
		}
	}

	start := time.Now()
	err = s.engine.Query(ctx, path, input, out)
	s.metrics.ObserveEngineLatency(endpoint, time.Since(start))
	if err != nil {
		s.stats.ReportFailure()
		s.logger.WarnContext(ctx, "engine query failed",
			"endpoint", endpoint,
			"path", path,
			"error", err)
		return "", err
	}
	s.stats.ReportSuccess()

	if key != "" && ctx.Err() == nil {
		if data, err := json.Marshal(out); err == nil {
			if err := s.store.Set(ctx, key, data, s.ttl); err != nil {
				s.logger.WarnContext(ctx, "cache write failed", "endpoint", endpoint, "error", err)
			}
		}
	}
	return "engine", nil
}

// record counts and logs one decision. Late results for cancelled requests
// are not logged.
func (s *Service) record(ctx context.Context, endpoint string, allow bool, source string, query AuthorizationQuery, debug map[string]any) {
	outcome := "deny"
	if allow {
		outcome = "allow"
	}
	s.metrics.IncrementDecision(endpoint, outcome, source)

	if ctx.Err() != nil {
		return
	}
	s.sink.Emit(ctx, decisionlog.Entry{
		Timestamp:    time.Now(),
		RequestID:    requestcontext.RequestID(ctx),
		ClientIP:     requestcontext.ClientIP(ctx),
		Endpoint:     endpoint,
		UserKey:      query.User.Key,
		Action:       query.Action,
		ResourceType: query.Resource.Type,
		Tenant:       query.Resource.Tenant,
		Allow:        allow,
		Source:       source,
		Debug:        debug,
	})
}
