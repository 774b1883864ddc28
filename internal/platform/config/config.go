// Package config builds the process-wide PDP configuration from the
// environment. The struct is constructed once in main and passed by reference
// into each component constructor; there are no ambient globals.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	strutil "pdp/pkg/platform/strings"
)

// Config captures every knob the sidecar reads at startup.
type Config struct {
	Addr string

	// APIKey is the static bearer token required on every decision endpoint.
	APIKey string
	// JWTSigningKey switches auth to HS256 JWT validation when non-empty.
	JWTSigningKey string

	Engine      Engine
	Cache       Cache
	Statistics  Statistics
	DecisionLog DecisionLog
	Filter      Filter

	// MappingRulesFile is a YAML catalog of URL mapping rules, loaded once.
	MappingRulesFile string
	// KongRoutesFile is a YAML catalog of Kong path-regex routes, loaded once.
	KongRoutesFile string
}

// Engine configures the policy engine (OPA) boundary.
type Engine struct {
	URL          string
	Token        string
	QueryTimeout time.Duration

	// Data-document paths per query shape.
	RootPath            string
	BulkPath            string
	AllTenantsPath      string
	UserPermissionsPath string
	UserTenantsPath     string
}

// Cache configures the decision cache.
type Cache struct {
	// Store selects the backend: "memory", "redis" or "none".
	Store string
	TTL   time.Duration

	Memory MemoryCache
	Redis  Redis
}

// MemoryCache holds the in-memory backend sizing knobs.
type MemoryCache struct {
	NumCounters int64
	MaxCost     int64
}

// Redis holds connection settings for the Redis cache backend.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Statistics configures the rolling failure tracker.
type Statistics struct {
	Enabled   bool
	Interval  time.Duration
	Threshold float64
	QueueSize int
}

// DecisionLog configures decision logging and the optional Kafka sink.
type DecisionLog struct {
	// Debug includes the raw engine debug payload in decision log entries.
	Debug bool

	KafkaBrokers []string
	KafkaTopic   string
}

// Filter configures the partial-evaluation compile pipeline.
type Filter struct {
	// Query is the rule path handed to the engine's compile API.
	Query string
	// Unknowns are the variable paths left unresolved during partial evaluation.
	Unknowns []string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Addr:          envStr("PDP_ADDR", ":7000"),
		APIKey:        os.Getenv("PDP_API_KEY"),
		JWTSigningKey: os.Getenv("PDP_JWT_SIGNING_KEY"),
		Engine: Engine{
			URL:                 envStr("PDP_OPA_URL", "http://localhost:8181"),
			Token:               os.Getenv("PDP_OPA_TOKEN"),
			QueryTimeout:        envDur("PDP_OPA_QUERY_TIMEOUT", time.Second),
			RootPath:            envStr("PDP_OPA_ROOT_PATH", "permit/root"),
			BulkPath:            envStr("PDP_OPA_BULK_PATH", "permit/bulk"),
			AllTenantsPath:      envStr("PDP_OPA_ALL_TENANTS_PATH", "permit/any_tenant"),
			UserPermissionsPath: envStr("PDP_OPA_USER_PERMISSIONS_PATH", "permit/user_permissions"),
			UserTenantsPath:     envStr("PDP_OPA_USER_TENANTS_PATH", "permit/user_permissions/tenants"),
		},
		Cache: Cache{
			Store: envStr("PDP_CACHE_STORE", "none"),
			TTL:   envDur("PDP_CACHE_TTL", time.Minute),
			Memory: MemoryCache{
				NumCounters: envInt64("PDP_CACHE_MEMORY_NUM_COUNTERS", 100_000),
				MaxCost:     envInt64("PDP_CACHE_MEMORY_MAX_COST", 64<<20),
			},
			Redis: Redis{
				URL:          os.Getenv("PDP_REDIS_URL"),
				PoolSize:     envIntVal("PDP_REDIS_POOL_SIZE", 10),
				MinIdleConns: envIntVal("PDP_REDIS_MIN_IDLE_CONNS", 2),
				DialTimeout:  envDur("PDP_REDIS_DIAL_TIMEOUT", 5*time.Second),
				ReadTimeout:  envDur("PDP_REDIS_READ_TIMEOUT", 3*time.Second),
				WriteTimeout: envDur("PDP_REDIS_WRITE_TIMEOUT", 3*time.Second),
			},
		},
		Statistics: Statistics{
			Enabled:   envBool("PDP_STATS_ENABLED", true),
			Interval:  envDur("PDP_STATS_INTERVAL", time.Minute),
			Threshold: envFloat("PDP_STATS_THRESHOLD", 0.1),
			QueueSize: envIntVal("PDP_STATS_QUEUE_SIZE", 1024),
		},
		DecisionLog: DecisionLog{
			Debug:        envBool("PDP_DECISION_LOG_DEBUG", true),
			KafkaBrokers: envList("PDP_DECISION_LOG_KAFKA_BROKERS"),
			KafkaTopic:   envStr("PDP_DECISION_LOG_KAFKA_TOPIC", "pdp-decisions"),
		},
		Filter: Filter{
			Query:    envStr("PDP_FILTER_QUERY", "data.permit.root.allow == true"),
			Unknowns: envListDefault("PDP_FILTER_UNKNOWNS", []string{"input.resource"}),
		},
		MappingRulesFile: os.Getenv("PDP_MAPPING_RULES_FILE"),
		KongRoutesFile:   os.Getenv("PDP_KONG_ROUTES_FILE"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envIntVal(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	return strutil.DedupeAndTrim(strings.Split(v, ","))
}

func envListDefault(key string, fallback []string) []string {
	if v := envList(key); len(v) > 0 {
		return v
	}
	return fallback
}
