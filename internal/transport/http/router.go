// Package httptransport assembles the service's HTTP surface: check
// endpoints, the compile pipeline, the Kong adapter, health and metrics.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pdp/internal/enforcer"
	"pdp/internal/filter"
	"pdp/internal/gateway"
	"pdp/pkg/platform/middleware/auth"
	"pdp/pkg/platform/middleware/metadata"
	"pdp/pkg/platform/middleware/request"
)

// Deps carries everything the router mounts.
type Deps struct {
	Enforcer  *enforcer.Handler
	Filter    *filter.Handler
	Gateway   *gateway.Handler
	Validator auth.TokenValidator
	Logger    *slog.Logger
}

// NewRouter wires the full surface. Health and metrics stay outside the
// bearer-token middleware; everything else requires a valid token.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)

	deps.Enforcer.RegisterHealth(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(deps.Validator, deps.Logger))
		deps.Enforcer.Register(r)
		deps.Filter.Register(r)
		deps.Gateway.Register(r)
	})

	return r
}
