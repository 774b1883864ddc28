package enforcer

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pdp/pkg/pdperrors"
	"pdp/pkg/platform/httputil"
)

// HealthReporter exposes the statistics tracker's tripped flag.
type HealthReporter interface {
	Status() bool
}

// Handler exposes the check endpoints over HTTP.
type Handler struct {
	service *Service
	health  HealthReporter
	logger  *slog.Logger
}

func NewHandler(service *Service, health HealthReporter, logger *slog.Logger) *Handler {
	return &Handler{service: service, health: health, logger: logger}
}

// Register mounts the check routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/allowed", h.allowed)
	r.Post("/allowed_url", h.allowedURL)
	r.Post("/allowed/bulk", h.allowedBulk)
	r.Post("/allowed/all-tenants", h.allowedAllTenants)
	r.Post("/user-permissions", h.userPermissions)
	r.Post("/user-tenants", h.userTenants)
}

// RegisterHealth mounts the unauthenticated health routes.
func (h *Handler) RegisterHealth(r chi.Router) {
	r.Get("/healthy", h.healthy)
	r.Get("/ready", h.ready)
}

// allowed decodes a single check. A user field holding a JSON string is the
// legacy v1 shape; it is rejected outright, never reinterpreted.
func (h *Handler) allowed(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteError(w, r, h.logger,
			pdperrors.Wrap(pdperrors.CodeBadRequest, "read request body", err))
		return
	}

	var probe struct {
		User json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		httputil.WriteError(w, r, h.logger,
			pdperrors.Wrap(pdperrors.CodeBadRequest, "malformed request body", err))
		return
	}
	if isJSONString(probe.User) {
		httputil.WriteError(w, r, h.logger, pdperrors.New(
			pdperrors.CodeUnsupportedAPIVersion,
			"v1 requests are not supported, upgrade your client"))
		return
	}

	var query AuthorizationQuery
	if err := json.Unmarshal(body, &query); err != nil {
		httputil.WriteError(w, r, h.logger,
			pdperrors.Wrap(pdperrors.CodeBadRequest, "malformed request body", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.service.Allowed(r.Context(), query))
}

func (h *Handler) allowedURL(w http.ResponseWriter, r *http.Request) {
	query, ok := httputil.Decode[UrlAuthorizationQuery](w, r, h.logger)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.service.AllowedURL(r.Context(), query))
}

// allowedBulk accepts either a bare JSON array of checks or an object with a
// checks field.
func (h *Handler) allowedBulk(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteError(w, r, h.logger,
			pdperrors.Wrap(pdperrors.CodeBadRequest, "read request body", err))
		return
	}

	var checks []AuthorizationQuery
	if err := json.Unmarshal(body, &checks); err != nil {
		var wrapped struct {
			Checks []AuthorizationQuery `json:"checks"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			httputil.WriteError(w, r, h.logger,
				pdperrors.Wrap(pdperrors.CodeBadRequest, "malformed request body", err))
			return
		}
		checks = wrapped.Checks
	}
	httputil.WriteJSON(w, http.StatusOK, h.service.AllowedBulk(r.Context(), checks))
}

func (h *Handler) allowedAllTenants(w http.ResponseWriter, r *http.Request) {
	query, ok := httputil.Decode[AuthorizationQuery](w, r, h.logger)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.service.AllowedAllTenants(r.Context(), query))
}

func (h *Handler) userPermissions(w http.ResponseWriter, r *http.Request) {
	query, ok := httputil.Decode[UserPermissionsQuery](w, r, h.logger)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.service.UserPermissions(r.Context(), query))
}

func (h *Handler) userTenants(w http.ResponseWriter, r *http.Request) {
	query, ok := httputil.Decode[UserTenantsQuery](w, r, h.logger)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.service.UserTenants(r.Context(), query))
}

// healthy reports liveness; it flips to 503 once the statistics tracker
// trips.
func (h *Handler) healthy(w http.ResponseWriter, r *http.Request) {
	if h.health.Status() {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ready reports whether the policy engine answers.
func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	if err := h.service.EngineHealthy(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "engine not ready", "error", err)
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "engine unavailable"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func isJSONString(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '"'
}
