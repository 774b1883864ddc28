package gateway

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"pdp/internal/enforcer"
	"pdp/pkg/platform/httputil"
)

// Handler serves Kong's authorization callback.
type Handler struct {
	service *enforcer.Service
	routes  *RouteTable
	logger  *slog.Logger
}

func NewHandler(service *enforcer.Service, routes *RouteTable, logger *slog.Logger) *Handler {
	return &Handler{service: service, routes: routes, logger: logger}
}

// Register mounts the Kong route on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/kong", h.authorize)
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) {
	query, ok := httputil.Decode[KongQuery](w, r, h.logger)
	if !ok {
		return
	}

	input := query.Input
	if input.Consumer == nil || input.Consumer.Username == "" {
		h.logger.InfoContext(r.Context(), "kong request without consumer denied",
			"path", input.Request.HTTP.Path)
		httputil.WriteJSON(w, http.StatusOK, KongResult{})
		return
	}

	resource, ok := h.routes.Resolve(input.Request.HTTP.Path)
	if !ok {
		h.logger.InfoContext(r.Context(), "kong request without matching route denied",
			"consumer", input.Consumer.Username,
			"path", input.Request.HTTP.Path)
		httputil.WriteJSON(w, http.StatusOK, KongResult{})
		return
	}

	result := h.service.Allowed(r.Context(), enforcer.AuthorizationQuery{
		User:     enforcer.User{Key: input.Consumer.Username},
		Action:   strings.ToLower(input.Request.HTTP.Method),
		Resource: enforcer.Resource{Type: resource},
		SDK:      "kong",
	})
	httputil.WriteJSON(w, http.StatusOK, KongResult{Result: result.Allow})
}
