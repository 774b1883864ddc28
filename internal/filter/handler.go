package filter

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pdp/pkg/platform/httputil"
)

// Handler exposes the compile pipeline over HTTP.
type Handler struct {
	service *Service
	logger  *slog.Logger
	metrics *Metrics
}

func NewHandler(service *Service, logger *slog.Logger, metrics *Metrics) *Handler {
	return &Handler{service: service, logger: logger, metrics: metrics}
}

// Register mounts the filter routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/filter-resources", h.filterResources)
}

func (h *Handler) filterResources(w http.ResponseWriter, r *http.Request) {
	query, ok := httputil.Decode[ResourcesQuery](w, r, h.logger)
	if !ok {
		return
	}

	start := time.Now()
	result, err := h.service.FilterResources(r.Context(), query)
	h.metrics.ObserveLatency(time.Since(start))
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
