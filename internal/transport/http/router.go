// Package httptransport is the thin HTTP layer over the issuance service.
// Handlers delegate to the service and never embed pipeline logic.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attestia/internal/platform/middleware"
)

// NewRouter wires the public endpoints with the shared middleware stack.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.ContentTypeJSON)

	r.Post("/credentials", h.handleCreate)
	r.Post("/credentials/batch", h.handleCreateBatch)
	r.Get("/credentials", h.handleList)
	r.Get("/credentials/{id}", h.handleGet)
	r.Post("/credentials/{id}/revoke", h.handleRevoke)
	r.Post("/credentials/{id}/refresh", h.handleRefresh)

	r.Post("/providers", h.handleRegisterProvider)
	r.Post("/templates", h.handleRegisterTemplate)
	r.Post("/data/fetch", h.handleFetchData)

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
