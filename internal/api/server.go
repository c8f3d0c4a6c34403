// Package api is the control-plane HTTP surface: validated CRUD over
// environments, audiences, experiments, variants, and allocations, the
// lifecycle state machine, and the publish triggers.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/variantflow/variantflow/internal/snapshot"
	"github.com/variantflow/variantflow/internal/store"
	"github.com/variantflow/variantflow/internal/telemetry"
)

// SnapshotPublisher compiles and publishes one environment's snapshot.
type SnapshotPublisher interface {
	Publish(ctx context.Context, environmentID string) (*snapshot.Snapshot, error)
}

// Server holds the control-plane HTTP handlers.
type Server struct {
	store     store.Store
	publisher SnapshotPublisher
	log       zerolog.Logger
}

// NewServer creates a control-plane server.
func NewServer(st store.Store, publisher SnapshotPublisher, log zerolog.Logger) *Server {
	return &Server{store: st, publisher: publisher, log: log}
}

// Router builds the chi router for the control plane.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))
	r.Use(telemetry.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/environments", s.handleCreateEnvironment)
		r.Get("/environments", s.handleListEnvironments)
		r.Get("/environments/{id}", s.handleGetEnvironment)

		r.Post("/audiences", s.handleCreateAudience)
		r.Get("/audiences", s.handleListAudiences)
		r.Get("/audiences/{id}", s.handleGetAudience)
		r.Patch("/audiences/{id}", s.handleUpdateAudience)
		r.Delete("/audiences/{id}", s.handleDeleteAudience)

		r.Post("/experiments", s.handleCreateExperiment)
		r.Get("/experiments", s.handleListExperiments)
		r.Get("/experiments/{id}", s.handleGetExperiment)
		r.Patch("/experiments/{id}", s.handleUpdateExperiment)
		r.Patch("/experiments/{id}/status", s.handleUpdateExperimentStatus)
		r.Delete("/experiments/{id}", s.handleDeleteExperiment)
		r.Post("/experiments/{id}/publish", s.handlePublishExperiment)

		r.Post("/experiments/{id}/variants", s.handleCreateVariant)
		r.Post("/experiments/{id}/variants/batch", s.handleVariantBatch)
		r.Patch("/experiments/{id}/variants/{variantID}", s.handleUpdateVariant)
		r.Delete("/experiments/{id}/variants/{variantID}", s.handleDeleteVariant)

		r.Put("/experiments/{id}/allocations", s.handleReplaceAllocations)
	})

	return r
}
