// Package api wires the bot HTTP API together.
package api

import (
	"net/http"

	"github.com/algosec/algosec-go/internal/api/handler"
	"github.com/algosec/algosec-go/internal/api/middleware"
	"github.com/algosec/algosec-go/internal/auth"
	"github.com/algosec/algosec-go/internal/service"
	"github.com/algosec/algosec-go/internal/storage"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(
	store storage.Storage,
	requestService *service.RequestService,
	verifier *auth.Verifier,
	bootstrapToken string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging)

	// Health check (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// API routes (auth required, JSON Content-Type)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentType)
		r.Use(middleware.Auth(verifier, bootstrapToken))

		// Flow requests
		flowHandler := handler.NewFlowHandler(store, requestService)
		r.Post("/flows", flowHandler.Create)
		r.Get("/flows", flowHandler.List)
		r.Get("/flows/{id}", flowHandler.Get)

		// Change requests
		changeRequestHandler := handler.NewChangeRequestHandler(store, requestService)
		r.Post("/change-requests", changeRequestHandler.Create)
		r.Get("/change-requests", changeRequestHandler.List)
		r.Get("/change-requests/{id}", changeRequestHandler.Get)
		r.Get("/change-requests/{id}/ticket", changeRequestHandler.GetTicket)

		// Traffic simulation queries
		queryHandler := handler.NewQueryHandler(requestService)
		r.Post("/queries/traffic-simulation", queryHandler.Simulate)
	})

	return r
}
