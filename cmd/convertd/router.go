// Package main provides the convertd API server.
package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/docmill/convertd/cmd/convertd/handlers"
	"github.com/docmill/convertd/cmd/convertd/middleware"
)

// NewRouter creates the API router with all routes configured.
func NewRouter(logger zerolog.Logger, jobs handlers.JobService, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(chimiddleware.Timeout(requestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"convertd"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ready"}`))
	})

	jobsHandler := handlers.NewJobsHandler(logger, jobs)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", jobsHandler.Create)
			r.Get("/status", jobsHandler.Status)
			r.Post("/{jobID}/begin", jobsHandler.Begin)
		})
	})

	return r
}
