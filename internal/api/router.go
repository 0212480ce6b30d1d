// Package api assembles the HTTP router.
package api

import (
	"net/http"
	"time"

	"github.com/dvloznov/subzap/internal/api/handlers"
	"github.com/dvloznov/subzap/internal/api/middleware"
	"github.com/dvloznov/subzap/internal/jobs"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Deps are the services the routes call into. Publisher and JobStore may be
// nil, in which case the job routes are not mounted.
type Deps struct {
	Ingestor  handlers.BatchIngestor
	Ledger    handlers.LedgerReader
	Scanner   handlers.ScanRunner
	Publisher jobs.Publisher
	JobStore  jobs.JobStore
	Log       zerolog.Logger

	// CORSOrigin is the allowed browser origin; empty allows any.
	CORSOrigin string
}

// NewRouter wires every endpoint behind the standard middleware chain.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(d.Log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Log))
	r.Use(middleware.CORS(d.CORSOrigin))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	candidates := handlers.NewCandidatesHandler(d.Ingestor, d.Log)
	transactions := handlers.NewTransactionsHandler(d.Ledger, d.Log)
	scans := handlers.NewScansHandler(d.Scanner, d.Log)

	r.Route("/api", func(r chi.Router) {
		r.Post("/candidates", candidates.IngestCandidates)

		r.Get("/transactions", transactions.ListTransactions)
		r.Get("/transactions/{id}", transactions.GetTransaction)

		r.Get("/subscriptions", scans.ListSubscriptions)
		r.Get("/findings", scans.ListFindings)

		if d.Publisher != nil && d.JobStore != nil {
			jobsHandler := handlers.NewJobsHandler(d.Publisher, d.JobStore, d.Log)
			r.Post("/jobs", jobsHandler.EnqueueIngest)
			r.Get("/jobs", jobsHandler.ListJobs)
			r.Get("/jobs/{id}", jobsHandler.GetJob)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}
