package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/filingdrift/internal/config"
	"github.com/dgallion1/filingdrift/internal/index"
	"github.com/dgallion1/filingdrift/internal/pipeline"
	"github.com/dgallion1/filingdrift/internal/stats"
	"github.com/dgallion1/filingdrift/internal/store"
)

// Server is the HTTP API server for filingdrift.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	db           *store.DB
	catalog      *index.Catalog
	latency      *stats.Latency
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, db *store.DB, latency *stats.Latency, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		db:           db,
		catalog:      index.NewCatalog(db),
		latency:      latency,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/ingest", s.handleIngest)
		r.Get("/api/ingest/{jobID}/status", s.handleJobStatus)
		r.Get("/api/stats/extraction", s.handleExtractionStats)

		r.Post("/api/tickers/{ticker}/similarity", s.handleSimilarity)
		r.Get("/api/tickers/{ticker}/documents", s.handleTickerDocuments)

		r.Get("/api/documents/{name}/sections", s.handleSections)
		r.Get("/api/documents/{name}/sections/{title}", s.handleSection)
		r.Get("/api/documents/{name}/search", s.handleSearch)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
