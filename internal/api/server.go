package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/doctranslate/internal/config"
	"github.com/dgallion1/doctranslate/internal/format"
	"github.com/dgallion1/doctranslate/internal/pipeline"
	"github.com/dgallion1/doctranslate/internal/translator"
)

// StatsSource exposes the remote model and its call statistics.
type StatsSource interface {
	Model() string
	Stats() *translator.LatencyStats
}

// Server is the HTTP API server for doctranslate.
type Server struct {
	router  chi.Router
	service *pipeline.Service
	formats *format.Registry
	stats   StatsSource
	log     *slog.Logger
	cfg     config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(svc *pipeline.Service, formats *format.Registry, stats StatsSource, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		service: svc,
		formats: formats,
		stats:   stats,
		log:     log,
		cfg:     cfg,
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

		r.Post("/api/translate", s.handleTranslate)
		r.Post("/api/translate/batch", s.handleBatchTranslate)
		r.Get("/api/translate", s.handleListJobs)
		r.Get("/api/translate/{jobID}/status", s.handleStatus)
		r.Get("/api/translate/{jobID}/download", s.handleDownload)
		r.Delete("/api/translate/{jobID}", s.handleDeleteJob)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.service.QueueDepth(),
		"formats":     s.formats.Extensions(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
