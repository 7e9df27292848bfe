// Package httpapi exposes the template service over REST.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/adverant/nexus/pdfplaceholder/internal/logging"
	"github.com/adverant/nexus/pdfplaceholder/internal/model"
	"github.com/adverant/nexus/pdfplaceholder/internal/templates"
)

// AsyncGenerator enqueues background generations. *queue.Producer satisfies it.
type AsyncGenerator interface {
	EnqueueGeneration(ctx context.Context, templateID string, replacements map[string]string, outputFilename string) (*model.GenerationJob, error)
}

// Options configures a Server.
type Options struct {
	Service *templates.Service
	// Async is nil when no queue is configured; generate-async then fails.
	Async AsyncGenerator
	// MaxFileSize bounds uploads in bytes.
	MaxFileSize int64
	// Health is merged into the /health response (OCR capability, queue stats).
	Health map[string]interface{}
}

// Server routes HTTP requests to the template service.
type Server struct {
	svc       *templates.Service
	async     AsyncGenerator
	maxUpload int64
	health    map[string]interface{}
	logger    *logging.Logger
	started   time.Time
}

// New creates a Server.
func New(opts Options) *Server {
	maxUpload := opts.MaxFileSize
	if maxUpload <= 0 {
		maxUpload = 50 << 20
	}
	return &Server{
		svc:       opts.Service,
		async:     opts.Async,
		maxUpload: maxUpload,
		health:    opts.Health,
		logger:    logging.NewLogger("HTTP"),
		started:   time.Now(),
	}
}

// Handler returns the routed handler wrapped with request logging and panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/pdf/upload", s.handleUpload)
	mux.HandleFunc("GET /api/pdf/list", s.handleListDocuments)
	mux.HandleFunc("GET /api/pdf/{id}/info", s.handleDocumentInfo)
	mux.HandleFunc("DELETE /api/pdf/{id}", s.handleDeleteDocument)
	mux.HandleFunc("POST /api/pdf/{id}/detect-text", s.handleDetectText)

	mux.HandleFunc("POST /api/templates/create", s.handleCreateTemplate)
	mux.HandleFunc("GET /api/templates/list", s.handleListTemplates)
	mux.HandleFunc("GET /api/templates/{id}", s.handleGetTemplate)
	mux.HandleFunc("DELETE /api/templates/{id}", s.handleDeleteTemplate)
	mux.HandleFunc("POST /api/templates/{id}/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/templates/{id}/generate-json", s.handleGenerateJSON)
	mux.HandleFunc("POST /api/templates/{id}/generate-async", s.handleGenerateAsync)
	mux.HandleFunc("POST /api/templates/{id}/apply", s.handleApply)
	mux.HandleFunc("POST /api/templates/{id}/detect", s.handleDetectAt)

	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /api/artifacts/{id}", s.handleGetArtifact)

	return s.recoverer(s.requestLogger(mux))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.logger.Error("Handler panicked", "method", r.Method, "path", r.URL.Path, "panic", v)
				s.writeJSON(w, http.StatusInternalServerError, errorBody{
					ErrorCode: "INTERNAL_ERROR",
					Message:   "internal server error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":           "healthy",
		"uptime_seconds":   int64(time.Since(s.started).Seconds()),
		"ocr_available":    s.svc.OCRAvailable(),
		"async_generation": s.async != nil,
		"storage":          s.svc.Files().Stats(),
	}
	for k, v := range s.health {
		resp[k] = v
	}

	if err := s.svc.Files().Store.Ping(r.Context()); err != nil {
		resp["status"] = "degraded"
		resp["storage_error"] = err.Error()
		s.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}
