// ============================================================================
// voicebridge - Swedish speech processing
// ============================================================================
//
// Package:     server
// Description: HTTP server, routes and middleware
// License:     MIT
// ============================================================================

// Package server exposes the TTS and STT processors over HTTP and websocket.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/msto63/voicebridge/internal/history"
	"github.com/msto63/voicebridge/internal/stt"
	"github.com/msto63/voicebridge/internal/tts"
	"github.com/msto63/voicebridge/pkg/core/health"
	"github.com/msto63/voicebridge/pkg/core/logging"
)

// Synthesizer is the TTS side of the API
type Synthesizer interface {
	Synthesize(ctx context.Context, text, format string) (*tts.Result, error)
	Status(ctx context.Context) *tts.Status
}

// Transcriber is the STT side of the API
type Transcriber interface {
	DetectLanguage(ctx context.Context, buf []byte, format string, supported []string) (*stt.DetectionResult, error)
	TranscribeBuffer(ctx context.Context, buf []byte, format, targetLanguage string) (*stt.TranscriptionResult, error)
	Status() *stt.Status
}

// HistoryStore records and lists processed requests
type HistoryStore interface {
	history.Recorder
	List(ctx context.Context, filter history.Filter) ([]*history.Entry, error)
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxUploadBytes int64
	Version        string
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8090,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   330 * time.Second,
		MaxUploadBytes: 32 << 20,
		Version:        "1.0.0",
	}
}

// Deps are the collaborators served by the API. Any of them may be nil,
// in which case the matching routes answer 503.
type Deps struct {
	TTS     Synthesizer
	STT     Transcriber
	History HistoryStore
	Health  *health.Registry
	Logger  *logging.Logger
}

// Server is the voicebridge HTTP server
type Server struct {
	httpServer *http.Server
	handler    *Handler
	logger     *logging.Logger
	config     Config
}

// New creates a new server
func New(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.New("server")
	}
	if deps.Health == nil {
		deps.Health = health.NewRegistry("voicebridge", cfg.Version)
		deps.Health.Register(health.AlwaysHealthy("http"))
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultConfig().MaxUploadBytes
	}

	h := NewHandler(cfg, deps)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      h.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		httpServer: httpServer,
		handler:    h,
		logger:     deps.Logger,
		config:     cfg,
	}
}

// Routes builds the chi router
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", h.handleStatus)
		r.Post("/tts/synthesize", h.handleSynthesize)
		r.Post("/stt/transcribe", h.handleTranscribe)
		r.Post("/stt/detect-language", h.handleDetectLanguage)
		r.Get("/history", h.handleHistory)
		r.Get("/ws", NewWebSocketHandler(h).ServeHTTP)
	})

	return r
}

// loggingMiddleware logs one line per request with the chi request ID
func loggingMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Info("Starting voicebridge API", "host", s.config.Host, "port", s.config.Port)
	return s.httpServer.ListenAndServe()
}

// StartAsync starts the server in the background
func (s *Server) StartAsync() {
	s.logger.Info("Starting voicebridge API (async)", "host", s.config.Host, "port", s.config.Port)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping voicebridge API")
	return s.httpServer.Shutdown(ctx)
}

// Address returns the server address
func (s *Server) Address() string {
	return s.httpServer.Addr
}
