// Package server exposes the question-answering service over HTTP,
// WebSocket and MCP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xhad/tubeqa/internal/models"
	"github.com/xhad/tubeqa/internal/types"
	"github.com/xhad/tubeqa/pkg/logging"
	"github.com/xhad/tubeqa/pkg/qa"
)

const Version = "0.1.0"

// QA is the service the transports call into.
type QA interface {
	Ask(ctx context.Context, question string, n int) (*models.Answer, error)
	Stats(ctx context.Context) (*models.Stats, error)
	Health(ctx context.Context) qa.Health
}

type Config struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
}

type Server struct {
	qa     QA
	config Config
	logger *zap.Logger
	mcp    *MCPServer
	server *http.Server
}

func NewServer(svc QA, config Config, logger *zap.Logger) *Server {
	if config.Port == 0 {
		config.Port = 8000
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 120 * time.Second
	}
	logger = logging.OrNop(logger)
	return &Server{
		qa:     svc,
		config: config,
		logger: logger,
		mcp:    NewMCPServer(svc, logger),
	}
}

type askRequest struct {
	Question string `json:"question"`
	NResults int    `json:"n_results"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// Router builds the HTTP handler. Streaming endpoints sit outside the
// request timeout.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
		r.Get("/", s.handleRoot)
		r.Get("/health", s.handleHealth)
		r.Post("/ask", s.handleAsk)
		r.Get("/stats", s.handleStats)
	})

	r.Get("/ws", s.handleWebSocket)
	r.Handle("/mcp", s.mcp.HTTPHandler())

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	h := s.qa.Health(r.Context())
	s.respondJSON(w, http.StatusOK, map[string]any{
		"message":        "tubeqa: ask questions about video transcripts",
		"status":         "running",
		"database_ready": h.IndexReady,
		"llm_ready":      h.LLMReady,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.qa.Health(r.Context()))
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	s.logger.Debug("ask request", zap.String("question", req.Question), zap.Int("n_results", req.NResults))

	answer, err := s.qa.Ask(r.Context(), req.Question, req.NResults)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, answer)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.qa.Stats(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

// errorStatus maps the service error taxonomy onto HTTP.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, types.ErrIndexUnavailable):
		return http.StatusServiceUnavailable, "index_unavailable"
	case errors.Is(err, types.ErrGenerationUnavailable):
		return http.StatusServiceUnavailable, "generation_unavailable"
	case errors.Is(err, types.ErrNoRelevantContent):
		return http.StatusNotFound, "no_relevant_content"
	case errors.Is(err, types.ErrGeneration):
		return http.StatusBadGateway, "generation_error"
	case errors.Is(err, types.ErrEmbedderMismatch):
		return http.StatusConflict, "embedder_mismatch"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("error_code", code), zap.Error(err))
	}
	s.respondError(w, status, code, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response failed", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, detail string) {
	s.respondJSON(w, status, errorResponse{Error: code, Detail: detail})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
