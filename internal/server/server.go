// Package server exposes the engine over HTTP: POST /index, POST /retrieve,
// and GET /healthz. The server owns (de)serialization and error-to-status
// mapping only; all semantics live in the engine.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/continue-ai-company/aa-rag/internal/config"
	"github.com/continue-ai-company/aa-rag/internal/engine"
	"github.com/continue-ai-company/aa-rag/internal/errors"
	"github.com/continue-ai-company/aa-rag/internal/store"
)

// Server is the aa-rag HTTP server.
type Server struct {
	engine *engine.Engine
	store  store.Store
	cfg    *config.Config
	logger *slog.Logger
	http   *http.Server
}

// New creates a Server. The config supplies the listen address and the
// retrieval defaults applied when a request omits them.
func New(cfg *config.Config, eng *engine.Engine, st store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine: eng,
		store:  st,
		cfg:    cfg,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /index", s.handleIndex)
	mux.HandleFunc("POST /retrieve", s.handleRetrieve)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           s.withMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the server's HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks serving requests until Shutdown or failure.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", slog.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// requestIDKey carries the per-request id through the context.
type requestIDKey struct{}

// withMiddleware adds request ids, access logging, and panic recovery.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		w.Header().Set("X-Request-Id", requestID)

		start := time.Now()
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panic",
					slog.String("request_id", requestID),
					slog.String("path", r.URL.Path),
					slog.Any("panic", rec))
				s.writeError(w, r, errors.InternalError("internal server error", nil))
				return
			}
			s.logger.Info("request",
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Duration("elapsed", time.Since(start)))
		}()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusForError maps an error code onto an HTTP status.
func statusForError(err error) int {
	switch errors.GetCategory(err) {
	case errors.CategoryConfig, errors.CategoryValidation:
		if errors.IsCode(err, errors.ErrCodeTableNotFound) {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case errors.CategoryStore:
		if errors.IsCode(err, errors.ErrCodeTableNotFound) {
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	case errors.CategoryEmbedder:
		if errors.IsCode(err, errors.ErrCodeRetrieveTimeout) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
