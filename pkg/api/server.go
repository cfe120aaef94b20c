// Package api serves the memory store over a small REST surface for the
// local web UI and scripting, alongside health, stats and Prometheus
// endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/harun/mnemo/internal/observability"
	"github.com/harun/mnemo/internal/tracing"
	"github.com/harun/mnemo/pkg/memory"
	"github.com/rs/zerolog"
)

// Server is the REST API server
type Server struct {
	options        Options
	server         *http.Server
	store          *memory.Store
	rateLimiter    *RateLimiter
	logger         zerolog.Logger
	startTime      time.Time
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// NewServer creates the API server around the memory store.
func NewServer(options Options, store *memory.Store, logger zerolog.Logger) (*Server, error) {
	if options.Port == 0 {
		options.Port = 6277
	}
	if options.Host == "" {
		options.Host = "127.0.0.1"
	}
	if options.RateLimitPerMinute == 0 {
		options.RateLimitPerMinute = 120
	}
	if options.SearchLimit == 0 {
		options.SearchLimit = 10
	}
	if options.SearchThreshold == 0 {
		options.SearchThreshold = 0.5
	}
	if store == nil {
		return nil, fmt.Errorf("memory store is required")
	}

	observability.EnsureRegistered()

	return &Server{
		options:     options,
		store:       store,
		rateLimiter: NewRateLimiter(options.RateLimitPerMinute),
		logger:      logger,
		startTime:   time.Now(),
	}, nil
}

// Start starts the API server and blocks until it is shut down.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler: s.routes(),
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	return nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", observability.MetricsHandler().ServeHTTP)
	mux.Handle("GET /api/stats", s.wrap("/api/stats", s.handleStats))
	mux.Handle("GET /api/memories", s.wrap("/api/memories", s.handleList))
	mux.Handle("GET /api/memories/search", s.wrap("/api/memories/search", s.handleSearch))
	mux.Handle("POST /api/memories", s.wrap("/api/memories", s.handleCreate))
	mux.Handle("PUT /api/memories/{id}", s.wrap("/api/memories/{id}", s.handleUpdate))
	mux.Handle("DELETE /api/memories/{id}", s.wrap("/api/memories/{id}", s.handleDelete))

	return mux
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down API server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	s.rateLimiter.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown API server: %w", err)
		}
	}

	s.logger.Info().Msg("API server stopped")
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// wrap applies shutdown refusal, in-flight tracking, rate limiting, request
// identification, logging and metrics around a handler. The pattern is the
// route template, so metrics do not explode per id.
func (s *Server) wrap(pattern string, handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
			return
		}
		s.shutdownMu.RUnlock()

		s.inFlightReqs.Add(1)
		defer s.inFlightReqs.Done()

		ip := s.getClientIP(r)
		if !s.rateLimiter.Allow(ip) {
			retryAfter := s.rateLimiter.RetryAfter(ip)
			s.logger.Warn().
				Str("ip", ip).
				Str("path", r.URL.Path).
				Int("retryAfter", retryAfter).
				Msg("Rate limit exceeded")

			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		ctx := tracing.NewRequestContext(r.Context())
		w.Header().Set("X-Request-ID", tracing.GetRequestID(ctx))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(rec, r.WithContext(ctx))

		duration := time.Since(startTime)
		observability.RecordHTTPRequest(pattern, r.Method, rec.status, duration)

		reqLogger := tracing.LoggerFromContext(ctx, s.logger)
		reqLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("ip", ip).
			Int("status", rec.status).
			Dur("duration", duration).
			Msg("API request completed")
	})
}

// getClientIP extracts the client IP from the request
func (s *Server) getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:     "ok",
		Uptime:     time.Since(s.startTime).Seconds(),
		ModelReady: s.store != nil && s.modelReady(r.Context()),
		Timestamp:  time.Now().UnixMilli(),
	})
}

func (s *Server) modelReady(ctx context.Context) bool {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return false
	}
	return stats.ModelReady
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Status: "error", Message: message})
}
