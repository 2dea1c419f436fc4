package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	idgen "github.com/JakeFAU/stockwatch-monitor/internal/id/uuid"
	"github.com/JakeFAU/stockwatch-monitor/internal/metrics"
	"github.com/JakeFAU/stockwatch-monitor/internal/monitor"
)

// ServiceName is reported by /health.
const ServiceName = "stockwatch-monitor"

// lastCheckLayout is the display format for the last check time.
const lastCheckLayout = "2006-01-02 15:04:05"

// CountSource reports how many ids the seen store currently holds.
type CountSource interface {
	Count(ctx context.Context) int
}

// Options carries the static facts shown on the dashboard.
type Options struct {
	SourceURL       string
	PublicURL       string
	Interval        time.Duration
	RefreshSeconds  int
	TelegramEnabled bool
}

// Server wires HTTP handlers to the seen store. It never touches the
// monitor's in-memory state; counts come from the durable store.
type Server struct {
	router chi.Router
	counts CountSource
	clock  monitor.Clock
	idGen  monitor.IDGenerator
	opts   Options
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	counts CountSource,
	clock monitor.Clock,
	idGen monitor.IDGenerator,
	opts Options,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		counts: counts,
		clock:  clock,
		idGen:  idGen,
		opts:   opts,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(15 * time.Second))

	r.With(middleware.NoCache).Get("/", s.dashboard)
	r.Get("/health", s.health)
	r.With(middleware.NoCache).Get("/status", s.status)
	r.Handle("/metrics", metrics.Handler())

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

type healthResponse struct {
	Status         string `json:"status"`
	Service        string `json:"service"`
	Running        bool   `json:"running"`
	Timestamp      string `json:"timestamp"`
	UpdatesTracked int    `json:"updates_tracked"`
}

type statusResponse struct {
	Status           string `json:"status"`
	LastCheck        string `json:"last_check"`
	TotalUpdatesSeen int    `json:"total_updates_seen"`
	TelegramEnabled  bool   `json:"telegram_enabled"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		Service:        ServiceName,
		Running:        true,
		Timestamp:      s.clock.Now().Format(time.RFC3339),
		UpdatesTracked: s.count(r.Context()),
	})
}

// status reports the request time as last_check; the server does not share
// the scheduler's state.
func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, statusResponse{
		Status:           "running",
		LastCheck:        s.clock.Now().Format(lastCheckLayout),
		TotalUpdatesSeen: s.count(r.Context()),
		TelegramEnabled:  s.opts.TelegramEnabled,
	})
}

func (s *Server) count(ctx context.Context) int {
	if s.counts == nil {
		return 0
	}
	return s.counts.Count(ctx)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if !idgen.IsValid(reqID) {
			reqID = ""
		}
		if reqID == "" && s.idGen != nil {
			if id, err := s.idGen.NewID(); err == nil {
				reqID = id
			}
		}
		if reqID == "" {
			reqID = fmt.Sprintf("req-%d", time.Now().UnixNano())
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Debug("request completed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.String("request_id", requestIDFrom(r.Context())),
					zap.Any("error", rec),
				)
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
