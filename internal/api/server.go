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
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/tagrelay/internal/metrics"
	"github.com/JakeFAU/tagrelay/internal/stream"
	"github.com/JakeFAU/tagrelay/internal/supervisor"
)

const (
	defaultKeepAlive     = 15 * time.Second
	defaultShutdownDelay = 150 * time.Millisecond
	controlTimeout       = 60 * time.Second
)

// Controller is the supervisor surface the handlers drive.
type Controller interface {
	Start(ctx context.Context, mode supervisor.Mode) (int, error)
	Stop(ctx context.Context) bool
	CompleteLogin() error
	Status(ctx context.Context) supervisor.Status
	SetHighlight(input string, persist bool) ([]string, error)
	ApplyEnv(ctx context.Context, patch map[string]string) (map[string]string, error)
	PushOverlay(in supervisor.OverlayInput) (supervisor.OverlayMessage, error)
	Shutdown(ctx context.Context)
	Logs() *stream.Hub[string]
	Overlay() *stream.Hub[supervisor.OverlayMessage]
}

// Options tunes the server. Zero values pick the defaults.
type Options struct {
	// ThemeCSSPath is inlined into the overlay page when the file exists.
	ThemeCSSPath string
	// KeepAlive is the comment interval on the overlay stream.
	KeepAlive time.Duration
	// ShutdownDelay lets the /shutdown response flush before OnShutdown runs.
	ShutdownDelay time.Duration
	// OnShutdown is called after the supervisor has shut down.
	OnShutdown func()
}

// Server wires HTTP handlers to the supervisor.
type Server struct {
	router chi.Router
	ctrl   Controller
	opts   Options
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(ctrl Controller, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = defaultKeepAlive
	}
	if opts.ShutdownDelay <= 0 {
		opts.ShutdownDelay = defaultShutdownDelay
	}
	s := &Server{ctrl: ctrl, opts: opts, logger: logger}

	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	r.Get("/", s.index)
	r.Get("/overlay", s.overlayPage)
	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/logs", s.logStream)
	r.Get("/overlay/stream", s.overlayStream)

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(controlTimeout))
		r.Get("/status", s.status)
		r.Post("/start", s.start)
		r.Post("/stop", s.stop)
		r.Post("/shutdown", s.shutdown)
		r.Post("/login/complete", s.completeLogin)
		r.Post("/highlight", s.highlight)
		r.Post("/env", s.env)
		r.Post("/overlay/message", s.overlayMessage)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Debug("request completed",
				zap.String("request_id", reqID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
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

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

// writeError reports an operational failure as {ok:false, message}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "message": msg})
}
