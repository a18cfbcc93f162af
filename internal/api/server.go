package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seantiz/foreman/internal/events"
	"github.com/seantiz/foreman/internal/ratelimit"
	"github.com/seantiz/foreman/internal/scheduler"
	"github.com/seantiz/foreman/internal/store"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// Server wraps the chi router and application dependencies.
type Server struct {
	router   *chi.Mux
	store    store.Store
	sched    *scheduler.Scheduler
	bus      *events.Bus
	recorder *events.Recorder
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
	addr     string

	rateLimit  int
	rateWindow time.Duration
}

// NewServer creates and configures a new HTTP server.
func NewServer(addr string, s store.Store, sched *scheduler.Scheduler, bus *events.Bus, rec *events.Recorder, rateLimit int, rateWindow time.Duration, logger *slog.Logger) *Server {
	srv := &Server{
		router:     chi.NewRouter(),
		store:      s,
		sched:      sched,
		bus:        bus,
		recorder:   rec,
		limiter:    ratelimit.New(),
		logger:     logger,
		addr:       addr,
		rateLimit:  rateLimit,
		rateWindow: rateWindow,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router. Health and metrics stay
// outside the rate-limited API surface so probes never get throttled.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)

		r.Get("/stats", s.handleGetStats)
		r.Get("/scheduler", s.handleSchedulerStatus)
		r.Get("/events", s.handleStreamEvents)

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.handleCreateTask)
			r.Get("/", s.handleListTasks)
			r.Get("/{id}", s.handleGetTask)
			r.Get("/{id}/events", s.handleGetTaskEvents)
			r.Post("/{id}/queue", s.handleQueueTask)
			r.Post("/{id}/cancel", s.handleCancelTask)
			r.Post("/{id}/status", s.handleTaskFeedback)
			r.Post("/{id}/review", s.handleReviewTask)
		})

		r.Route("/workers", func(r chi.Router) {
			r.Post("/", s.handleRegisterWorker)
			r.Get("/", s.handleListWorkers)
			r.Get("/{id}", s.handleGetWorker)
			r.Post("/{id}/heartbeat", s.handleWorkerHeartbeat)
			r.Post("/{id}/drain", s.handleDrainWorker)
			r.Post("/{id}/offline", s.handleOfflineWorker)
		})
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
func (s *Server) Run() error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// rateLimitMiddleware enforces the per-client fixed-window rate limit.
// Clients are keyed by remote IP.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := s.limiter.Consume(clientIP(r), s.rateLimit, s.rateWindow)
		if s.rateLimit > 0 {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.rateLimit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		}
		if !res.Allowed {
			retryAfter := int(time.Until(res.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the caller's IP from the remote address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
