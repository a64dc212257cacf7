package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ziadkadry99/expertroute/internal/audit"
	"github.com/ziadkadry99/expertroute/internal/bots"
	"github.com/ziadkadry99/expertroute/internal/experts"
	"github.com/ziadkadry99/expertroute/internal/logger"
	"github.com/ziadkadry99/expertroute/internal/network"
	"github.com/ziadkadry99/expertroute/internal/notifications"
	"github.com/ziadkadry99/expertroute/internal/routing"
	"github.com/ziadkadry99/expertroute/internal/telemetry"
)

// Config holds server configuration.
type Config struct {
	Port     int
	AllowAll bool // allow all CORS origins (dev mode)
}

// Handlers are the feature services mounted on the router. Nil entries are
// skipped.
type Handlers struct {
	Routing       *routing.Service
	Experts       *experts.Store
	Network       *network.Store
	Notifications *notifications.Store
	Dispatcher    *notifications.Dispatcher
	Audit         *audit.Store
	Telemetry     *telemetry.Provider
	// Bots mounts the Slack and Teams webhooks when set.
	Bots *BotHandlers
}

// BotHandlers are the chat platform webhooks.
type BotHandlers struct {
	Slack *bots.SlackHandler
	Teams *bots.TeamsHandler
}

// Server is the HTTP front of the routing engine.
type Server struct {
	cfg        Config
	handlers   Handlers
	log        logger.Logger
	router     chi.Router
	httpServer *http.Server
}

// New creates a server with all feature routes registered.
func New(cfg Config, h Handlers, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Server{cfg: cfg, handlers: h, log: log}
	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", routing.UserHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	if s.handlers.Telemetry != nil {
		r.Handle("/metrics", s.handlers.Telemetry.Handler())
	}

	h := s.handlers
	if h.Routing != nil {
		routing.RegisterRoutes(r, h.Routing)
	}
	if h.Experts != nil {
		experts.RegisterRoutes(r, h.Experts)
	}
	if h.Network != nil {
		network.RegisterRoutes(r, h.Network)
	}
	if h.Notifications != nil {
		notifications.RegisterRoutes(r, h.Notifications, h.Dispatcher)
	}
	if h.Audit != nil {
		audit.RegisterRoutes(r, h.Audit)
	}
	if h.Bots != nil {
		bots.RegisterRoutes(r, h.Bots.Slack, h.Bots.Teams)
	}
	return r
}

// requestLogger logs one line per request through the structured logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Duration("duration", time.Since(start)),
			logger.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Router returns the chi router.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port. It returns nil after a
// graceful Shutdown, including one that happened before Start.
func (s *Server) Start() error {
	s.log.Info("expertroute server listening", logger.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server. It is safe to call from
// another goroutine at any time, before or during Start.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
