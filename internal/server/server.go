// Package server exposes the chat endpoint and the admin panel API over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chative-food/server/internal/agent/draft"
	"github.com/chative-food/server/internal/agent/graph"
	"github.com/chative-food/server/internal/store"
	logx "github.com/chative-food/server/pkg/logger"
	"github.com/chative-food/server/pkg/metrics"
)

type Config struct {
	Addr            string        `envconfig:"SERVER_ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
	// DefaultPhone identifies chat callers that do not send a phone number.
	DefaultPhone string `envconfig:"SERVER_DEFAULT_PHONE"`
}

// PageSize is the panel listing page size.
const PageSize = 10

type Deps struct {
	Runner graph.Runner
	Store  *store.Store
	Drafts *draft.Service
}

type Server struct {
	cfg  Config
	deps Deps
	mux  chi.Router
}

func New(cfg Config, deps Deps) *Server {
	s := &Server{cfg: cfg, deps: deps, mux: chi.NewRouter()}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(metrics.Middleware(routePattern))
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.chat)

		r.Get("/users", s.listUsers)
		r.Post("/users", s.createUser)
		r.Get("/restaurants", s.listRestaurants)
		r.Post("/restaurants", s.createRestaurant)
		r.Get("/orders", s.listOrders)
		r.Post("/orders", s.createOrder)
		r.Get("/orders/{orderID}", s.getOrder)
	})
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", s.cfg.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	logx.Info().Msg("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}
