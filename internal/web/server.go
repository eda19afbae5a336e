// Package web serves the refresh webhook API.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/plexrefresh/internal/auth"
	"github.com/saltyorg/plexrefresh/internal/web/handlers"
	"github.com/saltyorg/plexrefresh/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	port       int
	bind       string
	allowedNet *net.IPNet
	router     *chi.Mux
	verifier   *auth.Verifier
	handlers   *handlers.Handlers
}

// Options configures a Server.
type Options struct {
	Bind       string
	Port       int
	AllowedNet *net.IPNet
	Verifier   *auth.Verifier
	Version    string
}

// NewServer creates a new web server. history may be nil when the history
// database is disabled.
func NewServer(opts Options, proc handlers.Processor, history handlers.History) *Server {
	s := &Server{
		port:       opts.Port,
		bind:       opts.Bind,
		allowedNet: opts.AllowedNet,
		router:     chi.NewRouter(),
		verifier:   opts.Verifier,
		handlers:   handlers.New(proc, history, opts.Version),
	}

	s.setupRoutes()
	return s
}

// AddStatus reports fn's result under name in /health.
func (s *Server) AddStatus(name string, fn func() any) {
	s.handlers.AddStatus(name, fn)
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	r := s.router
	h := s.handlers

	r.Use(chimiddleware.RequestID)
	// AllowSubnet must come BEFORE RealIP so we check the actual connection source
	r.Use(middleware.AllowSubnet(s.allowedNet))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.verifier))

		// A waited refresh is bounded by the processor's own timeout.
		r.Get("/refresh", h.Refresh)
		r.Post("/refresh", h.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(60 * time.Second))
			r.Get("/history", h.ListHistory)
			r.Get("/history/{id}", h.GetHistory)
		})
	})
}

// Start starts the web server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	var addr string
	if s.bind != "" {
		addr = fmt.Sprintf("%s:%d", s.bind, s.port)
	} else {
		addr = fmt.Sprintf(":%d", s.port)
	}

	server := &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays disabled so waited refreshes can outlive it
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}
