// Package api exposes the memory store over a local HTTP interface.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pbaille/codecontext/internal/classifier"
	"github.com/pbaille/codecontext/internal/search"
	"github.com/pbaille/codecontext/internal/store"
	"github.com/rs/zerolog"
)

// Options tunes request defaults
type Options struct {
	DefaultLimit   int
	RecentActivity int
	Logger         zerolog.Logger
}

// Server handles HTTP requests for the memory store
type Server struct {
	store      *store.Store
	classifier *classifier.Classifier
	opts       Options
	logger     zerolog.Logger
}

// New creates a new API server
func New(s *store.Store, opts Options) *Server {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = search.DefaultLimit
	}
	if opts.RecentActivity <= 0 {
		opts.RecentActivity = 5
	}
	return &Server{
		store:      s,
		classifier: classifier.New(),
		opts:       opts,
		logger:     opts.Logger,
	}
}

// Router builds the chi router with all routes and middleware
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(withCORS)
	r.Use(requestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)

	r.Route("/memories", func(r chi.Router) {
		r.Get("/", s.searchMemories)
		r.Post("/", s.addMemory)
	})

	r.Post("/scan", s.ingestScan)
	r.Get("/status", s.status)
	r.Get("/export", s.export)

	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info().Msg("shutting down server")
	return srv.Shutdown(shutdownCtx)
}
