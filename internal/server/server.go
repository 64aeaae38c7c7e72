package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/kartoza/econometric-lab/internal/analysis"
	"github.com/kartoza/econometric-lab/internal/api"
	"github.com/kartoza/econometric-lab/internal/charts"
	"github.com/kartoza/econometric-lab/internal/config"
	"github.com/kartoza/econometric-lab/internal/store"
)

// Server holds all the components for the web application
type Server struct {
	cfg        config.Config
	httpServer *http.Server
	router     *mux.Router
	store      *store.Store
}

// New creates a new Server with all components initialized
func New(cfg config.Config) (*Server, error) {
	codec, err := store.CodecByName(cfg.StoreCodec)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DBPath, codec)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		router: mux.NewRouter(),
		store:  st,
	}

	service := analysis.NewService(st, charts.NewRenderer())

	// API routes
	apiRouter := s.router.PathPrefix("/api").Subrouter()
	api.NewHandler(service, st, cfg).RegisterRoutes(apiRouter)

	return s, nil
}

// Handler returns the router wrapped with the CORS policy. Credentialed
// requests are allowed, and browsers reject a literal "*" origin on those,
// so a wildcard configuration echoes the request origin instead.
func (s *Server) Handler() http.Handler {
	cors := handlers.CORS(
		allowedOrigins(s.cfg.CORSOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	)
	return cors(s.router)
}

func allowedOrigins(origins []string) handlers.CORSOption {
	for _, o := range origins {
		if o == "*" {
			return handlers.AllowedOriginValidator(func(string) bool { return true })
		}
	}
	return handlers.AllowedOrigins(origins)
}

// Start begins listening for HTTP connections
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Server listening on http://localhost:%d", s.cfg.Port)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the server and closes the store
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	if cerr := s.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
