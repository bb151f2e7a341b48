package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/cbodonnell/tabletop/pkg/api/handlers"
	"github.com/cbodonnell/tabletop/pkg/api/middleware"
	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/repositories"
	"github.com/gorilla/mux"
)

// APIServer is the loopback admin surface of the coordinator.
type APIServer struct {
	server *http.Server
}

type NewAPIServerOptions struct {
	Addr   string
	Game   handlers.StatusProvider
	Scores handlers.ScoresProvider
	// Repository may be nil when history is disabled.
	Repository repositories.Repository
	// Metrics is served on /metrics when set.
	Metrics http.Handler
}

// NewAPIServer creates a new http.Server for handling admin requests
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	return &APIServer{
		server: &http.Server{
			Addr:    opts.Addr,
			Handler: NewRouter(opts),
		},
	}
}

// NewRouter returns the admin routes.
func NewRouter(opts NewAPIServerOptions) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Logging, middleware.LoopbackOnly)
	r.HandleFunc("/status", handlers.HandleStatus(opts.Game)).Methods(http.MethodGet)
	r.HandleFunc("/scores", handlers.HandleScores(opts.Scores)).Methods(http.MethodGet)
	r.HandleFunc("/games", handlers.HandleListGames(opts.Repository)).Methods(http.MethodGet)
	r.HandleFunc("/games/{id}", handlers.HandleGetGame(opts.Repository)).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}
	return r
}

// Start starts the APIServer and blocks until it is stopped
func (s *APIServer) Start() error {
	log.Info("Admin API listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("Admin API closed")
			return nil
		}
		return err
	}
	return nil
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
