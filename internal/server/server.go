// Package server exposes the engine over HTTP. This is the authoritative
// operator surface; any UI is a client of it.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/free4inno/intent-hub/internal/core"
)

// Server wires the REST routes over the component manager.
type Server struct {
	log     *slog.Logger
	manager *core.Manager
	http    *http.Server
}

// New creates a server; call Start to listen.
func New(log *slog.Logger, manager *core.Manager) *Server {
	return &Server{log: log, manager: manager}
}

// Router builds the HTTP handler tree.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(corsMiddleware)

	// open endpoints
	r.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// prediction is gated by the predict key, not the management key
	r.Handle("/predict", s.predictAuth(http.HandlerFunc(s.handlePredict))).Methods(http.MethodPost, http.MethodOptions)

	// management endpoints
	api := r.NewRoute().Subrouter()
	api.Use(s.apiKeyAuth)
	api.HandleFunc("/routes", s.handleListRoutes).Methods(http.MethodGet)
	api.HandleFunc("/routes/search", s.handleSearchRoutes).Methods(http.MethodGet)
	api.HandleFunc("/routes", s.handleCreateRoute).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/routes/generate-utterances", s.handleGenerateUtterances).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/routes/{id:[0-9]+}", s.handleUpdateRoute).Methods(http.MethodPut, http.MethodOptions)
	api.HandleFunc("/routes/{id:[0-9]+}", s.handleDeleteRoute).Methods(http.MethodDelete, http.MethodOptions)
	api.HandleFunc("/routes/{id:[0-9]+}/negative-samples", s.handleSetNegativeSamples).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/routes/{id:[0-9]+}/negative-samples", s.handleClearNegativeSamples).Methods(http.MethodDelete, http.MethodOptions)
	api.HandleFunc("/reindex", s.handleReindex).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/reindex/routes", s.handleReindexRoutes).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/diagnostics/overlap", s.handleOverlap).Methods(http.MethodGet)
	api.HandleFunc("/diagnostics/overlap/{id:[0-9]+}", s.handleRouteOverlap).Methods(http.MethodGet)
	api.HandleFunc("/diagnostics/umap", s.handleProjection).Methods(http.MethodGet)
	api.HandleFunc("/diagnostics/repair", s.handleRepair).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/diagnostics/apply-repair", s.handleApplyRepair).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handleUpdateSettings).Methods(http.MethodPost, http.MethodOptions)

	return r
}

// Start listens on addr until the context is cancelled, then drains with a
// short grace period.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()
	s.log.Info("http server listening", "addr", addr)
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}
