// Package server provides the public entry point for initializing the
// postgres-ai service.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8000", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/devKanishk15/postgres-ai/internal/agent"
	"github.com/devKanishk15/postgres-ai/internal/api"
	"github.com/devKanishk15/postgres-ai/internal/config"
	"github.com/devKanishk15/postgres-ai/internal/history"
	"github.com/devKanishk15/postgres-ai/internal/llm"
	"github.com/devKanishk15/postgres-ai/internal/promgw"
	"github.com/devKanishk15/postgres-ai/internal/telemetry"
	"github.com/devKanishk15/postgres-ai/internal/tools"
)

// Server holds the initialized postgres-ai service.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry
	// and close the history store.
	ShutdownFunc func(context.Context) error
}

// New initializes all components from environment configuration and
// returns a ready Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the service with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var store history.Store
	var closeStore func()
	if cfg.History.PostgresDSN != "" {
		pgStore, err := history.NewPostgresStore(ctx, cfg.History.PostgresDSN, cfg.History.MaxMessages)
		if err != nil {
			return nil, fmt.Errorf("init history store: %w", err)
		}
		store = pgStore
		closeStore = pgStore.Close
		log.Info().Msg("✅ PostgreSQL history store initialized")
	} else {
		fileStore, err := history.NewFileStore(cfg.History.DataDir, cfg.History.MaxMessages)
		if err != nil {
			return nil, fmt.Errorf("init history store: %w", err)
		}
		store = fileStore
		log.Info().Str("dir", cfg.History.DataDir).Msg("✅ File history store initialized")
	}

	if pruner, ok := store.(history.Pruner); ok && cfg.History.Retention > 0 {
		history.NewJanitor(pruner, time.Hour, cfg.History.Retention).Start(ctx)
	}

	prom := promgw.NewClient(cfg.Prometheus.URL, cfg.Prometheus.CacheTTL)
	dispatcher := tools.NewDispatcher(prom)
	completer := llm.NewOpenAIClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model)
	diagAgent := agent.New(completer, dispatcher, store, cfg.Agent.MaxIterations)

	log.Info().Str("url", cfg.Prometheus.URL).Msg("✅ Prometheus gateway initialized")
	log.Info().Str("model", cfg.LLM.Model).Int("max_iterations", cfg.Agent.MaxIterations).Msg("✅ Diagnosis agent initialized")

	h := api.New(diagAgent, prom, cfg.Version)
	router := api.NewRouter(h)

	return &Server{
		Handler: router,
		Port:    cfg.Port,
		ShutdownFunc: func(ctx context.Context) error {
			if closeStore != nil {
				closeStore()
			}
			return shutdownTelemetry(ctx)
		},
	}, nil
}
