// Package app wires the application together: configuration, database pool,
// Genkit embedding, and the ingest and retrieval components built on them.
//
// Setup initializes everything in dependency order and returns an App whose
// Close releases resources in reverse order. Commands in cmd/ are thin
// wrappers around the components exposed here.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/askbob-ai/wikidex/internal/config"
	"github.com/askbob-ai/wikidex/internal/ingest"
	"github.com/askbob-ai/wikidex/internal/knowledge"
	"github.com/askbob-ai/wikidex/internal/retrieval"
	"github.com/askbob-ai/wikidex/internal/wiki"
)

// App is the application container. All fields are initialized by Setup.
type App struct {
	Config *config.Config

	// Core services
	Pool     *pgxpool.Pool
	Genkit   *genkit.Genkit
	Embedder knowledge.Embedder

	// Domain components
	Store        *knowledge.Store
	Wiki         *wiki.Client
	Tracker      *ingest.Tracker
	Indexer      *ingest.Indexer
	Pipeline     *ingest.Pipeline
	Orchestrator *retrieval.Orchestrator

	logger      *slog.Logger
	dbCleanup   func()
	otelCleanup func()
}

// Close releases all resources in reverse initialization order.
// Safe to call on a partially initialized App.
func (a *App) Close() error {
	if a.logger != nil {
		a.logger.Info("shutting down application")
	}

	if a.dbCleanup != nil {
		a.dbCleanup()
	}

	// Flush pending trace spans last so shutdown itself is traced.
	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return nil
}
