package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/askbob-ai/wikidex/db"
	"github.com/askbob-ai/wikidex/internal/config"
	"github.com/askbob-ai/wikidex/internal/ingest"
	"github.com/askbob-ai/wikidex/internal/knowledge"
	"github.com/askbob-ai/wikidex/internal/observability"
	"github.com/askbob-ai/wikidex/internal/retrieval"
	"github.com/askbob-ai/wikidex/internal/wiki"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	logger := slog.Default()
	a := &App{Config: cfg, logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing first: Genkit reads the global TracerProvider at Init time.
	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, dbCleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.Pool = pool

	g, err := provideGenkit(ctx)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder, err := provideEmbedder(g, cfg)
	if err != nil {
		return nil, err
	}
	a.Embedder = knowledge.NewGenkitEmbedder(embedder)

	queries := knowledge.NewQueries(pool)
	a.Store = knowledge.NewStore(queries, logger)
	a.Wiki = wiki.NewClient(cfg.Wiki, logger)

	a.Tracker = ingest.NewTracker(queries, logger)
	a.Indexer = ingest.NewIndexer(a.Store, a.Embedder, cfg.EmbedderModel, cfg.Ingest.EmbedBatchSize, logger)
	a.Pipeline = ingest.NewPipeline(a.Wiki, a.Store, a.Indexer, a.Tracker, logger,
		ingest.WithWorkers(cfg.Ingest.Workers))

	a.Orchestrator = retrieval.NewOrchestrator(a.Store, a.Embedder, logger)

	logger.Info("application initialized",
		"embedder_model", cfg.EmbedderModel,
		"wiki_api", cfg.Wiki.APIURL,
	)

	return a, nil
}

// provideOtelShutdown configures OTLP trace export and returns a cleanup
// that flushes pending spans. Export failures degrade to local-only
// tracing, so the returned cleanup is always safe to call.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger *slog.Logger) func() {
	shutdown, err := observability.SetupTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		logger.Warn("tracing setup failed, continuing without export", "error", err)
		return func() {}
	}

	return func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}
}

// provideDBPool runs migrations and creates the PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}

// provideGenkit initializes Genkit with the Gemini plugin.
// GEMINI_API_KEY is read by the plugin from the environment.
func provideGenkit(ctx context.Context) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with gemini provider")
	}
	return g, nil
}

// provideEmbedder looks up the embedder registered by the Gemini plugin.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) (ai.Embedder, error) {
	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder model not available: %s", cfg.EmbedderModel)
	}
	return embedder, nil
}
