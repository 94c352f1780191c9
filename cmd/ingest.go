package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"

	"github.com/askbob-ai/wikidex/internal/app"
	"github.com/askbob-ai/wikidex/internal/config"
	"github.com/askbob-ai/wikidex/internal/ingest"
)

// acquireIngestLock takes the cross-process file lock guarding write access
// to the knowledge store. Concurrent ingest runs would race on job state and
// double-crawl the wiki, so a second invocation fails fast instead.
func acquireIngestLock(cfg *config.Config) (*flock.Flock, error) {
	path := cfg.Ingest.LockPath
	if path == "" {
		path = filepath.Join(os.TempDir(), "wikidex-ingest.lock")
	}

	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring ingest lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("another ingest is already running (lock held: %s)", path)
	}
	return lock, nil
}

// releaseIngestLock releases the file lock, logging rather than failing the
// command: the work is already done at that point.
func releaseIngestLock(lock *flock.Flock, logger *slog.Logger) {
	if err := lock.Unlock(); err != nil {
		logger.Warn("releasing ingest lock", "path", lock.Path(), "error", err)
	}
}

// runIngest performs a full crawl. With --resume, an interrupted run
// continues from its persisted cursor instead of starting over.
func runIngest() error {
	ingestFlags := flag.NewFlagSet("ingest", flag.ContinueOnError)
	ingestFlags.SetOutput(os.Stderr)
	resume := ingestFlags.Bool("resume", false, "Continue an interrupted full crawl")

	args := []string{}
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}
	if err := ingestFlags.Parse(args); err != nil {
		return fmt.Errorf("parsing ingest flags: %w", err)
	}

	return withIngestApp(func(ctx context.Context, a *app.App) error {
		summary, err := a.Pipeline.FullIngest(ctx, *resume)
		if errors.Is(err, context.Canceled) {
			// The job row stays in_progress; a later --resume picks it up.
			fmt.Fprintln(os.Stderr, "interrupted; rerun with --resume to continue")
			printSummary(summary)
			return err
		}
		if err != nil {
			return fmt.Errorf("full ingest: %w", err)
		}
		printSummary(summary)
		return nil
	})
}

// runUpdate performs an incremental crawl from the recent-changes feed.
func runUpdate() error {
	return withIngestApp(func(ctx context.Context, a *app.App) error {
		summary, err := a.Pipeline.IncrementalIngest(ctx)
		if errors.Is(err, ingest.ErrNoCompletedRun) {
			return fmt.Errorf("no completed crawl to update from; run `wikidex ingest` first")
		}
		if err != nil {
			return fmt.Errorf("incremental ingest: %w", err)
		}
		printSummary(summary)
		return nil
	})
}

// runEmbed backfills embeddings for chunks that are missing them.
func runEmbed() error {
	return withIngestApp(func(ctx context.Context, a *app.App) error {
		n, err := a.Indexer.Backfill(ctx)
		if err != nil {
			return fmt.Errorf("embedding backfill: %w", err)
		}
		fmt.Printf("Embedded %d chunks\n", n)
		return nil
	})
}

// runReembed regenerates embeddings for every stored chunk. Needed after
// an embedder model change, since stored vectors are model-specific.
func runReembed() error {
	return withIngestApp(func(ctx context.Context, a *app.App) error {
		n, err := a.Indexer.ReembedAll(ctx)
		if err != nil {
			return fmt.Errorf("re-embedding: %w", err)
		}
		fmt.Printf("Re-embedded %d chunks\n", n)
		return nil
	})
}

// withIngestApp handles the shared scaffolding of the write-path commands:
// config, signal handling, the ingest lock, and application setup.
func withIngestApp(fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()

	lock, err := acquireIngestLock(cfg)
	if err != nil {
		return err
	}
	defer releaseIngestLock(lock, logger)

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	return fn(ctx, a)
}

// printSummary reports crawl results on stdout.
func printSummary(s ingest.Summary) {
	fmt.Printf("Job %s", s.JobID)
	if s.Resumed {
		fmt.Print(" (resumed)")
	}
	fmt.Println()
	fmt.Printf("  Pages processed: %d\n", s.PagesProcessed)
	fmt.Printf("  Pages skipped:   %d\n", s.PagesSkipped)
	fmt.Printf("  Pages failed:    %d\n", s.PagesFailed)
	fmt.Printf("  Chunks written:  %d\n", s.ChunksWritten)
}
