package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"slices"
	"syscall"

	"github.com/askbob-ai/wikidex/internal/app"
)

// runStats prints index counters.
func runStats() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	stats, err := a.Store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading stats: %w", err)
	}

	fmt.Printf("Pages:      %d\n", stats.Pages)
	fmt.Printf("Chunks:     %d\n", stats.Chunks)
	fmt.Printf("Embeddings: %d\n", stats.Embeddings)
	if pending := stats.Chunks - stats.Embeddings; pending > 0 {
		fmt.Printf("Pending:    %d (run `wikidex embed`)\n", pending)
	}

	if len(stats.PagesByType) > 0 {
		fmt.Println()
		fmt.Println("Pages by type:")
		types := make([]string, 0, len(stats.PagesByType))
		for t := range stats.PagesByType {
			types = append(types, t)
		}
		slices.Sort(types)
		for _, t := range types {
			fmt.Printf("  %-18s %d\n", t, stats.PagesByType[t])
		}
	}

	return nil
}
