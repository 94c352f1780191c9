// Package cmd provides CLI commands for wikidex.
//
// Commands:
//   - ingest: full crawl of the wiki into the knowledge store
//   - update: incremental crawl from the recent-changes feed
//   - embed: backfill embeddings for chunks missing them
//   - reembed: regenerate embeddings for every stored chunk
//   - search: one-shot retrieval query from the terminal
//   - serve: HTTP search API server
//   - stats: index counters
//
// Signal handling and graceful shutdown are implemented
// for all commands via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/askbob-ai/wikidex/internal/config"
)

// Execute is the main entry point for the wikidex CLI application.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "ingest":
		return runIngest()
	case "update":
		return runUpdate()
	case "embed":
		return runEmbed()
	case "reembed":
		return runReembed()
	case "search":
		return runSearch()
	case "serve":
		return runServe()
	case "stats":
		return runStats()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// loadConfig loads and validates configuration for a command.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("wikidex - Wiki retrieval and indexing for AskBob")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  wikidex ingest [--resume]  Full crawl of the wiki (resume continues an interrupted run)")
	fmt.Println("  wikidex update             Incremental crawl from the recent-changes feed")
	fmt.Println("  wikidex embed              Backfill embeddings for chunks missing them")
	fmt.Println("  wikidex reembed            Regenerate embeddings for every stored chunk")
	fmt.Println("  wikidex search <query>     Run a retrieval query from the terminal")
	fmt.Println("  wikidex serve [addr]       Start HTTP search API (default: :8080)")
	fmt.Println("  wikidex stats              Show index counters")
	fmt.Println("  wikidex --version          Show version information")
	fmt.Println("  wikidex --help             Show this help")
	fmt.Println()
	fmt.Println("Search flags:")
	fmt.Println("  --type <page_type>         Filter by page type (item, monster, quest, ...)")
	fmt.Println("  --mode <game_mode>         Filter by game mode (main, ironman, ...)")
	fmt.Println("  --hint <simple|deep>       Override the automatic depth classification")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY             Required: Gemini API key for embeddings")
	fmt.Println("  DATABASE_URL               Optional: PostgreSQL connection URL")
	fmt.Println("  DEBUG                      Optional: Enable debug logging")
	fmt.Println()
	fmt.Println("Learn more: https://github.com/askbob-ai/wikidex")
}
