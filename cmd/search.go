package cmd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/askbob-ai/wikidex/internal/app"
	"github.com/askbob-ai/wikidex/internal/retrieval"
	"github.com/askbob-ai/wikidex/internal/wiki"
)

// runSearch executes a one-shot retrieval query from the terminal.
// Flags may come before or after the query words:
//
//	wikidex search --type boss "zulrah rotations"
//	wikidex search how to make money as an ironman --mode ironman
func runSearch() error {
	searchFlags := flag.NewFlagSet("search", flag.ContinueOnError)
	searchFlags.SetOutput(os.Stderr)
	pageType := searchFlags.String("type", "", "Filter by page type")
	gameMode := searchFlags.String("mode", "", "Filter by game mode")
	hint := searchFlags.String("hint", "", "Override depth classification (simple or deep)")

	args := []string{}
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}

	// Collect positional query words, letting flags appear on either side.
	var words []string
	for len(args) > 0 {
		if err := searchFlags.Parse(args); err != nil {
			return fmt.Errorf("parsing search flags: %w", err)
		}
		args = searchFlags.Args()
		if len(args) > 0 {
			words = append(words, args[0])
			args = args[1:]
		}
	}

	query := strings.Join(words, " ")
	if query == "" {
		return fmt.Errorf("usage: wikidex search [flags] <query>")
	}

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

	result, err := a.Orchestrator.Retrieve(ctx, retrieval.Query{
		Text:     query,
		PageType: *pageType,
		GameMode: *gameMode,
		Hint:     retrieval.Hint(*hint),
	})
	if err != nil {
		return fmt.Errorf("retrieving: %w", err)
	}

	printSearchResult(result)
	return nil
}

// printSearchResult renders retrieval output for the terminal.
func printSearchResult(result retrieval.Result) {
	if len(result.Chunks) == 0 {
		fmt.Println("No results.")
		if result.Reason != "" {
			fmt.Println(result.Reason)
		}
		return
	}

	fmt.Printf("%d results (%s mode)\n\n", len(result.Chunks), result.Hint)
	for i, r := range result.Chunks {
		heading := r.PageTitle
		if r.Section != "" {
			heading += " > " + r.Section
		}
		fmt.Printf("%d. [%.3f] %s\n", i+1, r.Similarity, heading)
		fmt.Printf("   %s\n", wiki.PageURL(r.PageTitle))
		fmt.Printf("   %s\n\n", excerpt(r.Content, 200))
	}
}

// excerpt collapses whitespace and truncates s near n bytes on a word boundary.
func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}
