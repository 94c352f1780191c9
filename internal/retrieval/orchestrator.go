// Package retrieval turns a natural-language query into a ranked, filtered
// context set for a language model. It embeds the query, searches the
// vector index with metadata filters, reranks the candidates against the
// query text and classifies query complexity into a routing hint. Retrieval
// is stateless and side-effect free; it never triggers ingestion.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/askbob-ai/wikidex/internal/knowledge"
)

// ErrEmptyQuery is returned for blank query text.
var ErrEmptyQuery = errors.New("empty query")

// ErrInvalidHint is returned when a caller-supplied hint is not one of
// the defined values.
var ErrInvalidHint = errors.New("invalid routing hint")

// ErrInvalidTopK is returned for a negative caller-supplied result count.
var ErrInvalidTopK = errors.New("top_k must be positive")

// Candidates fetched from the index per final context slot, so the
// reranker has something to reorder.
const overfetchFactor = 3

// Searcher is the slice of the knowledge store retrieval needs.
type Searcher interface {
	Search(ctx context.Context, queryVec []float32, opts ...knowledge.SearchOption) ([]knowledge.SearchResult, error)
}

// Query is one retrieval request. PageType and GameMode are conjunctive
// filters; empty means unfiltered. Hint, when set, overrides complexity
// classification. TopK, when positive, overrides the hint's result
// budget; zero means use the budget and negative is rejected.
type Query struct {
	Text     string
	PageType string
	GameMode string
	Hint     Hint
	TopK     int
	Timeout  time.Duration
}

// Result is a ranked context bundle. When Chunks is empty, Reason says
// why in one human-readable sentence; an error is reserved for genuine
// failures so callers cannot mistake "nothing indexed" for an outage.
type Result struct {
	Chunks []knowledge.SearchResult
	Hint   Hint
	Reason string
}

// Orchestrator is the query-time entry point. Safe for concurrent use.
type Orchestrator struct {
	searcher Searcher
	embedder knowledge.Embedder
	logger   *slog.Logger
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(searcher Searcher, embedder knowledge.Embedder, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		searcher: searcher,
		embedder: embedder,
		logger:   logger,
	}
}

// Retrieve runs the retrieval pipeline: classify, embed, search, rerank,
// truncate. An embedding failure fails the whole call; there is no silent
// empty-result fallback.
func (o *Orchestrator) Retrieve(ctx context.Context, q Query) (Result, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return Result{}, ErrEmptyQuery
	}

	hint := q.Hint
	switch hint {
	case "":
		hint = Classify(text)
	case HintSimple, HintDeep:
		// Caller override wins.
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidHint, hint)
	}
	topK := hint.TopK()
	if q.TopK > 0 {
		topK = q.TopK
	} else if q.TopK < 0 {
		return Result{}, fmt.Errorf("%w: got %d", ErrInvalidTopK, q.TopK)
	}

	vectors, err := o.embedder.EmbedTexts(ctx, []string{text})
	if err != nil {
		return Result{}, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return Result{}, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}

	opts := []knowledge.SearchOption{knowledge.WithTopK(topK * overfetchFactor)}
	if q.PageType != "" {
		opts = append(opts, knowledge.WithPageType(q.PageType))
	}
	// The main game has no exclusive content, so filtering by it would
	// only hide ironman-relevant chunks that apply to everyone.
	if q.GameMode != "" && q.GameMode != knowledge.ModeMain {
		opts = append(opts, knowledge.WithGameMode(q.GameMode))
	}
	if q.Timeout > 0 {
		opts = append(opts, knowledge.WithTimeout(q.Timeout))
	}

	candidates, err := o.searcher.Search(ctx, vectors[0], opts...)
	if err != nil {
		return Result{}, fmt.Errorf("search: %w", err)
	}
	if len(candidates) == 0 {
		o.logger.Info("retrieval found nothing", "query", truncate(text, 80), "hint", hint)
		return Result{
			Hint:   hint,
			Reason: "no indexed content matched the query and its filters",
		}, nil
	}

	ranked := rerank(text, candidates)
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	o.logger.Info("retrieval done",
		"query", truncate(text, 80),
		"hint", hint,
		"candidates", len(candidates),
		"returned", len(ranked),
		"top_similarity", fmt.Sprintf("%.3f", ranked[0].Similarity))
	return Result{Chunks: ranked, Hint: hint}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
