package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/askbob-ai/wikidex/internal/knowledge"
	"github.com/askbob-ai/wikidex/internal/retrieval"
)

// maxSearchQueryLength is the maximum allowed search query length in bytes.
const maxSearchQueryLength = 1000

// Retriever is the slice of the retrieval orchestrator the handler needs.
type Retriever interface {
	Retrieve(ctx context.Context, q retrieval.Query) (retrieval.Result, error)
}

// searchHandler holds dependencies for the search API endpoint.
type searchHandler struct {
	retriever Retriever
	logger    *slog.Logger
}

// search handles GET /api/v1/search?q=...&page_type=...&game_mode=...&hint=...&top_k=...
func (h *searchHandler) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		WriteError(w, http.StatusBadRequest, "missing_query", "query parameter 'q' is required", h.logger)
		return
	}
	if len(query) > maxSearchQueryLength {
		WriteError(w, http.StatusBadRequest, "query_too_long", "query must be 1000 characters or fewer", h.logger)
		return
	}

	var topK int
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil || k <= 0 {
			WriteError(w, http.StatusBadRequest, "invalid_top_k", "top_k must be a positive integer", h.logger)
			return
		}
		topK = k
	}

	result, err := h.retriever.Retrieve(r.Context(), retrieval.Query{
		Text:     query,
		PageType: r.URL.Query().Get("page_type"),
		GameMode: r.URL.Query().Get("game_mode"),
		Hint:     retrieval.Hint(r.URL.Query().Get("hint")),
		TopK:     topK,
	})
	switch {
	case errors.Is(err, retrieval.ErrInvalidHint):
		WriteError(w, http.StatusBadRequest, "invalid_hint", "hint must be 'simple' or 'deep'", h.logger)
		return
	case err != nil:
		h.logger.Error("retrieval failed", "error", err, "query_len", len(query))
		WriteError(w, http.StatusInternalServerError, "search_failed", "failed to search the index", h.logger)
		return
	}

	items := make([]searchResultItem, len(result.Chunks))
	for i, c := range result.Chunks {
		items[i] = searchResultItem{
			Title:      c.PageTitle,
			Section:    c.Section,
			Content:    c.Content,
			PageType:   c.PageType,
			GameModes:  c.GameModes,
			Similarity: c.Similarity,
			URL:        c.PageURL,
		}
	}

	WriteJSON(w, http.StatusOK, searchResponse{
		Items:  items,
		Hint:   string(result.Hint),
		Reason: result.Reason,
	}, h.logger)
}

// searchResponse is the JSON body of a search call.
type searchResponse struct {
	Items  []searchResultItem `json:"items"`
	Hint   string             `json:"hint"`
	Reason string             `json:"reason,omitempty"`
}

// searchResultItem is the JSON representation of one ranked chunk.
type searchResultItem struct {
	Title      string   `json:"title"`
	Section    string   `json:"section"`
	Content    string   `json:"content"`
	PageType   string   `json:"pageType"`
	GameModes  []string `json:"gameModes"`
	Similarity float64  `json:"similarity"`
	URL        string   `json:"url"`
}

// StatsProvider is the slice of the knowledge store the stats handler needs.
type StatsProvider interface {
	Stats(ctx context.Context) (knowledge.Stats, error)
}

// statsHandler holds dependencies for the stats API endpoint.
type statsHandler struct {
	stats  StatsProvider
	logger *slog.Logger
}

// getStats handles GET /api/v1/stats: returns index contents.
func (h *statsHandler) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		h.logger.Error("counting index contents", "error", err)
		WriteError(w, http.StatusInternalServerError, "stats_failed", "failed to get stats", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"pages":       stats.Pages,
		"chunks":      stats.Chunks,
		"embeddings":  stats.Embeddings,
		"pagesByType": stats.PagesByType,
	}, h.logger)
}
