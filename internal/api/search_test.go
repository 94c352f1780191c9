package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/askbob-ai/wikidex/internal/knowledge"
	"github.com/askbob-ai/wikidex/internal/log"
	"github.com/askbob-ai/wikidex/internal/retrieval"
)

type mockRetriever struct {
	result retrieval.Result
	err    error
	got    retrieval.Query
}

func (m *mockRetriever) Retrieve(_ context.Context, q retrieval.Query) (retrieval.Result, error) {
	m.got = q
	if m.err != nil {
		return retrieval.Result{}, m.err
	}
	return m.result, nil
}

type mockStats struct {
	stats knowledge.Stats
	err   error
}

func (m *mockStats) Stats(context.Context) (knowledge.Stats, error) {
	if m.err != nil {
		return knowledge.Stats{}, m.err
	}
	return m.stats, nil
}

func testServer(t *testing.T, retriever Retriever, stats StatsProvider) *Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{
		Logger:    log.NewNop(),
		Retriever: retriever,
		Stats:     stats,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv
}

func doRequest(srv *Server, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body
}

func TestSearch_MissingQuery(t *testing.T) {
	srv := testServer(t, &mockRetriever{}, &mockStats{})

	rec := doRequest(srv, http.MethodGet, "/api/v1/search")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "missing_query" {
		t.Errorf("error code = %q, want missing_query", body.Error)
	}
}

func TestSearch_QueryTooLong(t *testing.T) {
	srv := testServer(t, &mockRetriever{}, &mockStats{})

	rec := doRequest(srv, http.MethodGet, "/api/v1/search?q="+strings.Repeat("a", maxSearchQueryLength+1))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "query_too_long" {
		t.Errorf("error code = %q, want query_too_long", body.Error)
	}
}

func TestSearch_InvalidHint(t *testing.T) {
	retriever := &mockRetriever{err: retrieval.ErrInvalidHint}
	srv := testServer(t, retriever, &mockStats{})

	rec := doRequest(srv, http.MethodGet, "/api/v1/search?q=zulrah&hint=turbo")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "invalid_hint" {
		t.Errorf("error code = %q, want invalid_hint", body.Error)
	}
}

func TestSearch_TopK(t *testing.T) {
	retriever := &mockRetriever{result: retrieval.Result{Hint: retrieval.HintSimple}}
	srv := testServer(t, retriever, &mockStats{})

	rec := doRequest(srv, http.MethodGet, "/api/v1/search?q=zulrah&top_k=12")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body)
	}
	if retriever.got.TopK != 12 {
		t.Errorf("TopK = %d, want 12", retriever.got.TopK)
	}

	// Omitted means "use the hint's budget", signalled as zero.
	rec = doRequest(srv, http.MethodGet, "/api/v1/search?q=zulrah")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if retriever.got.TopK != 0 {
		t.Errorf("TopK = %d, want 0 when the parameter is absent", retriever.got.TopK)
	}
}

func TestSearch_InvalidTopK(t *testing.T) {
	for _, raw := range []string{"0", "-5", "ten", "2.5"} {
		retriever := &mockRetriever{}
		srv := testServer(t, retriever, &mockStats{})

		rec := doRequest(srv, http.MethodGet, "/api/v1/search?q=zulrah&top_k="+raw)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("top_k=%s: status = %d, want 400", raw, rec.Code)
		}
		if body := decodeError(t, rec); body.Error != "invalid_top_k" {
			t.Errorf("top_k=%s: error code = %q, want invalid_top_k", raw, body.Error)
		}
		if retriever.got.Text != "" {
			t.Errorf("top_k=%s: retrieval ran despite the invalid parameter", raw)
		}
	}
}

func TestSearch_RetrievalFailure(t *testing.T) {
	retriever := &mockRetriever{err: errors.New("embedding api down")}
	srv := testServer(t, retriever, &mockStats{})

	rec := doRequest(srv, http.MethodGet, "/api/v1/search?q=zulrah")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "search_failed" {
		t.Errorf("error code = %q, want search_failed", body.Error)
	}
}

func TestSearch_ReturnsRankedChunks(t *testing.T) {
	retriever := &mockRetriever{
		result: retrieval.Result{
			Hint: retrieval.HintSimple,
			Chunks: []knowledge.SearchResult{
				{
					Chunk: knowledge.Chunk{
						PageTitle: "Zulrah",
						Section:   "Drops",
						Content:   "Zulrah drops unique scales.",
						PageType:  knowledge.PageTypeBoss,
						GameModes: []string{knowledge.ModeMain},
					},
					PageURL:    "https://oldschool.runescape.wiki/w/Zulrah",
					Similarity: 0.91,
				},
			},
		},
	}
	srv := testServer(t, retriever, &mockStats{})

	rec := doRequest(srv, http.MethodGet, "/api/v1/search?q=zulrah+drops&page_type=boss&game_mode=ironman")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body)
	}

	var body searchResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(body.Items) != 1 {
		t.Fatalf("got %d items, want 1", len(body.Items))
	}
	item := body.Items[0]
	if item.Title != "Zulrah" || item.Section != "Drops" {
		t.Errorf("item = %+v, want Zulrah/Drops", item)
	}
	if item.URL != "https://oldschool.runescape.wiki/w/Zulrah" {
		t.Errorf("url = %q", item.URL)
	}
	if body.Hint != "simple" {
		t.Errorf("hint = %q, want simple", body.Hint)
	}

	if retriever.got.PageType != "boss" || retriever.got.GameMode != "ironman" {
		t.Errorf("filters = %q/%q, want boss/ironman", retriever.got.PageType, retriever.got.GameMode)
	}
}

func TestSearch_EmptyResultCarriesReason(t *testing.T) {
	retriever := &mockRetriever{
		result: retrieval.Result{
			Hint:   retrieval.HintSimple,
			Reason: "no indexed content matched the query and its filters",
		},
	}
	srv := testServer(t, retriever, &mockStats{})

	rec := doRequest(srv, http.MethodGet, "/api/v1/search?q=nonsense")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body searchResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(body.Items) != 0 {
		t.Errorf("got %d items, want 0", len(body.Items))
	}
	if body.Reason == "" {
		t.Error("empty result without a reason")
	}
}

func TestStats(t *testing.T) {
	stats := &mockStats{stats: knowledge.Stats{
		Pages:       120,
		Chunks:      3400,
		Embeddings:  3400,
		PagesByType: map[string]int64{"boss": 20, "quest": 100},
	}}
	srv := testServer(t, &mockRetriever{}, stats)

	rec := doRequest(srv, http.MethodGet, "/api/v1/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["pages"].(float64) != 120 {
		t.Errorf("pages = %v, want 120", body["pages"])
	}
	if body["embeddings"].(float64) != 3400 {
		t.Errorf("embeddings = %v, want 3400", body["embeddings"])
	}
}

func TestStats_Failure(t *testing.T) {
	srv := testServer(t, &mockRetriever{}, &mockStats{err: errors.New("connection refused")})

	rec := doRequest(srv, http.MethodGet, "/api/v1/stats")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
