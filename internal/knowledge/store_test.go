package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/askbob-ai/wikidex/internal/log"
)

// mockQuerier implements Querier for testing.
type mockQuerier struct {
	// Error configuration
	getHashErr error
	replaceErr error
	deleteErr  error
	missingErr error
	listErr    error
	upsertErr  error
	searchErr  error
	statsErr   error

	// Return values
	storedHash     string
	replacedChunks []Chunk
	missingChunks  []Chunk
	listBatches    [][]Chunk
	searchResults  []SearchResult
	statsResult    Stats

	// Call tracking
	getHashCalls  int
	replaceCalls  int
	upsertCalls   int
	searchCalls   int
	listCalls     int
	lastPageType  string
	lastGameMode  string
	lastLimit     int
	lastEmbedding []Embedding
	lastPage      Page
}

func (m *mockQuerier) GetPageHash(ctx context.Context, pageID int64) (string, error) {
	m.getHashCalls++
	if m.getHashErr != nil {
		return "", m.getHashErr
	}
	return m.storedHash, nil
}

func (m *mockQuerier) ReplacePage(ctx context.Context, page Page, chunks []Chunk) ([]Chunk, error) {
	m.replaceCalls++
	m.lastPage = page
	if m.replaceErr != nil {
		return nil, m.replaceErr
	}
	if m.replacedChunks != nil {
		return m.replacedChunks, nil
	}
	out := make([]Chunk, len(chunks))
	copy(out, chunks)
	for i := range out {
		out[i].ID = uuid.New()
	}
	return out, nil
}

func (m *mockQuerier) DeletePage(ctx context.Context, pageID int64) error {
	return m.deleteErr
}

func (m *mockQuerier) ChunksMissingEmbeddings(ctx context.Context, limit int) ([]Chunk, error) {
	m.lastLimit = limit
	if m.missingErr != nil {
		return nil, m.missingErr
	}
	return m.missingChunks, nil
}

func (m *mockQuerier) ListChunks(ctx context.Context, afterID uuid.UUID, limit int) ([]Chunk, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	if m.listCalls >= len(m.listBatches) {
		m.listCalls++
		return nil, nil
	}
	batch := m.listBatches[m.listCalls]
	m.listCalls++
	return batch, nil
}

func (m *mockQuerier) UpsertEmbeddings(ctx context.Context, embeddings []Embedding) error {
	m.upsertCalls++
	m.lastEmbedding = embeddings
	return m.upsertErr
}

func (m *mockQuerier) SearchChunks(ctx context.Context, vec pgvector.Vector, pageType, gameMode string, limit int) ([]SearchResult, error) {
	m.searchCalls++
	m.lastPageType = pageType
	m.lastGameMode = gameMode
	m.lastLimit = limit
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.searchResults, nil
}

func (m *mockQuerier) CountStats(ctx context.Context) (Stats, error) {
	if m.statsErr != nil {
		return Stats{}, m.statsErr
	}
	return m.statsResult, nil
}

func (m *mockQuerier) CreateJob(ctx context.Context, kind string) (Job, error) {
	return Job{ID: uuid.New(), Kind: kind, Status: JobStatusInProgress}, nil
}

func (m *mockQuerier) ActiveJob(ctx context.Context, kind string) (Job, error) {
	return Job{}, ErrNotFound
}

func (m *mockQuerier) LatestJob(ctx context.Context, kind string) (Job, error) {
	return Job{}, ErrNotFound
}

func (m *mockQuerier) AdvanceJob(ctx context.Context, id uuid.UUID, p JobProgress) error {
	return nil
}

func (m *mockQuerier) FinishJob(ctx context.Context, id uuid.UUID, status, lastError string) error {
	return nil
}

func testVector(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(i) / float32(dim)
	}
	return v
}

func testPage() Page {
	return Page{
		PageID:      42,
		Title:       "Dragon Slayer",
		PageType:    PageTypeQuest,
		ContentHash: "abc123",
	}
}

func testChunks() []Chunk {
	return []Chunk{
		{PageID: 42, Index: 0, Content: "chunk zero", PageTitle: "Dragon Slayer", PageType: PageTypeQuest, GameModes: AllGameModes},
		{PageID: 42, Index: 1, Content: "chunk one", PageTitle: "Dragon Slayer", PageType: PageTypeQuest, GameModes: AllGameModes},
	}
}

func TestSavePage_NewPage(t *testing.T) {
	mock := &mockQuerier{getHashErr: ErrNotFound}
	store := NewStore(mock, log.NewNop())

	res, err := store.SavePage(context.Background(), testPage(), testChunks())
	if err != nil {
		t.Fatalf("SavePage() error: %v", err)
	}
	if !res.Changed {
		t.Error("SavePage() Changed = false, want true for new page")
	}
	if len(res.Chunks) != 2 {
		t.Errorf("SavePage() returned %d chunks, want 2", len(res.Chunks))
	}
	for i, c := range res.Chunks {
		if c.ID == uuid.Nil {
			t.Errorf("chunk %d has nil id", i)
		}
	}
	if mock.replaceCalls != 1 {
		t.Errorf("ReplacePage called %d times, want 1", mock.replaceCalls)
	}
}

func TestSavePage_UnchangedHashIsNoOp(t *testing.T) {
	mock := &mockQuerier{storedHash: "abc123"}
	store := NewStore(mock, log.NewNop())

	res, err := store.SavePage(context.Background(), testPage(), testChunks())
	if err != nil {
		t.Fatalf("SavePage() error: %v", err)
	}
	if res.Changed {
		t.Error("SavePage() Changed = true, want false for unchanged hash")
	}
	if mock.replaceCalls != 0 {
		t.Errorf("ReplacePage called %d times, want 0 for unchanged page", mock.replaceCalls)
	}
}

func TestSavePage_ChangedHashReplaces(t *testing.T) {
	mock := &mockQuerier{storedHash: "old_hash"}
	store := NewStore(mock, log.NewNop())

	res, err := store.SavePage(context.Background(), testPage(), testChunks())
	if err != nil {
		t.Fatalf("SavePage() error: %v", err)
	}
	if !res.Changed {
		t.Error("SavePage() Changed = false, want true for changed hash")
	}
	if mock.replaceCalls != 1 {
		t.Errorf("ReplacePage called %d times, want 1", mock.replaceCalls)
	}
}

func TestSavePage_EmptyHashRejected(t *testing.T) {
	store := NewStore(&mockQuerier{}, log.NewNop())

	page := testPage()
	page.ContentHash = ""
	if _, err := store.SavePage(context.Background(), page, nil); err == nil {
		t.Error("SavePage() with empty hash = nil, want error")
	}
}

func TestSavePage_HashLookupErrorPropagates(t *testing.T) {
	wantErr := errors.New("connection refused")
	mock := &mockQuerier{getHashErr: wantErr}
	store := NewStore(mock, log.NewNop())

	_, err := store.SavePage(context.Background(), testPage(), testChunks())
	if !errors.Is(err, wantErr) {
		t.Errorf("SavePage() error = %v, want %v", err, wantErr)
	}
	if mock.replaceCalls != 0 {
		t.Error("ReplacePage should not be called when hash lookup fails")
	}
}

func TestSaveEmbeddings(t *testing.T) {
	mock := &mockQuerier{}
	store := NewStore(mock, log.NewNop())

	embeddings := []Embedding{
		{ChunkID: uuid.New(), Vector: testVector(VectorDimension), Model: "test-model"},
		{ChunkID: uuid.New(), Vector: testVector(VectorDimension), Model: "test-model"},
	}

	if err := store.SaveEmbeddings(context.Background(), embeddings); err != nil {
		t.Fatalf("SaveEmbeddings() error: %v", err)
	}
	if mock.upsertCalls != 1 {
		t.Errorf("UpsertEmbeddings called %d times, want 1", mock.upsertCalls)
	}
	if len(mock.lastEmbedding) != 2 {
		t.Errorf("UpsertEmbeddings received %d embeddings, want 2", len(mock.lastEmbedding))
	}
}

func TestSaveEmbeddings_DimensionMismatch(t *testing.T) {
	mock := &mockQuerier{}
	store := NewStore(mock, log.NewNop())

	embeddings := []Embedding{
		{ChunkID: uuid.New(), Vector: testVector(VectorDimension)},
		{ChunkID: uuid.New(), Vector: testVector(512)}, // wrong length
	}

	err := store.SaveEmbeddings(context.Background(), embeddings)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("SaveEmbeddings() error = %v, want ErrDimensionMismatch", err)
	}
	if mock.upsertCalls != 0 {
		t.Error("UpsertEmbeddings should not be called when any vector has the wrong dimension")
	}
}

func TestSearch_Defaults(t *testing.T) {
	mock := &mockQuerier{
		searchResults: []SearchResult{
			{Chunk: Chunk{Content: "hit"}, Similarity: 0.92},
		},
	}
	store := NewStore(mock, log.NewNop())

	results, err := store.Search(context.Background(), testVector(VectorDimension))
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Search() returned %d results, want 1", len(results))
	}
	if mock.lastLimit != 5 {
		t.Errorf("default top_k = %d, want 5", mock.lastLimit)
	}
	if mock.lastPageType != "" || mock.lastGameMode != "" {
		t.Errorf("default filters = (%q, %q), want empty", mock.lastPageType, mock.lastGameMode)
	}
}

func TestSearch_Options(t *testing.T) {
	mock := &mockQuerier{}
	store := NewStore(mock, log.NewNop())

	_, err := store.Search(context.Background(), testVector(VectorDimension),
		WithTopK(8),
		WithPageType(PageTypeQuest),
		WithGameMode(ModeIronman))
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if mock.lastLimit != 8 {
		t.Errorf("top_k = %d, want 8", mock.lastLimit)
	}
	if mock.lastPageType != PageTypeQuest {
		t.Errorf("page_type filter = %q, want %q", mock.lastPageType, PageTypeQuest)
	}
	if mock.lastGameMode != ModeIronman {
		t.Errorf("game_mode filter = %q, want %q", mock.lastGameMode, ModeIronman)
	}
}

func TestSearch_InvalidTopK(t *testing.T) {
	mock := &mockQuerier{}
	store := NewStore(mock, log.NewNop())

	for _, k := range []int{0, -3} {
		_, err := store.Search(context.Background(), testVector(VectorDimension), WithTopK(k))
		if !errors.Is(err, ErrInvalidTopK) {
			t.Errorf("Search(WithTopK(%d)) error = %v, want ErrInvalidTopK", k, err)
		}
	}
	if mock.searchCalls != 0 {
		t.Error("SearchChunks should not be called with a non-positive limit")
	}
}

func TestSearch_DimensionMismatch(t *testing.T) {
	mock := &mockQuerier{}
	store := NewStore(mock, log.NewNop())

	_, err := store.Search(context.Background(), testVector(100))
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Search() error = %v, want ErrDimensionMismatch", err)
	}
	if mock.searchCalls != 0 {
		t.Error("SearchChunks should not be called with a mis-sized query vector")
	}
}

func TestSearch_QuerierErrorPropagates(t *testing.T) {
	wantErr := errors.New("index unavailable")
	mock := &mockQuerier{searchErr: wantErr}
	store := NewStore(mock, log.NewNop())

	_, err := store.Search(context.Background(), testVector(VectorDimension))
	if !errors.Is(err, wantErr) {
		t.Errorf("Search() error = %v, want %v", err, wantErr)
	}
}

func TestWalkChunks(t *testing.T) {
	batch1 := []Chunk{{ID: uuid.New()}, {ID: uuid.New()}}
	batch2 := []Chunk{{ID: uuid.New()}}
	mock := &mockQuerier{listBatches: [][]Chunk{batch1, batch2}}
	store := NewStore(mock, log.NewNop())

	var visited int
	err := store.WalkChunks(context.Background(), 2, func(chunks []Chunk) error {
		visited += len(chunks)
		return nil
	})
	if err != nil {
		t.Fatalf("WalkChunks() error: %v", err)
	}
	if visited != 3 {
		t.Errorf("visited %d chunks, want 3", visited)
	}
}

func TestWalkChunks_CallbackErrorStops(t *testing.T) {
	wantErr := errors.New("stop here")
	mock := &mockQuerier{listBatches: [][]Chunk{{{ID: uuid.New()}}, {{ID: uuid.New()}}}}
	store := NewStore(mock, log.NewNop())

	err := store.WalkChunks(context.Background(), 1, func([]Chunk) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("WalkChunks() error = %v, want %v", err, wantErr)
	}
	if mock.listCalls != 1 {
		t.Errorf("ListChunks called %d times, want 1 after callback error", mock.listCalls)
	}
}

func TestPendingChunks_InvalidLimit(t *testing.T) {
	store := NewStore(&mockQuerier{}, log.NewNop())

	if _, err := store.PendingChunks(context.Background(), 0); err == nil {
		t.Error("PendingChunks(0) = nil, want error")
	}
}
