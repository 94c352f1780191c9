package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/askbob-ai/wikidex/internal/knowledge"
	"github.com/askbob-ai/wikidex/internal/wiki"
)

type finishCall struct {
	id        uuid.UUID
	status    string
	lastError string
}

// mockQuerier implements knowledge.Querier in memory. Behavior is
// configured through fields; mutations are recorded for assertions.
// All methods are goroutine safe because the pipeline calls the store
// from worker goroutines.
type mockQuerier struct {
	mu sync.Mutex

	hashes    map[int64]string
	allChunks []knowledge.Chunk
	pending   []knowledge.Chunk

	replaceErr   error
	upsertErr    error
	deleteErr    error
	activeJob    knowledge.Job
	activeErr    error
	createErr    error
	advanceErr   error
	latestByKind map[string]knowledge.Job

	replacedPages []knowledge.Page
	deletedPages  []int64
	embeddings    []knowledge.Embedding
	createdKinds  []string
	advances      []knowledge.JobProgress
	finishes      []finishCall
	finished      map[uuid.UUID]string
}

func newMockQuerier() *mockQuerier {
	return &mockQuerier{
		hashes:       make(map[int64]string),
		latestByKind: make(map[string]knowledge.Job),
		finished:     make(map[uuid.UUID]string),
	}
}

func (m *mockQuerier) GetPageHash(_ context.Context, pageID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hash, ok := m.hashes[pageID]
	if !ok {
		return "", knowledge.ErrNotFound
	}
	return hash, nil
}

func (m *mockQuerier) ReplacePage(_ context.Context, page knowledge.Page, chunks []knowledge.Chunk) ([]knowledge.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return nil, m.replaceErr
	}
	m.replacedPages = append(m.replacedPages, page)
	m.hashes[page.PageID] = page.ContentHash
	inserted := make([]knowledge.Chunk, len(chunks))
	for i, c := range chunks {
		c.ID = uuid.New()
		inserted[i] = c
	}
	return inserted, nil
}

func (m *mockQuerier) DeletePage(_ context.Context, pageID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deletedPages = append(m.deletedPages, pageID)
	delete(m.hashes, pageID)
	return nil
}

func (m *mockQuerier) ChunksMissingEmbeddings(_ context.Context, limit int) ([]knowledge.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := min(limit, len(m.pending))
	batch := m.pending[:n]
	m.pending = m.pending[n:]
	return batch, nil
}

func (m *mockQuerier) ListChunks(_ context.Context, afterID uuid.UUID, limit int) ([]knowledge.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := 0
	if afterID != uuid.Nil {
		for i, c := range m.allChunks {
			if c.ID == afterID {
				start = i + 1
				break
			}
		}
	}
	end := min(start+limit, len(m.allChunks))
	return m.allChunks[start:end], nil
}

func (m *mockQuerier) UpsertEmbeddings(_ context.Context, embeddings []knowledge.Embedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.embeddings = append(m.embeddings, embeddings...)
	return nil
}

func (m *mockQuerier) SearchChunks(context.Context, pgvector.Vector, string, string, int) ([]knowledge.SearchResult, error) {
	return nil, nil
}

func (m *mockQuerier) CountStats(context.Context) (knowledge.Stats, error) {
	return knowledge.Stats{}, nil
}

func (m *mockQuerier) CreateJob(_ context.Context, kind string) (knowledge.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return knowledge.Job{}, m.createErr
	}
	m.createdKinds = append(m.createdKinds, kind)
	return knowledge.Job{
		ID:        uuid.New(),
		Kind:      kind,
		Status:    knowledge.JobStatusInProgress,
		StartedAt: time.Now().UTC(),
	}, nil
}

func (m *mockQuerier) ActiveJob(_ context.Context, _ string) (knowledge.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeErr != nil {
		return knowledge.Job{}, m.activeErr
	}
	return m.activeJob, nil
}

func (m *mockQuerier) LatestJob(_ context.Context, kind string) (knowledge.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.latestByKind[kind]
	if !ok {
		return knowledge.Job{}, knowledge.ErrNotFound
	}
	return job, nil
}

func (m *mockQuerier) AdvanceJob(_ context.Context, _ uuid.UUID, p knowledge.JobProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.advanceErr != nil {
		return m.advanceErr
	}
	m.advances = append(m.advances, p)
	return nil
}

func (m *mockQuerier) FinishJob(_ context.Context, id uuid.UUID, status, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Mirrors the real terminal-state semantics: re-marking the same
	// terminal status is a no-op, a conflicting one is an error.
	if prev, ok := m.finished[id]; ok {
		if prev == status {
			return nil
		}
		return fmt.Errorf("job %s is already %s, cannot mark it %s", id, prev, status)
	}
	m.finished[id] = status
	m.finishes = append(m.finishes, finishCall{id: id, status: status, lastError: lastError})
	return nil
}

func (m *mockQuerier) snapshot() mockQuerier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return mockQuerier{
		replacedPages: append([]knowledge.Page(nil), m.replacedPages...),
		deletedPages:  append([]int64(nil), m.deletedPages...),
		embeddings:    append([]knowledge.Embedding(nil), m.embeddings...),
		createdKinds:  append([]string(nil), m.createdKinds...),
		advances:      append([]knowledge.JobProgress(nil), m.advances...),
		finishes:      append([]finishCall(nil), m.finishes...),
	}
}

type listBatch struct {
	refs []wiki.PageRef
	next string
}

// mockSource serves a scripted sequence of page listing batches and a
// fixed set of fetchable pages.
type mockSource struct {
	mu sync.Mutex

	batches    []listBatch
	listErr    error
	pages      map[int64]*wiki.Page
	getErrs    map[int64]error
	changes    []wiki.Change
	changesErr error

	listCursors []string
	fetched     []int64
	sinceSeen   time.Time
}

func (s *mockSource) ListPages(_ context.Context, continueToken string) ([]wiki.PageRef, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCursors = append(s.listCursors, continueToken)
	if s.listErr != nil {
		return nil, "", s.listErr
	}
	idx := 0
	if continueToken != "" {
		for i, b := range s.batches {
			if b.next == continueToken {
				idx = i + 1
				break
			}
		}
	}
	if idx >= len(s.batches) {
		return nil, "", nil
	}
	b := s.batches[idx]
	return b.refs, b.next, nil
}

func (s *mockSource) GetPage(_ context.Context, pageID int64) (*wiki.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = append(s.fetched, pageID)
	if err, ok := s.getErrs[pageID]; ok {
		return nil, err
	}
	page, ok := s.pages[pageID]
	if !ok {
		return nil, wiki.ErrPageMissing
	}
	return page, nil
}

func (s *mockSource) RecentChanges(_ context.Context, since time.Time) ([]wiki.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinceSeen = since
	if s.changesErr != nil {
		return nil, s.changesErr
	}
	return s.changes, nil
}
