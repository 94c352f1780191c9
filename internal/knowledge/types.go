package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// VectorDimension is the embedding dimensionality used throughout the system.
// The pgvector column is declared vector(768) and the embedder is configured
// to emit 768-dimensional vectors; writes with any other length are rejected.
const VectorDimension = 768

// Page classification values stored in pages.page_type and chunks.page_type.
const (
	PageTypeQuest            = "quest"
	PageTypeMonster          = "monster"
	PageTypeBoss             = "boss"
	PageTypeItem             = "item"
	PageTypeEquipment        = "equipment"
	PageTypeSkill            = "skill"
	PageTypeLocation         = "location"
	PageTypeMinigame         = "minigame"
	PageTypeNPC              = "npc"
	PageTypeSpell            = "spell"
	PageTypeClue             = "clue"
	PageTypeMoneyMaking      = "money_making"
	PageTypeAchievementDiary = "achievement_diary"
	PageTypeGeneral          = "general"
)

// Game mode facet values stored in chunks.game_modes.
const (
	ModeMain            = "main"
	ModeIronman         = "ironman"
	ModeHardcoreIronman = "hardcore_ironman"
	ModeUltimateIronman = "ultimate_ironman"
	ModeGroupIronman    = "group_ironman"
)

// AllGameModes lists every recognized game mode, in canonical order.
var AllGameModes = []string{
	ModeMain,
	ModeIronman,
	ModeHardcoreIronman,
	ModeUltimateIronman,
	ModeGroupIronman,
}

// Page is a wiki page as stored, keyed by the wiki's own page id.
// Content is the full normalized text the chunks were cut from, kept so a
// re-chunk never needs a re-crawl. ContentHash is its SHA-256; an unchanged
// hash on re-ingestion means the page's chunks and embeddings are left
// untouched.
type Page struct {
	PageID      int64
	Title       string
	PageType    string
	Content     string
	URL         string
	ContentHash string
	RevisionID  int64
	Categories  []string
	FetchedAt   time.Time
	UpdatedAt   time.Time
}

// Chunk is the retrieval unit: a contiguous span of one page's text with
// its contextual metadata denormalized for filtering.
type Chunk struct {
	ID         uuid.UUID
	PageID     int64
	Index      int
	Content    string
	Section    string
	PageTitle  string
	PageType   string
	GameModes  []string
	TokenCount int
	CreatedAt  time.Time
}

// Embedding is a chunk's vector. Exactly one row per chunk.
type Embedding struct {
	ChunkID uuid.UUID
	Vector  []float32
	Model   string
}

// SearchResult is one ranked chunk from a vector search. PageURL is the
// source page's stored URL, joined in so consumers can link back without
// reconstructing wiki addresses.
type SearchResult struct {
	Chunk
	PageURL    string
	Similarity float64
}

// Ingestion job kinds.
const (
	JobKindFull        = "full"
	JobKindIncremental = "incremental"
)

// Ingestion job statuses.
const (
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job is one crawl run's bookkeeping row. Cursor is the opaque resume
// position (the wiki API continuation token plus offset).
type Job struct {
	ID             uuid.UUID
	Kind           string
	Status         string
	Cursor         string
	PagesProcessed int
	PagesSkipped   int
	PagesFailed    int
	ChunksWritten  int
	LastError      string
	StartedAt      time.Time
	UpdatedAt      time.Time
	FinishedAt     time.Time
}

// JobProgress is a progress delta applied to a running job.
type JobProgress struct {
	Cursor         string
	PagesProcessed int
	PagesSkipped   int
	PagesFailed    int
	ChunksWritten  int
}

// Stats summarizes the index contents.
type Stats struct {
	Pages       int64
	Chunks      int64
	Embeddings  int64
	PagesByType map[string]int64
}

// SearchOption configures search behavior using the functional options pattern.
type SearchOption func(*searchConfig)

// searchConfig holds internal search configuration.
type searchConfig struct {
	topK     int
	pageType string
	gameMode string
	timeout  time.Duration
}

// WithTopK sets the maximum number of results to return.
// Default is 5 if not specified. Zero and negative values are kept
// as given so Search can reject them instead of silently correcting.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		c.topK = k
	}
}

// WithPageType restricts results to chunks from pages of the given type.
// Empty string means no restriction.
func WithPageType(pageType string) SearchOption {
	return func(c *searchConfig) {
		c.pageType = pageType
	}
}

// WithGameMode restricts results to chunks tagged with the given game mode.
// Filters are conjunctive: combining WithPageType and WithGameMode requires
// both to match. Empty string means no restriction.
func WithGameMode(mode string) SearchOption {
	return func(c *searchConfig) {
		c.gameMode = mode
	}
}

// WithTimeout overrides the default 10-second search timeout.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// buildSearchConfig applies search options and returns the final configuration.
func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    5,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
