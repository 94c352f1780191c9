package wiki

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// PageRef identifies a page during enumeration, before its content is fetched.
type PageRef struct {
	PageID int64
	Title  string
}

// Page is a fetched wiki page with extracted text.
type Page struct {
	PageID     int64
	Title      string
	Content    string
	Categories []string
	PageType   string
	RevisionID int64
	URL        string
	// ContentHash is the SHA-256 hex digest of Content.
	ContentHash string
}

// Change is one entry from the recent-changes feed.
type Change struct {
	PageID    int64
	Title     string
	Timestamp time.Time
}

// HashContent returns the SHA-256 hex digest used for no-op detection.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// PageURL returns the human-facing URL for a page title.
func PageURL(title string) string {
	return "https://oldschool.runescape.wiki/w/" + strings.ReplaceAll(title, " ", "_")
}
