// Package wiki is the MediaWiki API client for the OSRS wiki.
//
// It uses the wiki's own API rather than HTML scraping of article pages:
// the API returns parsed content, categories and revision ids in one call,
// and exposes continuation tokens that make crawls resumable. All requests
// go through a shared rate limiter to honor the wiki's bot policy.
package wiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/askbob-ai/wikidex/internal/config"
)

var (
	// ErrPageMissing indicates the page does not exist or has no content.
	// Callers should skip the page rather than retry.
	ErrPageMissing = errors.New("page missing")

	// ErrRequestFailed indicates the API request failed after retries.
	ErrRequestFailed = errors.New("wiki request failed")
)

const (
	// listPageSize is the allpages batch size per request. 500 is the API
	// maximum for anonymous clients.
	listPageSize = 500

	// maxAttempts is how many times a request is tried before giving up.
	maxAttempts = 3
)

// Client talks to a MediaWiki api.php endpoint.
// It is safe for concurrent use; the rate limiter is shared across all
// in-flight requests.
type Client struct {
	apiURL    string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger

	// backoff is the base retry delay, doubled per attempt.
	backoff time.Duration
}

// NewClient creates a wiki client from configuration.
func NewClient(cfg config.WikiConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiURL:    cfg.APIURL,
		userAgent: cfg.UserAgent,
		http: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		logger:  logger,
		backoff: time.Second,
	}
}

// apiRequest performs one rate-limited GET with retries. Transient failures
// (network errors, 5xx, 429) back off exponentially; other HTTP errors fail
// immediately.
func (c *Client) apiRequest(ctx context.Context, params url.Values) ([]byte, error) {
	params.Set("format", "json")
	reqURL := c.apiURL + "?" + params.Encode()

	var lastErr error
	for attempt := range maxAttempts {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * c.backoff
			c.logger.Warn("wiki request retry",
				"attempt", attempt+1, "backoff", backoff, "error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, retryable, err := c.doRequest(ctx, reqURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRequestFailed, maxAttempts, lastErr)
}

func (c *Client) doRequest(ctx context.Context, reqURL string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retryable, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	return body, false, nil
}

// ListPages returns one batch of main-namespace articles starting at the
// given continuation token ("" for the first batch). Redirects are excluded.
// The returned token is "" once enumeration is complete; persisting it
// between calls is what makes a crawl resumable.
func (c *Client) ListPages(ctx context.Context, continueToken string) ([]PageRef, string, error) {
	params := url.Values{
		"action":        {"query"},
		"list":          {"allpages"},
		"apnamespace":   {"0"},
		"aplimit":       {strconv.Itoa(listPageSize)},
		"apfilterredir": {"nonredirects"},
	}
	if continueToken != "" {
		params.Set("apcontinue", continueToken)
	}

	body, err := c.apiRequest(ctx, params)
	if err != nil {
		return nil, "", err
	}

	var payload struct {
		Continue struct {
			APContinue string `json:"apcontinue"`
		} `json:"continue"`
		Query struct {
			AllPages []struct {
				PageID int64  `json:"pageid"`
				Title  string `json:"title"`
			} `json:"allpages"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, "", fmt.Errorf("decode allpages response: %w", err)
	}

	refs := make([]PageRef, 0, len(payload.Query.AllPages))
	for _, p := range payload.Query.AllPages {
		refs = append(refs, PageRef{PageID: p.PageID, Title: p.Title})
	}

	c.logger.Debug("listed pages", "count", len(refs), "next", payload.Continue.APContinue)
	return refs, payload.Continue.APContinue, nil
}

// GetPage fetches and extracts one page via action=parse.
// Returns ErrPageMissing for deleted pages and pages whose extracted text
// is empty; those are permanent conditions, not retry candidates.
func (c *Client) GetPage(ctx context.Context, pageID int64) (*Page, error) {
	params := url.Values{
		"action":             {"parse"},
		"pageid":             {strconv.FormatInt(pageID, 10)},
		"prop":               {"text|categories|revid"},
		"disablelimitreport": {"true"},
		"disableeditsection": {"true"},
		"disabletoc":         {"true"},
	}

	body, err := c.apiRequest(ctx, params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Error *struct {
			Code string `json:"code"`
			Info string `json:"info"`
		} `json:"error"`
		Parse *struct {
			Title string `json:"title"`
			RevID int64  `json:"revid"`
			Text  struct {
				HTML string `json:"*"`
			} `json:"text"`
			Categories []struct {
				Name string `json:"*"`
			} `json:"categories"`
		} `json:"parse"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode parse response: %w", err)
	}

	if payload.Error != nil {
		if payload.Error.Code == "missingtitle" || payload.Error.Code == "nosuchpageid" {
			return nil, fmt.Errorf("%w: page %d", ErrPageMissing, pageID)
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrRequestFailed, payload.Error.Code, payload.Error.Info)
	}
	if payload.Parse == nil {
		return nil, fmt.Errorf("%w: page %d", ErrPageMissing, pageID)
	}

	categories := make([]string, 0, len(payload.Parse.Categories))
	for _, cat := range payload.Parse.Categories {
		categories = append(categories, strings.ReplaceAll(cat.Name, "_", " "))
	}

	content, err := ExtractText(payload.Parse.Text.HTML)
	if err != nil {
		return nil, fmt.Errorf("extract page %d: %w", pageID, err)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: page %d has no text", ErrPageMissing, pageID)
	}

	return &Page{
		PageID:      pageID,
		Title:       payload.Parse.Title,
		Content:     content,
		Categories:  categories,
		PageType:    ClassifyPage(payload.Parse.Title, categories),
		RevisionID:  payload.Parse.RevID,
		URL:         PageURL(payload.Parse.Title),
		ContentHash: HashContent(content),
	}, nil
}

// RecentChanges returns pages edited or created since the given time,
// deduplicated by page id. Used by incremental updates.
func (c *Client) RecentChanges(ctx context.Context, since time.Time) ([]Change, error) {
	params := url.Values{
		"action":      {"query"},
		"list":        {"recentchanges"},
		"rcnamespace": {"0"},
		"rcprop":      {"title|ids|timestamp"},
		"rclimit":     {"500"},
		"rcend":       {since.UTC().Format(time.RFC3339)},
		"rctype":      {"edit|new"},
	}

	seen := make(map[int64]struct{})
	var changes []Change

	for {
		body, err := c.apiRequest(ctx, params)
		if err != nil {
			return nil, err
		}

		var payload struct {
			Continue struct {
				RCContinue string `json:"rccontinue"`
			} `json:"continue"`
			Query struct {
				RecentChanges []struct {
					PageID    int64  `json:"pageid"`
					Title     string `json:"title"`
					Timestamp string `json:"timestamp"`
				} `json:"recentchanges"`
			} `json:"query"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("decode recentchanges response: %w", err)
		}

		for _, rc := range payload.Query.RecentChanges {
			if _, ok := seen[rc.PageID]; ok {
				continue
			}
			seen[rc.PageID] = struct{}{}

			ts, err := time.Parse(time.RFC3339, rc.Timestamp)
			if err != nil {
				ts = time.Time{}
			}
			changes = append(changes, Change{PageID: rc.PageID, Title: rc.Title, Timestamp: ts})
		}

		if payload.Continue.RCContinue == "" {
			break
		}
		params.Set("rccontinue", payload.Continue.RCContinue)
	}

	c.logger.Info("recent changes fetched", "since", since, "pages", len(changes))
	return changes, nil
}
