package wiki

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/askbob-ai/wikidex/internal/config"
	"github.com/askbob-ai/wikidex/internal/log"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(config.WikiConfig{
		APIURL:         server.URL,
		UserAgent:      "wikidex-test/1.0",
		RateLimit:      1000, // effectively unlimited in tests
		TimeoutSeconds: 5,
	}, log.NewNop())
	client.backoff = time.Millisecond
	return client
}

func TestListPages_FollowsContinuation(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		if q.Get("list") != "allpages" || q.Get("apfilterredir") != "nonredirects" {
			t.Errorf("unexpected query: %v", q)
		}

		if q.Get("apcontinue") == "" {
			fmt.Fprint(w, `{
				"continue": {"apcontinue": "Barrows"},
				"query": {"allpages": [
					{"pageid": 1, "title": "Abyssal whip"},
					{"pageid": 2, "title": "Avantoe"}
				]}
			}`)
			return
		}
		fmt.Fprint(w, `{"query": {"allpages": [{"pageid": 3, "title": "Barrows"}]}}`)
	})

	ctx := context.Background()

	refs, next, err := client.ListPages(ctx, "")
	if err != nil {
		t.Fatalf("ListPages() error: %v", err)
	}
	if len(refs) != 2 || next != "Barrows" {
		t.Fatalf("ListPages() = %d refs, next %q; want 2 refs, next Barrows", len(refs), next)
	}
	if refs[0].PageID != 1 || refs[0].Title != "Abyssal whip" {
		t.Errorf("first ref = %+v", refs[0])
	}

	refs, next, err = client.ListPages(ctx, next)
	if err != nil {
		t.Fatalf("ListPages() second batch error: %v", err)
	}
	if len(refs) != 1 || next != "" {
		t.Errorf("second batch = %d refs, next %q; want 1 ref, empty next", len(refs), next)
	}
	if calls.Load() != 2 {
		t.Errorf("server saw %d calls, want 2", calls.Load())
	}
}

func TestGetPage(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("action") != "parse" || q.Get("pageid") != "7" {
			t.Errorf("unexpected query: %v", q)
		}
		if r.Header.Get("User-Agent") != "wikidex-test/1.0" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		fmt.Fprint(w, `{
			"parse": {
				"title": "Fire cape",
				"revid": 991,
				"text": {"*": "<p>The fire cape is a reward.</p><h2>Obtaining</h2><p>Complete the fight caves.</p>"},
				"categories": [{"*": "Melee_equipment"}, {"*": "Capes"}]
			}
		}`)
	})

	page, err := client.GetPage(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetPage() error: %v", err)
	}

	if page.Title != "Fire cape" || page.RevisionID != 991 {
		t.Errorf("page identity = %q rev %d", page.Title, page.RevisionID)
	}
	if page.Categories[0] != "Melee equipment" {
		t.Errorf("category underscore not replaced: %q", page.Categories[0])
	}
	if page.PageType != "equipment" {
		t.Errorf("page type = %q, want equipment", page.PageType)
	}
	if page.ContentHash != HashContent(page.Content) {
		t.Error("content hash does not match content")
	}
	if page.URL != "https://oldschool.runescape.wiki/w/Fire_cape" {
		t.Errorf("url = %q", page.URL)
	}
}

func TestGetPage_Missing(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": {"code": "nosuchpageid", "info": "There is no page with ID 999."}}`)
	})

	_, err := client.GetPage(context.Background(), 999)
	if !errors.Is(err, ErrPageMissing) {
		t.Errorf("GetPage() = %v, want ErrPageMissing", err)
	}
}

func TestGetPage_EmptyContentIsMissing(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"parse": {"title": "Empty", "revid": 1, "text": {"*": "<div></div>"}, "categories": []}}`)
	})

	_, err := client.GetPage(context.Background(), 1)
	if !errors.Is(err, ErrPageMissing) {
		t.Errorf("GetPage() on empty page = %v, want ErrPageMissing", err)
	}
}

func TestAPIRequest_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"query": {"allpages": []}}`)
	})

	_, _, err := client.ListPages(context.Background(), "")
	if err != nil {
		t.Fatalf("ListPages() after retries error: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("server saw %d calls, want 3 (two failures then success)", calls.Load())
	}
}

func TestAPIRequest_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, _, err := client.ListPages(context.Background(), "")
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("ListPages() = %v, want ErrRequestFailed", err)
	}
	if calls.Load() != int32(maxAttempts) {
		t.Errorf("server saw %d calls, want %d", calls.Load(), maxAttempts)
	}
}

func TestAPIRequest_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	})

	_, _, err := client.ListPages(context.Background(), "")
	if err == nil {
		t.Fatal("ListPages() = nil, want error")
	}
	if calls.Load() != 1 {
		t.Errorf("server saw %d calls, want 1 (4xx is permanent)", calls.Load())
	}
}

func TestRecentChanges_DeduplicatesAndPaginates(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("rccontinue") == "" {
			fmt.Fprint(w, `{
				"continue": {"rccontinue": "next|token"},
				"query": {"recentchanges": [
					{"pageid": 1, "title": "Zulrah", "timestamp": "2026-08-29T10:00:00Z"},
					{"pageid": 1, "title": "Zulrah", "timestamp": "2026-08-29T09:00:00Z"}
				]}
			}`)
			return
		}
		fmt.Fprint(w, `{"query": {"recentchanges": [
			{"pageid": 2, "title": "Vorkath", "timestamp": "2026-08-29T08:00:00Z"}
		]}}`)
	})

	since := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	changes, err := client.RecentChanges(context.Background(), since)
	if err != nil {
		t.Fatalf("RecentChanges() error: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("RecentChanges() = %d changes, want 2 after dedup", len(changes))
	}
	if changes[0].PageID != 1 || changes[1].PageID != 2 {
		t.Errorf("changes = %+v", changes)
	}
}
