package retrieval

import (
	"slices"
	"strings"

	"github.com/askbob-ai/wikidex/internal/knowledge"
)

// Boost weights applied on top of cosine similarity during reranking.
const (
	// TitleBoost favors chunks from pages named in the query.
	TitleBoost = 0.30
	// SectionBoost is added when the chunk's section header matches the
	// query's intent, on top of a title or cross-reference boost.
	SectionBoost = 0.10
	// CrossRefBoost favors chunks from pages the top results mention.
	CrossRefBoost = 0.20
)

// Titles shorter than these don't participate in matching; tiny titles
// ("Axe", "Bones") false-positive on almost any query or content.
const (
	minTitleMatchLen = 4
	minCrossRefLen   = 6
)

// sectionKeywords maps query substrings to section headers likely to hold
// the answer.
var sectionKeywords = map[string][]string{
	"requirement": {"requirements", "details", "quest requirements", "skill requirements"},
	"drop":        {"drops", "drop rates", "loot", "rare drop table"},
	"strateg":     {"strategy", "strategies", "guide", "walkthrough"},
	"reward":      {"rewards", "completion"},
	"location":    {"location", "getting there", "how to get there"},
	"how to get":  {"location", "getting there", "transportation"},
	"where":       {"location", "getting there"},
	"spec":        {"special attack", "combat"},
	"stats":       {"stats", "bonuses", "combat stats"},
	"price":       {"price", "value", "cost", "exchange"},
	"quest":       {"details", "requirements", "rewards", "walkthrough"},
}

// querySectionKeywords returns the section headers a query's wording
// points at.
func querySectionKeywords(query string) []string {
	q := strings.ToLower(query)
	var keywords []string
	for trigger, sections := range sectionKeywords {
		if strings.Contains(q, trigger) {
			keywords = append(keywords, sections...)
		}
	}
	return keywords
}

func sectionMatches(section string, keywords []string) bool {
	if section == "" || len(keywords) == 0 {
		return false
	}
	section = strings.ToLower(section)
	for _, kw := range keywords {
		if strings.Contains(section, kw) {
			return true
		}
	}
	return false
}

// rerank re-scores candidates against the query text. Chunks from pages
// named in the query get TitleBoost; chunks from pages the top candidates
// mention get CrossRefBoost; either combines with SectionBoost when the
// section header matches the query's intent. Scores are capped at 1.0.
// Candidates must arrive sorted by similarity descending.
func rerank(query string, candidates []knowledge.SearchResult) []knowledge.SearchResult {
	if len(candidates) == 0 {
		return candidates
	}
	qLower := strings.ToLower(query)
	keywords := querySectionKeywords(query)

	// Titles from the query, minus ones shadowed by a longer match:
	// a query naming "Dragon Slayer II" must not also boost every
	// "Dragon Slayer I" chunk.
	matched := make(map[string]bool)
	for _, c := range candidates {
		title := strings.ToLower(c.PageTitle)
		if len(title) >= minTitleMatchLen && strings.Contains(qLower, title) {
			matched[title] = true
		}
	}
	for title := range matched {
		for other := range matched {
			if title != other && strings.Contains(other, title) {
				matched[title] = false
			}
		}
	}

	// Cross-references come from what the strongest candidates talk about.
	// The top pages themselves are excluded: a page mentioning its own
	// title is not a reference.
	var topContent strings.Builder
	topPages := make(map[string]bool)
	for _, c := range candidates[:min(3, len(candidates))] {
		topContent.WriteString(strings.ToLower(c.Content))
		topContent.WriteByte(' ')
		topPages[strings.ToLower(c.PageTitle)] = true
	}
	mentioned := topContent.String()

	reranked := make([]knowledge.SearchResult, len(candidates))
	for i, c := range candidates {
		title := strings.ToLower(c.PageTitle)
		boost := 0.0
		switch {
		case matched[title]:
			boost = TitleBoost
		case len(title) >= minCrossRefLen &&
			!topPages[title] &&
			!strings.Contains(qLower, title) &&
			strings.Contains(mentioned, title):
			boost = CrossRefBoost
		}
		if boost > 0 && sectionMatches(c.Section, keywords) {
			boost += SectionBoost
		}
		c.Similarity = min(c.Similarity+boost, 1.0)
		reranked[i] = c
	}

	slices.SortStableFunc(reranked, func(a, b knowledge.SearchResult) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		default:
			return strings.Compare(a.ID.String(), b.ID.String())
		}
	})
	return reranked
}
