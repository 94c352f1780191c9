package chunker

import (
	"strings"

	"github.com/askbob-ai/wikidex/internal/knowledge"
)

// Title keywords that mark a page as ironman-specific.
var ironmanTitleKeywords = []string{"ironman guide", "ironman", "iron man"}

// Content keywords that only matter on trading-capable accounts. Group
// ironmen can trade within their group, so they stay included.
var mainOnlyKeywords = []string{"grand exchange price", "buy limit", "trading"}

// ironmanModes is every restricted mode, excluding main.
var ironmanModes = []string{
	knowledge.ModeIronman,
	knowledge.ModeHardcoreIronman,
	knowledge.ModeUltimateIronman,
	knowledge.ModeGroupIronman,
}

// tradingModes is who Grand Exchange content applies to.
var tradingModes = []string{knowledge.ModeMain, knowledge.ModeGroupIronman}

// detectGameModes tags a chunk with the game modes it is relevant to.
// The default is all modes; the facet narrows only when the text or title
// signals mode-specific content.
func detectGameModes(text, title string) []string {
	titleLower := strings.ToLower(title)
	for _, kw := range ironmanTitleKeywords {
		if strings.Contains(titleLower, kw) {
			return append([]string(nil), ironmanModes...)
		}
	}

	textLower := strings.ToLower(text)
	for _, kw := range mainOnlyKeywords {
		if strings.Contains(textLower, kw) {
			return append([]string(nil), tradingModes...)
		}
	}

	return append([]string(nil), knowledge.AllGameModes...)
}
