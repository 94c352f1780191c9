package retrieval

import "strings"

// Hint tells the downstream generation step which model tier a query
// warrants.
type Hint string

const (
	// HintSimple marks direct factual lookups.
	HintSimple Hint = "simple"
	// HintDeep marks multi-step or strategic questions that need the
	// stronger (and slower) model.
	HintDeep Hint = "deep"
)

// Context budget per hint.
const (
	TopKSimple = 5
	TopKDeep   = 8
)

// deepIndicators are substrings whose presence marks a query as
// multi-step or strategic.
var deepIndicators = []string{
	"compare", "difference between", "best way", "optimal",
	"strategy", "should i", "worth it", "efficient",
	"how to", "guide", "explain", "why",
	"dps", "bis", "best in slot", "meta",
	"money making", "profit",
}

// Classify decides the routing hint for a query. It is a pure function
// over the query text and never touches external services.
func Classify(query string) Hint {
	q := strings.ToLower(query)
	for _, indicator := range deepIndicators {
		if strings.Contains(q, indicator) {
			return HintDeep
		}
	}
	return HintSimple
}

// TopK returns the context budget for a hint.
func (h Hint) TopK() int {
	if h == HintDeep {
		return TopKDeep
	}
	return TopKSimple
}
