// Package chunker splits extracted wiki page text into retrieval chunks.
//
// Splitting is deterministic: the same input always yields the same chunks
// with the same indices, which keeps re-ingestion idempotent. Sections come
// from "## " header lines in the extracted text; undersized sections merge
// forward into a buffer and oversized ones split on paragraph boundaries
// with a trailing overlap for context continuity.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/askbob-ai/wikidex/internal/knowledge"
)

// Token estimation is a character heuristic: roughly 4 characters per token
// for English prose. Good enough for sizing chunks against embedder limits.
const (
	CharsPerToken  = 4
	MinChunkTokens = 50
	MaxChunkTokens = 1000
	OverlapTokens  = 100
)

// Sections that carry no answerable content.
var skippedSections = map[string]struct{}{
	"references":     {},
	"external links": {},
	"see also":       {},
	"gallery":        {},
}

// Input is one page's extracted text plus the metadata denormalized onto
// every chunk.
type Input struct {
	PageID     int64
	Title      string
	Content    string
	PageType   string
	Categories []string
}

// EstimateTokens returns the rough token count of text.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / CharsPerToken
}

type section struct {
	header string
	body   string
}

// Split chunks a page. Chunks shorter than MinChunkTokens after all merging
// are dropped rather than embedded as noise. Every produced chunk's content
// is prefixed with "Page: ... | Section: ... | Type: ..." so the embedder
// sees its context even when the body text alone is ambiguous.
func Split(in Input) []knowledge.Chunk {
	if strings.TrimSpace(in.Content) == "" {
		return nil
	}

	sections := splitIntoSections(in.Content)

	var chunks []knowledge.Chunk
	index := 0
	bufferHeader := in.Title
	bufferContent := ""

	emit := func(header, content string) {
		content = strings.TrimSpace(content)
		chunks = append(chunks, knowledge.Chunk{
			PageID:     in.PageID,
			Index:      index,
			Content:    content,
			Section:    header,
			PageTitle:  in.Title,
			PageType:   in.PageType,
			GameModes:  detectGameModes(content, in.Title),
			TokenCount: EstimateTokens(content),
		})
		index++
	}

	for _, sec := range sections {
		header := sec.header
		if header == "" {
			header = in.Title
		}
		text := strings.TrimSpace(sec.body)
		if text == "" {
			continue
		}
		if _, skip := skippedSections[strings.ToLower(header)]; skip {
			continue
		}

		combined := text
		if bufferContent != "" {
			combined = bufferContent + "\n" + text
		}
		combinedTokens := EstimateTokens(combined)

		switch {
		case combinedTokens < MinChunkTokens:
			// Too small, accumulate into the buffer.
			bufferContent = combined
			if bufferHeader == "" || bufferHeader == in.Title {
				bufferHeader = header
			}

		case combinedTokens <= MaxChunkTokens:
			sectionHeader := header
			if bufferContent != "" {
				sectionHeader = bufferHeader
			}
			emit(sectionHeader, combined)
			bufferContent = ""
			bufferHeader = ""

		default:
			// Oversized. Flush the buffer first, then split this section
			// on paragraph boundaries.
			if bufferContent != "" {
				if EstimateTokens(bufferContent) >= MinChunkTokens {
					emit(bufferHeader, bufferContent)
				}
				bufferContent = ""
				bufferHeader = ""
			}

			for _, sub := range splitLargeText(text, MaxChunkTokens, OverlapTokens) {
				if EstimateTokens(sub) >= MinChunkTokens {
					emit(header, sub)
				}
			}
		}
	}

	if strings.TrimSpace(bufferContent) != "" && EstimateTokens(bufferContent) >= MinChunkTokens {
		header := bufferHeader
		if header == "" {
			header = in.Title
		}
		emit(header, bufferContent)
	}

	// Context prefix for retrieval quality; token counts reflect the final text.
	for i := range chunks {
		prefix := "Page: " + in.Title
		if chunks[i].Section != "" && chunks[i].Section != in.Title {
			prefix += " | Section: " + chunks[i].Section
		}
		prefix += " | Type: " + in.PageType + "\n\n"
		chunks[i].Content = prefix + chunks[i].Content
		chunks[i].TokenCount = EstimateTokens(chunks[i].Content)
	}

	return chunks
}

// splitIntoSections splits extracted text on "## " header lines into
// (header, body) pairs. Text before the first header becomes an unnamed
// intro section.
func splitIntoSections(content string) []section {
	var sections []section

	cur := section{}
	var body []string
	flush := func() {
		text := strings.TrimSpace(strings.Join(body, "\n"))
		if cur.header != "" || text != "" {
			cur.body = text
			sections = append(sections, cur)
		}
		body = body[:0]
	}

	for line := range strings.Lines(content) {
		line = strings.TrimSuffix(line, "\n")
		if header, ok := headerLine(line); ok {
			flush()
			cur = section{header: header}
			continue
		}
		body = append(body, line)
	}
	flush()

	return sections
}

// headerLine reports whether line is a "## Header" section marker and
// returns the trimmed header text. Deeper markers ("###") do not count as
// section boundaries.
func headerLine(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, "##")
	if !ok {
		return "", false
	}
	if rest == "" || (rest[0] != ' ' && rest[0] != '\t') {
		return "", false
	}
	header := strings.TrimSpace(rest)
	if header == "" {
		return "", false
	}
	return header, true
}

// splitLargeText splits a block on line boundaries so no piece exceeds
// maxTokens, carrying up to overlapTokens of trailing lines into the next
// piece for continuity.
func splitLargeText(text string, maxTokens, overlapTokens int) []string {
	paragraphs := strings.Split(text, "\n")

	var chunks []string
	var current []string
	currentTokens := 0

	for _, para := range paragraphs {
		paraTokens := EstimateTokens(para)

		if currentTokens+paraTokens > maxTokens && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n"))

			// Keep trailing paragraphs up to the overlap budget.
			var overlap []string
			overlapText := ""
			for i := len(current) - 1; i >= 0; i-- {
				if EstimateTokens(overlapText+current[i]) > overlapTokens {
					break
				}
				overlap = append([]string{current[i]}, overlap...)
				overlapText = strings.Join(overlap, "\n")
			}

			current = overlap
			currentTokens = EstimateTokens(overlapText)
		}

		current = append(current, para)
		currentTokens += paraTokens
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n"))
	}

	return chunks
}
