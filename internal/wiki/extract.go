package wiki

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractText converts MediaWiki parser HTML into plain text while keeping
// the section structure: h2/h3/h4 become "## Header" lines, list items
// become "- item" lines, everything else is paragraph text. The chunker
// splits on those "## " markers, so this format is the contract between
// extraction and chunking.
func ExtractText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	// Strip scripts, styles, citation markers, nav boxes and [edit] links
	// before walking the content.
	doc.Find("script, style").Remove()
	doc.Find("sup.reference, span.reference").Remove()
	doc.Find("div.navbox, div.ambox, div.mbox").Remove()
	doc.Find("span.mw-editsection").Remove()

	var parts []string
	doc.Find("h2, h3, h4, p, li, th, td, dd").Each(func(_ int, sel *goquery.Selection) {
		text := normalizeSpace(sel.Text())
		if text == "" {
			return
		}

		switch goquery.NodeName(sel) {
		case "h2", "h3", "h4":
			parts = append(parts, "\n## "+text+"\n")
		case "li":
			parts = append(parts, "- "+text)
		default:
			parts = append(parts, text)
		}
	})

	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}

// normalizeSpace collapses runs of whitespace to single spaces, matching
// how rendered HTML text reads.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
