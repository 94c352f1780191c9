package wiki

import (
	"strings"
	"testing"
)

func TestExtractText_HeadersAndLists(t *testing.T) {
	html := `
		<div class="mw-parser-output">
			<p>The abyssal whip is a one-handed melee weapon.</p>
			<h2><span class="mw-headline">Combat stats</span></h2>
			<p>It requires 70 Attack to wield.</p>
			<h3>Special attack</h3>
			<ul>
				<li>Energy Drain</li>
				<li>Costs 50% special</li>
			</ul>
		</div>`

	text, err := ExtractText(html)
	if err != nil {
		t.Fatalf("ExtractText() error: %v", err)
	}

	if !strings.Contains(text, "## Combat stats") {
		t.Errorf("h2 not converted to section marker:\n%s", text)
	}
	if !strings.Contains(text, "## Special attack") {
		t.Errorf("h3 not converted to section marker:\n%s", text)
	}
	if !strings.Contains(text, "- Energy Drain") {
		t.Errorf("list item not converted:\n%s", text)
	}
	if !strings.HasPrefix(text, "The abyssal whip") {
		t.Errorf("intro text not first:\n%s", text)
	}
}

func TestExtractText_RemovesNoise(t *testing.T) {
	html := `
		<p>Useful text.<sup class="reference">[1]</sup></p>
		<script>alert("nope")</script>
		<style>.x { color: red }</style>
		<div class="navbox">Navigation links</div>
		<h2>History<span class="mw-editsection">[edit]</span></h2>
		<p>More text.</p>`

	text, err := ExtractText(html)
	if err != nil {
		t.Fatalf("ExtractText() error: %v", err)
	}

	for _, noise := range []string{"[1]", "alert", "color: red", "Navigation links", "[edit]"} {
		if strings.Contains(text, noise) {
			t.Errorf("noise %q survived extraction:\n%s", noise, text)
		}
	}
	if !strings.Contains(text, "## History") {
		t.Errorf("header lost its text after edit-link removal:\n%s", text)
	}
}

func TestExtractText_NormalizesWhitespace(t *testing.T) {
	html := `<p>spaced
		out
		text</p>`

	text, err := ExtractText(html)
	if err != nil {
		t.Fatalf("ExtractText() error: %v", err)
	}
	if text != "spaced out text" {
		t.Errorf("ExtractText() = %q, want collapsed whitespace", text)
	}
}

func TestExtractText_TableCells(t *testing.T) {
	html := `<table><tr><th>Attack bonus</th><td>+82</td></tr></table>`

	text, err := ExtractText(html)
	if err != nil {
		t.Fatalf("ExtractText() error: %v", err)
	}
	if !strings.Contains(text, "Attack bonus") || !strings.Contains(text, "+82") {
		t.Errorf("table cells missing: %q", text)
	}
}

func TestExtractText_Empty(t *testing.T) {
	text, err := ExtractText("")
	if err != nil {
		t.Fatalf("ExtractText() error: %v", err)
	}
	if text != "" {
		t.Errorf("ExtractText(\"\") = %q, want empty", text)
	}
}
