package extract

import (
	"strings"
	"unicode/utf8"
)

const (
	summaryWordLimit   = 60
	fallbackWordLimit  = 45
	embeddingCharLimit = 8000
)

// Summary composes a short deterministic summary from the strongest signals
// available: the title, the description, the leading headings, and a few
// clips. When the page yielded none of those, it falls back to the first
// words of the main text.
func (c Content) Summary() string {
	var parts []string
	if c.Title != "" {
		parts = append(parts, c.Title)
	}
	desc := c.Description
	if desc == "" {
		desc = c.Metadata.OGDescription
	}
	if desc != "" {
		parts = append(parts, desc)
	}
	if len(c.Headers) > 0 {
		parts = append(parts, strings.Join(firstN(c.Headers, 5), ". "))
	}
	if len(c.Clips) > 0 {
		parts = append(parts, strings.Join(firstN(c.Clips, 8), " "))
	}

	if len(parts) == 0 {
		return truncateWords(c.Text, fallbackWordLimit)
	}
	return truncateWords(strings.Join(parts, ". "), summaryWordLimit)
}

// EmbeddingText builds the labeled text fed to the embedding model. Labeled
// sections keep structurally important signals near the head of the input
// so truncation sheds body text first.
func (c Content) EmbeddingText() string {
	var b strings.Builder
	writeSection := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\n")
	}

	writeSection("Title", c.Title)
	writeSection("Description", c.Description)
	if len(c.Metadata.H1) > 0 {
		writeSection("H1", strings.Join(c.Metadata.H1, " | "))
	}
	if len(c.Headers) > 0 {
		writeSection("Headers", strings.Join(c.Headers, " | "))
	}
	writeSection("Content", c.Text)

	out := strings.TrimSpace(b.String())
	if out == "" {
		out = c.Text
	}
	if len(out) > embeddingCharLimit {
		cut := embeddingCharLimit
		// Back up so the cut never splits a multi-byte rune.
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut]
	}
	return out
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func truncateWords(s string, limit int) string {
	words := strings.Fields(s)
	if len(words) <= limit {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:limit], " ") + "..."
}
