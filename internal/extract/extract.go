// Package extract derives indexable signals from raw HTML: title, meta
// description, readability main text, headings, structured metadata, and a
// bounded set of diverse text clips.
package extract

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
)

const maxClips = 20

// Metadata carries the structured signals pulled from the document head and
// heading hierarchy.
type Metadata struct {
	H1            []string
	H2            []string
	H3            []string
	MetaKeywords  string
	OGTitle       string
	OGDescription string
}

// Content is the full extraction result for one page.
type Content struct {
	Title       string
	Description string
	// Text is the best-effort main readable text, scored readability-style.
	Text     string
	Headers  []string
	Clips    []string
	Metadata Metadata
}

// Extract parses raw HTML and derives all content signals. It never returns
// an error: unparsable markup simply yields an empty Content.
func Extract(html, pageURL string) Content {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Content{}
	}

	var c Content
	c.Title = normalizeSpace(doc.Find("title").First().Text())
	c.Description, _ = doc.Find(`meta[name="description"]`).First().Attr("content")
	c.Description = normalizeSpace(c.Description)
	c.Headers = extractHeaders(doc)
	c.Clips = extractDiverseClips(doc)
	c.Metadata = extractMetadata(doc)

	title, text := readableText(html, pageURL)
	if title != "" {
		c.Title = title
	}
	c.Text = text
	if c.Text == "" {
		// Short or script-heavy pages can fall below readability's content
		// threshold; the flattened body text is still worth indexing.
		c.Text = normalizeSpace(doc.Find("body").Text())
	}

	return c
}

// readableText runs the Readability content scorer over the document and
// returns the article title and flattened text. Failure yields empty
// strings; the caller's other signals still stand.
func readableText(html, pageURL string) (string, string) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		parsed = nil
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil || article.Node == nil {
		return "", ""
	}
	var buf bytes.Buffer
	if err := article.RenderText(&buf); err != nil {
		return normalizeSpace(article.Title()), ""
	}
	return normalizeSpace(article.Title()), normalizeSpace(buf.String())
}

func extractHeaders(doc *goquery.Document) []string {
	var headers []string
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, sel *goquery.Selection) {
		if text := normalizeSpace(sel.Text()); text != "" {
			headers = append(headers, text)
		}
	})
	return headers
}

func extractMetadata(doc *goquery.Document) Metadata {
	var meta Metadata
	collect := func(selector string) []string {
		var out []string
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			if text := normalizeSpace(sel.Text()); text != "" {
				out = append(out, text)
			}
		})
		return out
	}
	meta.H1 = collect("h1")
	meta.H2 = collect("h2")
	meta.H3 = collect("h3")

	if v, ok := doc.Find(`meta[name="keywords"]`).First().Attr("content"); ok {
		meta.MetaKeywords = normalizeSpace(v)
	}
	if v, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		meta.OGTitle = normalizeSpace(v)
	}
	if v, ok := doc.Find(`meta[property="og:description"]`).First().Attr("content"); ok {
		meta.OGDescription = normalizeSpace(v)
	}
	return meta
}

// extractDiverseClips pulls text fragments from content-bearing elements,
// filtered to a length window per element type and deduplicated by substring
// containment, capped at maxClips.
func extractDiverseClips(doc *goquery.Document) []string {
	var clips []string

	add := func(text string, minLen, maxLen int) {
		if len(clips) >= maxClips {
			return
		}
		if len(text) <= minLen || len(text) >= maxLen {
			return
		}
		for _, clip := range clips {
			if strings.Contains(clip, text) || strings.Contains(text, clip) {
				return
			}
		}
		clips = append(clips, text)
	}

	contentSelectors := []string{
		"main", "article", "section",
		".content", ".main-content", ".post-content", ".entry-content",
		"p", "div", "span",
	}
	for _, selector := range contentSelectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			add(normalizeSpace(sel.Text()), 50, 500)
		})
	}

	doc.Find("ul, ol, dl").Each(func(_ int, list *goquery.Selection) {
		list.Find("li, dt, dd").Each(func(_ int, item *goquery.Selection) {
			add(normalizeSpace(item.Text()), 20, 300)
		})
	})

	return clips
}

var spaceRe = regexp.MustCompile(`\s+`)

func normalizeSpace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
