package extract

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
<title>Shipping Policy</title>
<meta name="description" content="How and when we ship orders worldwide.">
<meta name="keywords" content="shipping, delivery, orders">
<meta property="og:title" content="Shipping Policy - ACME">
<meta property="og:description" content="Everything about ACME shipping.">
</head>
<body>
<h1>Shipping Policy</h1>
<article>
<h2>Delivery windows</h2>
<p>Orders placed before noon are dispatched the same business day from our central warehouse.</p>
<p>International orders can take between five and fifteen business days depending on the destination country.</p>
<h2>Carriers</h2>
<ul>
<li>Domestic parcels travel with the national postal service.</li>
<li>Express deliveries use a courier network.</li>
</ul>
<h3>Tracking</h3>
<p>Every shipment receives a tracking number emailed to the customer within one hour of dispatch.</p>
</article>
</body>
</html>`

func TestExtractSignals(t *testing.T) {
	c := Extract(samplePage, "https://acme.example/shipping")

	require.Equal(t, "Shipping Policy", c.Title)
	require.Equal(t, "How and when we ship orders worldwide.", c.Description)
	require.Equal(t, []string{"Shipping Policy", "Delivery windows", "Carriers", "Tracking"}, c.Headers)

	require.Equal(t, []string{"Shipping Policy"}, c.Metadata.H1)
	require.Equal(t, []string{"Delivery windows", "Carriers"}, c.Metadata.H2)
	require.Equal(t, "shipping, delivery, orders", c.Metadata.MetaKeywords)
	require.Equal(t, "Shipping Policy - ACME", c.Metadata.OGTitle)
	require.Equal(t, "Everything about ACME shipping.", c.Metadata.OGDescription)

	require.Contains(t, c.Text, "dispatched the same business day")
	require.NotEmpty(t, c.Clips)
	for _, clip := range c.Clips {
		require.Less(t, len(clip), 500)
	}
	require.Contains(t, c.Clips, "Domestic parcels travel with the national postal service.")
}

func TestExtractClipDedupe(t *testing.T) {
	html := `<html><body>
<div><p>This paragraph is long enough to qualify as a clip on its own merit here.</p></div>
</body></html>`
	c := Extract(html, "https://acme.example/")

	// The div and the p render the same text; containment dedupe keeps one.
	count := 0
	for _, clip := range c.Clips {
		if strings.Contains(clip, "qualify as a clip") {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestExtractClipCap(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for i := 0; i < 40; i++ {
		b.WriteString("<li>List entry number ")
		b.WriteString(strings.Repeat("x", 20+i))
		b.WriteString(" with distinct padding</li>")
	}
	b.WriteString("</ul></body></html>")

	c := Extract(b.String(), "https://acme.example/")
	require.LessOrEqual(t, len(c.Clips), maxClips)
}

func TestExtractMalformed(t *testing.T) {
	c := Extract("<<<not html", "https://acme.example/")
	require.Empty(t, c.Headers)
	require.Empty(t, c.Title)
}

func TestSummaryPrefersStructuredSignals(t *testing.T) {
	c := Extract(samplePage, "https://acme.example/shipping")
	s := c.Summary()

	require.True(t, strings.HasPrefix(s, "Shipping Policy"))
	require.Contains(t, s, "How and when we ship orders worldwide.")
	require.LessOrEqual(t, len(strings.Fields(s)), summaryWordLimit+1)
}

func TestSummaryFallsBackToText(t *testing.T) {
	c := Content{Text: strings.Repeat("word ", 100)}
	s := c.Summary()
	require.LessOrEqual(t, len(strings.Fields(s)), fallbackWordLimit+1)
	require.True(t, strings.HasSuffix(s, "..."))
}

func TestEmbeddingText(t *testing.T) {
	c := Extract(samplePage, "https://acme.example/shipping")
	text := c.EmbeddingText()

	require.Contains(t, text, "Title: Shipping Policy")
	require.Contains(t, text, "Description: How and when we ship orders worldwide.")
	require.Contains(t, text, "H1: Shipping Policy")
	require.Contains(t, text, "Content:")
}

func TestEmbeddingTextTruncated(t *testing.T) {
	c := Content{Text: strings.Repeat("a", embeddingCharLimit*2)}
	require.Len(t, c.EmbeddingText(), embeddingCharLimit)
}

func TestEmbeddingTextTruncationKeepsValidUTF8(t *testing.T) {
	c := Content{Text: strings.Repeat("é", embeddingCharLimit)}
	out := c.EmbeddingText()
	require.LessOrEqual(t, len(out), embeddingCharLimit)
	require.True(t, utf8.ValidString(out))
}
