package search

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tchan1002/pathfinder/internal/llm"
	"github.com/tchan1002/pathfinder/internal/storage"
	"github.com/tchan1002/pathfinder/internal/storage/memory"
)

// scriptedProvider overrides selected operations on top of the local
// fallback provider.
type scriptedProvider struct {
	llm.Provider
	rewrite    string
	rewriteErr error
	bestIdx    int
	bestErr    error
	answerText string
	answerErr  error
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{Provider: llm.NewLocal(), bestIdx: llm.NoMatch}
}

func (p *scriptedProvider) RewriteQuery(ctx context.Context, question string) (string, error) {
	if p.rewriteErr != nil {
		return "", p.rewriteErr
	}
	if p.rewrite != "" {
		return p.rewrite, nil
	}
	return p.Provider.RewriteQuery(ctx, question)
}

func (p *scriptedProvider) BestMatch(ctx context.Context, question string, candidates []llm.Candidate) (int, error) {
	if p.bestErr != nil {
		return 0, p.bestErr
	}
	return p.bestIdx, nil
}

func (p *scriptedProvider) Answer(ctx context.Context, question string, page llm.Candidate) (string, error) {
	if p.answerErr != nil {
		return "", p.answerErr
	}
	if p.answerText != "" {
		return p.answerText, nil
	}
	return p.Provider.Answer(ctx, question, page)
}

func seedPage(t *testing.T, store *memory.Store, provider llm.Provider, url, title, content string) string {
	t.Helper()
	ctx := context.Background()
	id, err := store.UpsertPage(ctx, storage.Page{
		SiteID:        "site-1",
		URL:           url,
		NormalizedURL: url,
		Title:         title,
		Content:       content,
	})
	require.NoError(t, err)
	vec, err := provider.Embed(ctx, title+" "+content)
	require.NoError(t, err)
	require.NoError(t, store.ReplaceEmbedding(ctx, storage.Embedding{PageID: id, Vector: vec}))
	require.NoError(t, store.CreateSummary(ctx, storage.Summary{PageID: id, Text: "About " + title, TextHash: "h"}))
	return id
}

func newSeededPipeline(t *testing.T) (*Pipeline, *scriptedProvider, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.CreateSite(context.Background(), storage.Site{ID: "site-1", Domain: "acme.example"}))

	provider := newScriptedProvider()
	seedPage(t, store, provider, "https://acme.example/shipping", "Shipping",
		"Orders ship within one business day and arrive in three to five days.")
	seedPage(t, store, provider, "https://acme.example/returns", "Returns",
		"Items can be returned within thirty days for a full refund.")

	return New(store, provider, zap.NewNop()), provider, store
}

func TestQueryRanksRelevantPageFirst(t *testing.T) {
	pipeline, _, _ := newSeededPipeline(t)

	result, err := pipeline.Query(context.Background(), "site-1", "how long does shipping take?")
	require.NoError(t, err)
	require.Len(t, result.Sources, 2)
	require.Equal(t, "https://acme.example/shipping", result.Sources[0].URL)
	require.NotNil(t, result.Best)
	require.Equal(t, "https://acme.example/shipping", result.Best.URL)
	require.NotEmpty(t, result.Answer)
}

func TestQueryEmptyQuestion(t *testing.T) {
	pipeline, _, _ := newSeededPipeline(t)
	_, err := pipeline.Query(context.Background(), "site-1", "   ")
	require.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestQueryEmptyIndex(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.CreateSite(context.Background(), storage.Site{ID: "site-1", Domain: "acme.example"}))
	pipeline := New(store, newScriptedProvider(), zap.NewNop())

	result, err := pipeline.Query(context.Background(), "site-1", "anything?")
	require.NoError(t, err)
	require.Empty(t, result.Sources)
	require.Nil(t, result.Best)
	require.Empty(t, result.Answer)
}

func TestQueryRecencyFallbackWithoutEmbeddings(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateSite(ctx, storage.Site{ID: "site-1", Domain: "acme.example"}))
	_, err := store.UpsertPage(ctx, storage.Page{
		SiteID:        "site-1",
		URL:           "https://acme.example/only",
		NormalizedURL: "https://acme.example/only",
		Title:         "Only Page",
	})
	require.NoError(t, err)

	pipeline := New(store, newScriptedProvider(), zap.NewNop())
	result, err := pipeline.Query(ctx, "site-1", "where is the page?")
	require.NoError(t, err)
	require.Len(t, result.Sources, 1)
	require.Equal(t, "Only Page", result.Sources[0].Title)
}

func TestQueryArbitrationOverride(t *testing.T) {
	pipeline, provider, _ := newSeededPipeline(t)
	provider.bestIdx = 1

	result, err := pipeline.Query(context.Background(), "site-1", "how long does shipping take?")
	require.NoError(t, err)
	require.Equal(t, result.Sources[1].URL, result.Best.URL)
}

func TestQueryArbitrationFailureKeepsTopHit(t *testing.T) {
	pipeline, provider, _ := newSeededPipeline(t)
	provider.bestErr = errors.New("model unavailable")

	result, err := pipeline.Query(context.Background(), "site-1", "how long does shipping take?")
	require.NoError(t, err)
	require.Equal(t, result.Sources[0].URL, result.Best.URL)
}

func TestQueryAnswerFallsBackToSummary(t *testing.T) {
	pipeline, provider, _ := newSeededPipeline(t)
	provider.answerErr = errors.New("model unavailable")

	result, err := pipeline.Query(context.Background(), "site-1", "how long does shipping take?")
	require.NoError(t, err)
	require.Equal(t, "About Shipping", result.Answer)
}

func TestQueryRewriteFailureUsesQuestion(t *testing.T) {
	pipeline, provider, _ := newSeededPipeline(t)
	provider.rewriteErr = errors.New("model unavailable")

	result, err := pipeline.Query(context.Background(), "site-1", "how long does shipping take?")
	require.NoError(t, err)
	require.Equal(t, "how long does shipping take?", result.Query)
}

func TestRerankBoostCapped(t *testing.T) {
	hits := []storage.PageHit{
		{URL: "a", Title: "shipping delivery orders arrive", Similarity: 0.5},
		{URL: "b", Title: "unrelated", Similarity: 0.5},
	}
	out := rerank("shipping delivery orders arrive", hits)
	require.Equal(t, "a", out[0].URL)
	require.LessOrEqual(t, out[0].Similarity, 0.5+lexicalBoostCap+1e-9)
	require.InDelta(t, 0.5, out[1].Similarity, 1e-9)
}

func TestExcerptRuneBoundary(t *testing.T) {
	hit := storage.PageHit{Content: strings.Repeat("é", 40)}
	out := excerpt(hit, 41)
	require.LessOrEqual(t, len(out), 41)
	require.True(t, utf8.ValidString(out))

	hit = storage.PageHit{Summary: "fallback"}
	require.Equal(t, "fallback", excerpt(hit, 100))
}
