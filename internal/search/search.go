// Package search implements the question answering pipeline: query rewrite,
// vector retrieval with a recency fallback, lexical rerank, best-page
// arbitration, and grounded answer synthesis.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/tchan1002/pathfinder/internal/llm"
	"github.com/tchan1002/pathfinder/internal/metrics"
	"github.com/tchan1002/pathfinder/internal/storage"
)

const (
	// retrievalLimit bounds both vector search and the recency fallback.
	retrievalLimit = 10
	// lexicalBoostCap bounds how much token overlap can add to a
	// similarity score during rerank.
	lexicalBoostCap = 0.2
	// excerptLimit bounds the per-candidate text sent for arbitration.
	excerptLimit = 1000
)

// ErrEmptyQuestion is returned when the question is blank.
var ErrEmptyQuestion = errors.New("question is empty")

// Source is one retrieved page exposed to API clients.
type Source struct {
	PageID     string   `json:"pageId"`
	URL        string   `json:"url"`
	Title      string   `json:"title,omitempty"`
	Snippet    string   `json:"snippet,omitempty"`
	Screenshot string   `json:"screenshotUrl,omitempty"`
	Similarity float64  `json:"similarity"`
	Distance   *float64 `json:"distance,omitempty"`
}

// Result is the outcome of one question.
type Result struct {
	Answer  string   `json:"answer,omitempty"`
	Query   string   `json:"query"`
	Best    *Source  `json:"best,omitempty"`
	Sources []Source `json:"sources"`
}

// Pipeline answers questions against one site's index.
type Pipeline struct {
	store    storage.RetrievalStore
	provider llm.Provider
	logger   *zap.Logger
}

func New(store storage.RetrievalStore, provider llm.Provider, logger *zap.Logger) *Pipeline {
	return &Pipeline{store: store, provider: provider, logger: logger}
}

// Query runs the full pipeline. An empty index yields a Result with no
// sources and no answer rather than an error.
func (p *Pipeline) Query(ctx context.Context, siteID, question string) (Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Result{}, ErrEmptyQuestion
	}
	start := time.Now()
	defer func() { metrics.QueryObserved(time.Since(start)) }()

	query := p.rewrite(ctx, question)

	hits, err := p.retrieve(ctx, siteID, query)
	if err != nil {
		return Result{}, err
	}
	if len(hits) == 0 {
		return Result{Query: query, Sources: []Source{}}, nil
	}

	hits = rerank(query, hits)

	best := p.arbitrate(ctx, question, hits)
	answer := p.answer(ctx, question, hits[best])

	result := Result{
		Answer:  answer,
		Query:   query,
		Sources: make([]Source, 0, len(hits)),
	}
	for _, hit := range hits {
		result.Sources = append(result.Sources, toSource(hit))
	}
	chosen := result.Sources[best]
	result.Best = &chosen
	return result, nil
}

func (p *Pipeline) rewrite(ctx context.Context, question string) string {
	query, err := p.provider.RewriteQuery(ctx, question)
	if err != nil || strings.TrimSpace(query) == "" {
		if err != nil {
			p.logger.Warn("query rewrite failed, using question verbatim", zap.Error(err))
		}
		return question
	}
	return query
}

// retrieve tries vector search first and falls back to recency ordering when
// the site has no embeddings yet.
func (p *Pipeline) retrieve(ctx context.Context, siteID, query string) ([]storage.PageHit, error) {
	vector, err := p.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := p.store.SearchByVector(ctx, siteID, vector, retrievalLimit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(hits) > 0 {
		return hits, nil
	}

	hits, err = p.store.ListPagesByRecency(ctx, siteID, retrievalLimit)
	if err != nil {
		return nil, fmt.Errorf("recency fallback: %w", err)
	}
	return hits, nil
}

// arbitrate asks the provider to pick the best candidate. A NoMatch verdict
// or an arbitration failure keeps the retrieval ranking's top hit.
func (p *Pipeline) arbitrate(ctx context.Context, question string, hits []storage.PageHit) int {
	candidates := make([]llm.Candidate, 0, len(hits))
	for _, hit := range hits {
		candidates = append(candidates, llm.Candidate{
			URL:     hit.URL,
			Title:   hit.Title,
			Excerpt: excerpt(hit, excerptLimit),
		})
	}
	idx, err := p.provider.BestMatch(ctx, question, candidates)
	if err != nil {
		p.logger.Warn("best match arbitration failed, keeping top hit", zap.Error(err))
		return 0
	}
	if idx == llm.NoMatch || idx < 0 || idx >= len(hits) {
		return 0
	}
	return idx
}

// answer synthesizes a grounded answer for the chosen page. When the
// provider fails, the page summary stands in.
func (p *Pipeline) answer(ctx context.Context, question string, hit storage.PageHit) string {
	text, err := p.provider.Answer(ctx, question, llm.Candidate{
		URL:     hit.URL,
		Title:   hit.Title,
		Excerpt: excerpt(hit, 6000),
	})
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			p.logger.Warn("answer synthesis failed, using summary", zap.Error(err))
		}
		if hit.Summary != "" {
			return hit.Summary
		}
		return fmt.Sprintf("The most relevant page is %q (%s).", hit.Title, hit.URL)
	}
	return text
}

// rerank adds a bounded lexical boost to each hit's similarity: the fraction
// of query tokens appearing in the page, scaled to lexicalBoostCap.
func rerank(query string, hits []storage.PageHit) []storage.PageHit {
	queryTokens := tokenSet(query)
	if len(queryTokens) == 0 {
		return hits
	}
	for i := range hits {
		pageTokens := tokenSet(hits[i].Title + " " + hits[i].Summary + " " + hits[i].Content)
		overlap := 0
		for token := range queryTokens {
			if pageTokens[token] {
				overlap++
			}
		}
		hits[i].Similarity += lexicalBoostCap * float64(overlap) / float64(len(queryTokens))
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	return hits
}

func excerpt(hit storage.PageHit, limit int) string {
	text := hit.Content
	if text == "" {
		text = hit.Summary
	}
	if len(text) > limit {
		// Back up so the cut never splits a multi-byte rune.
		for limit > 0 && !utf8.RuneStart(text[limit]) {
			limit--
		}
		text = text[:limit]
	}
	return text
}

func toSource(hit storage.PageHit) Source {
	return Source{
		PageID:     hit.PageID,
		URL:        hit.URL,
		Title:      hit.Title,
		Snippet:    hit.Summary,
		Screenshot: hit.Screenshot,
		Similarity: hit.Similarity,
		Distance:   hit.Distance,
	}
}

func tokenSet(text string) map[string]bool {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		if len(token) > 2 {
			set[token] = true
		}
	}
	return set
}
