package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// Local is a deterministic Provider that needs no network access. Embeddings
// are hashed bag-of-words vectors, summaries are leading-text truncations,
// and answers are extractive. It backs deployments without an API key and
// serves as the degradation target when the real provider fails.
type Local struct {
	dims int
}

func NewLocal() *Local {
	return &Local{dims: TargetDims}
}

// Embed hashes each token into one of dims buckets with FNV-1a and
// normalizes the result. Identical text always embeds identically.
func (l *Local) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, l.dims)
	for _, token := range tokenizeWords(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%uint32(l.dims)]++
	}
	return normalize(vec), nil
}

func (l *Local) Summarize(_ context.Context, title, text string) (string, error) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return title, nil
	}
	if len(words) > 45 {
		return strings.Join(words[:45], " ") + "...", nil
	}
	return strings.Join(words, " "), nil
}

func (l *Local) RewriteQuery(_ context.Context, question string) (string, error) {
	return question, nil
}

// BestMatch trusts the retrieval ranking and picks the top candidate.
func (l *Local) BestMatch(_ context.Context, _ string, candidates []Candidate) (int, error) {
	if len(candidates) == 0 {
		return NoMatch, nil
	}
	return 0, nil
}

func (l *Local) Answer(_ context.Context, _ string, page Candidate) (string, error) {
	excerpt := strings.Join(strings.Fields(page.Excerpt), " ")
	if excerpt == "" {
		return fmt.Sprintf("See %q (%s).", page.Title, page.URL), nil
	}
	words := strings.Fields(excerpt)
	if len(words) > 60 {
		excerpt = strings.Join(words[:60], " ") + "..."
	}
	return fmt.Sprintf("According to %q (%s): %s", page.Title, page.URL, excerpt), nil
}

// tokenizeWords lowercases text and splits on every non-alphanumeric rune.
func tokenizeWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
