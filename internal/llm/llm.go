// Package llm defines the model provider surface used for summarization,
// embedding, and question answering, plus a deterministic offline fallback.
package llm

import "context"

// Candidate is one retrieved page offered to the model for arbitration or
// answer grounding.
type Candidate struct {
	URL     string
	Title   string
	Excerpt string
}

// NoMatch is returned by BestMatch when the model judges that none of the
// candidates answer the question.
const NoMatch = -1

// Provider is the full model surface the indexing and query pipelines need.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Embed returns a vector representation of text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Summarize produces a short abstract of a page.
	Summarize(ctx context.Context, title, text string) (string, error)

	// RewriteQuery turns a conversational question into a search query.
	RewriteQuery(ctx context.Context, question string) (string, error)

	// BestMatch picks the candidate that best answers the question and
	// returns its index, or NoMatch when none qualify.
	BestMatch(ctx context.Context, question string, candidates []Candidate) (int, error)

	// Answer writes a grounded answer to the question using only the given
	// page.
	Answer(ctx context.Context, question string, page Candidate) (string, error)
}
