package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingProvider struct{}

var errDown = errors.New("provider down")

func (failingProvider) Embed(context.Context, string) ([]float32, error) { return nil, errDown }
func (failingProvider) Summarize(context.Context, string, string) (string, error) {
	return "", errDown
}
func (failingProvider) RewriteQuery(context.Context, string) (string, error) { return "", errDown }
func (failingProvider) BestMatch(context.Context, string, []Candidate) (int, error) {
	return 0, errDown
}
func (failingProvider) Answer(context.Context, string, Candidate) (string, error) {
	return "", errDown
}

func TestResilientDegrades(t *testing.T) {
	r := NewResilient(failingProvider{}, zap.NewNop())
	ctx := context.Background()

	vec, err := r.Embed(ctx, "text")
	require.NoError(t, err)
	require.Len(t, vec, TargetDims)

	out, err := r.Summarize(ctx, "Title", "body words here")
	require.NoError(t, err)
	require.Equal(t, "body words here", out)

	q, err := r.RewriteQuery(ctx, "original question")
	require.NoError(t, err)
	require.Equal(t, "original question", q)

	idx, err := r.BestMatch(ctx, "q", []Candidate{{Title: "a"}})
	require.NoError(t, err)
	require.Equal(t, 0, idx)
}

func TestResilientHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewResilient(failingProvider{}, zap.NewNop())
	_, err := r.Embed(ctx, "text")
	require.Error(t, err)
}
