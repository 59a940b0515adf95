package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/tchan1002/pathfinder/internal/metrics"
)

// Resilient wraps a primary Provider and degrades each operation to the
// deterministic Local provider when the primary fails. Crawling and querying
// keep working through provider outages, at reduced quality.
type Resilient struct {
	primary  Provider
	fallback Provider
	logger   *zap.Logger
}

func NewResilient(primary Provider, logger *zap.Logger) *Resilient {
	return &Resilient{primary: primary, fallback: NewLocal(), logger: logger}
}

func (r *Resilient) degrade(op string, err error) {
	metrics.ProviderFallback(op)
	r.logger.Warn("provider degraded to local fallback", zap.String("op", op), zap.Error(err))
}

func (r *Resilient) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := r.primary.Embed(ctx, text)
	if err == nil {
		return vec, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	r.degrade("embed", err)
	return r.fallback.Embed(ctx, text)
}

func (r *Resilient) Summarize(ctx context.Context, title, text string) (string, error) {
	out, err := r.primary.Summarize(ctx, title, text)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	r.degrade("summarize", err)
	return r.fallback.Summarize(ctx, title, text)
}

func (r *Resilient) RewriteQuery(ctx context.Context, question string) (string, error) {
	out, err := r.primary.RewriteQuery(ctx, question)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	r.degrade("rewrite", err)
	return r.fallback.RewriteQuery(ctx, question)
}

func (r *Resilient) BestMatch(ctx context.Context, question string, candidates []Candidate) (int, error) {
	idx, err := r.primary.BestMatch(ctx, question, candidates)
	if err == nil {
		return idx, nil
	}
	if ctx.Err() != nil {
		return 0, err
	}
	r.degrade("best_match", err)
	return r.fallback.BestMatch(ctx, question, candidates)
}

func (r *Resilient) Answer(ctx context.Context, question string, page Candidate) (string, error) {
	out, err := r.primary.Answer(ctx, question, page)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	r.degrade("answer", err)
	return r.fallback.Answer(ctx, question, page)
}
