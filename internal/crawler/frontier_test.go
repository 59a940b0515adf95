package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrontierFIFO(t *testing.T) {
	f := NewFrontier(10)
	f.Enqueue("https://example.com/a")
	f.Enqueue("https://example.com/b")
	f.Enqueue("https://example.com/c")

	for _, want := range []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	} {
		got, ok := f.Next()
		require.True(t, ok)
		require.Equal(t, want, got)
	}
	_, ok := f.Next()
	require.False(t, ok)
}

func TestFrontierDeduplicates(t *testing.T) {
	f := NewFrontier(10)
	f.Enqueue("https://example.com/a")
	f.Enqueue("https://example.com/a")
	require.Equal(t, 1, f.Pending())

	got, ok := f.Next()
	require.True(t, ok)
	require.Equal(t, "https://example.com/a", got)

	// Visited URLs never come back, even when rediscovered later.
	f.Enqueue("https://example.com/a")
	require.Equal(t, 0, f.Pending())
}

func TestFrontierBudget(t *testing.T) {
	f := NewFrontier(2)
	f.Enqueue("https://example.com/a")
	f.Enqueue("https://example.com/b")
	f.Enqueue("https://example.com/c")

	_, ok := f.Next()
	require.True(t, ok)
	f.Spend()
	_, ok = f.Next()
	require.True(t, ok)
	f.Spend()

	_, ok = f.Next()
	require.False(t, ok, "budget exhausted")
	require.Equal(t, 2, f.Spent())
	require.Equal(t, 1, f.Pending())
}

func TestFrontierSkipsDoNotSpend(t *testing.T) {
	f := NewFrontier(1)
	f.Enqueue("https://example.com/blocked")
	f.Enqueue("https://example.com/allowed")

	// A robots-disallowed dequeue does not call Spend, so the budget is
	// still available for the next URL.
	_, ok := f.Next()
	require.True(t, ok)

	got, ok := f.Next()
	require.True(t, ok)
	require.Equal(t, "https://example.com/allowed", got)
}

func TestFrontierDefaultBudget(t *testing.T) {
	f := NewFrontier(0)
	require.Equal(t, DefaultPageBudget, f.budget)
}
