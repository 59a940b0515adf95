// Package indexer turns fetched pages into stored records: extracted
// content, cached summaries, embeddings, and screenshot snapshots.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tchan1002/pathfinder/internal/crawler"
	"github.com/tchan1002/pathfinder/internal/extract"
	"github.com/tchan1002/pathfinder/internal/llm"
	"github.com/tchan1002/pathfinder/internal/storage"
)

// SnapshotWriter persists screenshot bytes and returns the public URL they
// will be served under.
type SnapshotWriter interface {
	Save(pageID string, data []byte) (string, error)
}

// Indexer implements crawler.Indexer on top of the page store, the model
// provider, and the snapshot store.
type Indexer struct {
	pages     storage.PageStore
	provider  llm.Provider
	snapshots SnapshotWriter
	model     string
	logger    *zap.Logger
}

func New(pages storage.PageStore, provider llm.Provider, snapshots SnapshotWriter, model string, logger *zap.Logger) *Indexer {
	return &Indexer{
		pages:     pages,
		provider:  provider,
		snapshots: snapshots,
		model:     model,
		logger:    logger,
	}
}

// Index extracts content from the fetched page, upserts the page row, and
// refreshes its derived artifacts. The summary is cached by content hash so
// unchanged pages skip the model call. Embedding and snapshot failures are
// logged but do not fail the page.
func (ix *Indexer) Index(ctx context.Context, siteID, pageURL, normalizedURL string, fetched crawler.FetchResult) (crawler.IndexedPage, error) {
	content := extract.Extract(fetched.HTML, pageURL)
	textHash := hashText(content.Text)

	pageID, err := ix.pages.UpsertPage(ctx, storage.Page{
		SiteID:          siteID,
		URL:             pageURL,
		NormalizedURL:   normalizedURL,
		Title:           content.Title,
		MetaDescription: content.Description,
		Content:         content.Text,
		ContentHash:     textHash,
		LastCrawledAt:   time.Now().UTC(),
	})
	if err != nil {
		return crawler.IndexedPage{}, fmt.Errorf("upsert page: %w", err)
	}

	summary, err := ix.summarize(ctx, pageID, textHash, content)
	if err != nil {
		return crawler.IndexedPage{}, err
	}

	ix.embed(ctx, pageID, content)

	screenshotURL := ix.snapshot(ctx, pageID, fetched.Screenshot)

	return crawler.IndexedPage{
		PageID:        pageID,
		Title:         content.Title,
		Summary:       summary,
		ScreenshotURL: screenshotURL,
	}, nil
}

// summarize returns the cached summary for (pageID, textHash) or generates
// and stores a fresh one.
func (ix *Indexer) summarize(ctx context.Context, pageID, textHash string, content extract.Content) (string, error) {
	cached, err := ix.pages.GetSummary(ctx, pageID, textHash)
	if err == nil {
		return cached.Text, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("load summary: %w", err)
	}

	text, err := ix.provider.Summarize(ctx, content.Title, content.Text)
	if err != nil || text == "" {
		if err != nil {
			ix.logger.Warn("summary generation failed, using composed fallback",
				zap.String("page_id", pageID), zap.Error(err))
		}
		text = content.Summary()
	}

	if err := ix.pages.CreateSummary(ctx, storage.Summary{
		PageID:   pageID,
		Text:     text,
		TextHash: textHash,
		Model:    ix.model,
	}); err != nil {
		return "", fmt.Errorf("store summary: %w", err)
	}
	return text, nil
}

// embed refreshes the page's embedding. A re-crawl always replaces the
// stored vector so the index reflects the latest content and model.
func (ix *Indexer) embed(ctx context.Context, pageID string, content extract.Content) {
	input := content.EmbeddingText()
	if input == "" {
		return
	}
	vector, err := ix.provider.Embed(ctx, input)
	if err != nil {
		ix.logger.Warn("embedding failed", zap.String("page_id", pageID), zap.Error(err))
		return
	}
	if err := ix.pages.ReplaceEmbedding(ctx, storage.Embedding{
		PageID:  pageID,
		Content: input,
		Vector:  vector,
		Model:   ix.model,
	}); err != nil {
		ix.logger.Warn("store embedding failed", zap.String("page_id", pageID), zap.Error(err))
	}
}

// snapshot stores the screenshot when the fetcher produced one. Snapshot
// failures never fail the page.
func (ix *Indexer) snapshot(ctx context.Context, pageID string, data []byte) string {
	if len(data) == 0 || ix.snapshots == nil {
		return ""
	}
	url, err := ix.snapshots.Save(pageID, data)
	if err != nil {
		ix.logger.Warn("store screenshot failed", zap.String("page_id", pageID), zap.Error(err))
		return ""
	}
	if err := ix.pages.CreateSnapshot(ctx, storage.Snapshot{
		PageID:         pageID,
		ScreenshotPath: url,
	}); err != nil {
		ix.logger.Warn("record snapshot failed", zap.String("page_id", pageID), zap.Error(err))
	}
	return url
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
