package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/tchan1002/pathfinder/internal/storage"
)

func (s *Store) UpsertPage(ctx context.Context, page storage.Page) (string, error) {
	if page.ID == "" {
		page.ID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO pages (
	id, site_id, url, url_normalized, title, meta_description,
	content, content_hash, last_crawled_at, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
ON CONFLICT (site_id, url_normalized) DO UPDATE SET
	url = EXCLUDED.url,
	title = EXCLUDED.title,
	meta_description = EXCLUDED.meta_description,
	content = EXCLUDED.content,
	content_hash = EXCLUDED.content_hash,
	last_crawled_at = EXCLUDED.last_crawled_at
RETURNING id`,
		page.ID, page.SiteID, page.URL, page.NormalizedURL, page.Title,
		page.MetaDescription, page.Content, page.ContentHash, nullTime(page.LastCrawledAt))

	var id string
	if err := row.Scan(&id); err != nil {
		return "", fmt.Errorf("upsert page: %w", err)
	}
	return id, nil
}

func (s *Store) ListPages(ctx context.Context, siteID string) ([]storage.Page, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, site_id, url, url_normalized, title, meta_description,
	content, content_hash, COALESCE(last_crawled_at, 'epoch'::timestamptz), created_at
FROM pages WHERE site_id = $1 ORDER BY created_at`, siteID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []storage.Page
	for rows.Next() {
		var page storage.Page
		if err := rows.Scan(&page.ID, &page.SiteID, &page.URL, &page.NormalizedURL,
			&page.Title, &page.MetaDescription, &page.Content, &page.ContentHash,
			&page.LastCrawledAt, &page.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

func (s *Store) CreateSnapshot(ctx context.Context, snap storage.Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO snapshots (id, page_id, screenshot_path, created_at)
VALUES ($1, $2, $3, COALESCE($4, now()))`,
		snap.ID, snap.PageID, snap.ScreenshotPath, nullTime(snap.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (s *Store) GetSummary(ctx context.Context, pageID, textHash string) (storage.Summary, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, page_id, text, text_hash, model, created_at
FROM summaries
WHERE page_id = $1 AND text_hash = $2
ORDER BY created_at DESC
LIMIT 1`, pageID, textHash)

	var sum storage.Summary
	err := row.Scan(&sum.ID, &sum.PageID, &sum.Text, &sum.TextHash, &sum.Model, &sum.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Summary{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Summary{}, fmt.Errorf("scan summary: %w", err)
	}
	return sum, nil
}

func (s *Store) CreateSummary(ctx context.Context, summary storage.Summary) error {
	if summary.ID == "" {
		summary.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO summaries (id, page_id, text, text_hash, model, created_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))`,
		summary.ID, summary.PageID, summary.Text, summary.TextHash, summary.Model,
		nullTime(summary.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

// ReplaceEmbedding swaps the page's embedding row inside a transaction so a
// concurrent search never sees zero or two vectors for the page.
func (s *Store) ReplaceEmbedding(ctx context.Context, emb storage.Embedding) error {
	if emb.ID == "" {
		emb.ID = uuid.NewString()
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace embedding: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM embeddings WHERE page_id = $1`, emb.PageID); err != nil {
		return fmt.Errorf("delete old embedding: %w", err)
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO embeddings (id, page_id, content, embedding, model, created_at)
VALUES ($1, $2, $3, $4, $5, now())`,
		emb.ID, emb.PageID, emb.Content, pgvector.NewVector(emb.Vector), emb.Model); err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace embedding: %w", err)
	}
	return nil
}
