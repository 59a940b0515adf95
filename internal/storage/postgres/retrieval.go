package postgres

import (
	"context"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/tchan1002/pathfinder/internal/storage"
)

// hitColumns joins each page with its newest summary and newest snapshot.
const hitColumns = `
	p.id,
	p.url,
	p.title,
	COALESCE(sm.text, ''),
	p.content,
	COALESCE(sn.screenshot_path, '')`

const hitJoins = `
LEFT JOIN LATERAL (
	SELECT text FROM summaries WHERE page_id = p.id ORDER BY created_at DESC LIMIT 1
) sm ON true
LEFT JOIN LATERAL (
	SELECT screenshot_path FROM snapshots WHERE page_id = p.id ORDER BY created_at DESC LIMIT 1
) sn ON true`

func (s *Store) SearchByVector(ctx context.Context, siteID string, vector []float32, limit int) ([]storage.PageHit, error) {
	rows, err := s.pool.Query(ctx, `
SELECT`+hitColumns+`,
	1 - (e.embedding <=> $2) AS similarity,
	e.embedding <=> $2 AS distance
FROM embeddings e
JOIN pages p ON p.id = e.page_id`+hitJoins+`
WHERE p.site_id = $1
ORDER BY e.embedding <=> $2
LIMIT $3`, siteID, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("search by vector: %w", err)
	}
	defer rows.Close()

	var hits []storage.PageHit
	for rows.Next() {
		var hit storage.PageHit
		var distance float64
		if err := rows.Scan(&hit.PageID, &hit.URL, &hit.Title, &hit.Summary,
			&hit.Content, &hit.Screenshot, &hit.Similarity, &distance); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hit.Distance = &distance
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func (s *Store) ListPagesByRecency(ctx context.Context, siteID string, limit int) ([]storage.PageHit, error) {
	rows, err := s.pool.Query(ctx, `
SELECT`+hitColumns+`
FROM pages p`+hitJoins+`
WHERE p.site_id = $1
ORDER BY p.last_crawled_at DESC NULLS LAST
LIMIT $2`, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pages by recency: %w", err)
	}
	defer rows.Close()

	var hits []storage.PageHit
	for rows.Next() {
		var hit storage.PageHit
		if err := rows.Scan(&hit.PageID, &hit.URL, &hit.Title, &hit.Summary,
			&hit.Content, &hit.Screenshot); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}
