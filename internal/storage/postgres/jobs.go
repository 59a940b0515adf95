package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tchan1002/pathfinder/internal/storage"
)

func (s *Store) CreateJob(ctx context.Context, job storage.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = storage.JobStatusQueued
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO jobs (id, site_id, domain, start_url, status, max_pages, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())`,
		job.ID, job.SiteID, job.Domain, job.StartURL, string(job.Status), job.MaxPages)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

const jobColumns = `
	id, site_id, domain, start_url, status, max_pages,
	pages_crawled, pages_failed, COALESCE(error_text, ''),
	created_at, started_at, finished_at`

func (s *Store) GetJob(ctx context.Context, jobID string) (storage.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT`+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	return scanJob(row)
}

func (s *Store) LatestDoneJob(ctx context.Context, domain string) (storage.Job, error) {
	row := s.pool.QueryRow(ctx, `
SELECT`+jobColumns+`
FROM jobs
WHERE domain = $1 AND status = 'done'
ORDER BY finished_at DESC
LIMIT 1`, domain)
	return scanJob(row)
}

func scanJob(row pgx.Row) (storage.Job, error) {
	var job storage.Job
	var status string
	err := row.Scan(&job.ID, &job.SiteID, &job.Domain, &job.StartURL, &status,
		&job.MaxPages, &job.PagesCrawled, &job.PagesFailed, &job.ErrorText,
		&job.CreatedAt, &job.StartedAt, &job.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Job{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Job{}, fmt.Errorf("scan job: %w", err)
	}
	job.Status = storage.JobStatus(status)
	return job, nil
}

func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status storage.JobStatus, errText string) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE jobs SET
	status = $2,
	error_text = NULLIF($3, ''),
	started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN now() ELSE started_at END,
	finished_at = CASE WHEN $2 IN ('done', 'error') THEN now() ELSE finished_at END
WHERE id = $1`, jobID, string(status), errText)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateJobCounters(ctx context.Context, jobID string, crawled, failed int) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE jobs SET pages_crawled = $2, pages_failed = $3 WHERE id = $1`,
		jobID, crawled, failed)
	if err != nil {
		return fmt.Errorf("update job counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) FailOrphanedJobs(ctx context.Context, errText string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE jobs SET status = 'error', error_text = $1, finished_at = now()
WHERE status IN ('queued', 'running')`, errText)
	if err != nil {
		return 0, fmt.Errorf("fail orphaned jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) CreatePageScore(ctx context.Context, score storage.PageScore) error {
	if score.ID == "" {
		score.ID = uuid.NewString()
	}
	reasons, err := json.Marshal(score.Reasons)
	if err != nil {
		return fmt.Errorf("marshal reasons: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO page_scores (id, job_id, url, title, score, rank, reasons, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
		score.ID, score.JobID, score.URL, score.Title, score.Score, score.Rank, reasons)
	if err != nil {
		return fmt.Errorf("insert page score: %w", err)
	}
	return nil
}

func (s *Store) RankPageScores(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx, `
UPDATE page_scores ps SET rank = ranked.rn, updated_at = now()
FROM (
	SELECT id, ROW_NUMBER() OVER (ORDER BY score DESC) AS rn
	FROM page_scores WHERE job_id = $1
) ranked
WHERE ps.id = ranked.id`, jobID)
	if err != nil {
		return fmt.Errorf("rank page scores: %w", err)
	}
	return nil
}

func (s *Store) ListPageScores(ctx context.Context, jobID string) ([]storage.PageScore, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, job_id, url, title, score, rank, reasons, updated_at
FROM page_scores WHERE job_id = $1 ORDER BY rank`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list page scores: %w", err)
	}
	defer rows.Close()

	var scores []storage.PageScore
	for rows.Next() {
		var score storage.PageScore
		var reasons []byte
		if err := rows.Scan(&score.ID, &score.JobID, &score.URL, &score.Title,
			&score.Score, &score.Rank, &reasons, &score.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan page score: %w", err)
		}
		if len(reasons) > 0 {
			if err := json.Unmarshal(reasons, &score.Reasons); err != nil {
				return nil, fmt.Errorf("decode reasons: %w", err)
			}
		}
		scores = append(scores, score)
	}
	return scores, rows.Err()
}

func (s *Store) CreateFeedback(ctx context.Context, fb storage.Feedback) error {
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, fb.JobID).Scan(&exists); err != nil {
		return fmt.Errorf("check job: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO feedback (id, job_id, landed_url, was_correct, chosen_rank, created_at)
VALUES ($1, $2, $3, $4, $5, now())`,
		fb.ID, fb.JobID, fb.LandedURL, fb.WasCorrect, fb.ChosenRank)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}
