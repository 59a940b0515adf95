// Package storage defines the persistence model and the Store interface
// implemented by the memory and postgres backends.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Site identifies one crawl target. Domain is unique.
type Site struct {
	ID        string
	Domain    string
	StartURL  string
	CreatedAt time.Time
}

// Page is one indexed URL belonging to a Site. The pair
// (SiteID, NormalizedURL) is unique; re-crawls overwrite content fields.
type Page struct {
	ID              string
	SiteID          string
	URL             string
	NormalizedURL   string
	Title           string
	MetaDescription string
	Content         string
	ContentHash     string
	LastCrawledAt   time.Time
	CreatedAt       time.Time
}

// Snapshot records a screenshot artifact for a page. Rows are append-only;
// the newest one per page is the one shown to users.
type Snapshot struct {
	ID             string
	PageID         string
	ScreenshotPath string
	CreatedAt      time.Time
}

// Summary caches a natural-language summary of a page's content, keyed by
// (PageID, TextHash). A summary is regenerated only when the hash changes.
type Summary struct {
	ID        string
	PageID    string
	Text      string
	TextHash  string
	Model     string
	CreatedAt time.Time
}

// Embedding stores a fixed-dimension vector for a page together with the
// generating model's identifier.
type Embedding struct {
	ID        string
	PageID    string
	Content   string
	Vector    []float32
	Model     string
	CreatedAt time.Time
}

// JobStatus is the lifecycle state of a crawl job.
type JobStatus string

// Job status values persisted in the job table.
const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
)

// Job records one crawl invocation. History is immutable apart from the
// status transition queued -> running -> done|error.
type Job struct {
	ID           string
	SiteID       string
	Domain       string
	StartURL     string
	Status       JobStatus
	MaxPages     int
	PagesCrawled int
	PagesFailed  int
	ErrorText    string
	CreatedAt    time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// PageScore is a ranked result row for a job, consumed by the analyze and
// advance endpoints. Rank is 1-based.
type PageScore struct {
	ID        string
	JobID     string
	URL       string
	Title     string
	Score     float64
	Rank      int
	Reasons   []string
	UpdatedAt time.Time
}

// Feedback records outcome telemetry for a job's ranked results.
type Feedback struct {
	ID         string
	JobID      string
	LandedURL  string
	WasCorrect bool
	ChosenRank *int
	CreatedAt  time.Time
}

// PageHit is one retrieval candidate: a page joined with its cached summary,
// newest snapshot, and vector distance. Distance is nil in fallback mode.
type PageHit struct {
	PageID     string
	URL        string
	Title      string
	Summary    string
	Content    string
	Screenshot string
	Similarity float64
	Distance   *float64
}

// SiteStore manages crawl targets. Deleting a site cascades to all
// dependent records.
type SiteStore interface {
	CreateSite(ctx context.Context, site Site) error
	GetSite(ctx context.Context, siteID string) (Site, error)
	GetSiteByDomain(ctx context.Context, domain string) (Site, error)
	ListSites(ctx context.Context) ([]Site, error)
	DeleteSite(ctx context.Context, siteID string) error
}

// PageStore persists indexed pages and their derived artifacts. The crawl
// pipeline is the only writer; the retrieval pipeline only reads.
type PageStore interface {
	// UpsertPage inserts or updates the page keyed on (SiteID, NormalizedURL)
	// and returns the stored page's ID.
	UpsertPage(ctx context.Context, page Page) (string, error)
	ListPages(ctx context.Context, siteID string) ([]Page, error)
	CreateSnapshot(ctx context.Context, snap Snapshot) error
	GetSummary(ctx context.Context, pageID, textHash string) (Summary, error)
	CreateSummary(ctx context.Context, summary Summary) error
	// ReplaceEmbedding removes any prior embedding rows for the page and
	// inserts the new one.
	ReplaceEmbedding(ctx context.Context, emb Embedding) error
}

// RetrievalStore serves the query pipeline.
type RetrievalStore interface {
	// SearchByVector ranks the site's pages by ascending cosine distance to
	// the query vector. An empty result means no embeddings exist yet.
	SearchByVector(ctx context.Context, siteID string, vector []float32, limit int) ([]PageHit, error)
	// ListPagesByRecency returns the site's pages newest-crawl first with
	// similarity zero, for fallback retrieval.
	ListPagesByRecency(ctx context.Context, siteID string, limit int) ([]PageHit, error)
}

// JobStore persists crawl job metadata and ranked results.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	// LatestDoneJob returns the most recent job for the domain that finished
	// in done status, or ErrNotFound.
	LatestDoneJob(ctx context.Context, domain string) (Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string) error
	UpdateJobCounters(ctx context.Context, jobID string, crawled, failed int) error
	// FailOrphanedJobs marks jobs stuck in queued/running as error and
	// returns how many were swept. Run once at startup.
	FailOrphanedJobs(ctx context.Context, errText string) (int, error)
	CreatePageScore(ctx context.Context, score PageScore) error
	// RankPageScores assigns 1-based ranks in descending score order.
	RankPageScores(ctx context.Context, jobID string) error
	ListPageScores(ctx context.Context, jobID string) ([]PageScore, error)
	CreateFeedback(ctx context.Context, fb Feedback) error
}

// Store aggregates every persistence concern the service needs.
type Store interface {
	SiteStore
	PageStore
	RetrievalStore
	JobStore
}
