// Package jobs runs crawl jobs in the background and tracks their lifecycle
// from queued through done or error.
package jobs

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tchan1002/pathfinder/internal/crawler"
	"github.com/tchan1002/pathfinder/internal/metrics"
	"github.com/tchan1002/pathfinder/internal/storage"
)

// orphanErrText marks jobs swept by the startup reaper.
const orphanErrText = "interrupted by server restart"

// CrawlRunner is the crawl entry point the runner drives. *crawler.Crawler
// satisfies it.
type CrawlRunner interface {
	Run(ctx context.Context, siteID, startURL string, maxPages int, onEvent crawler.EventFunc) ([]crawler.Outcome, error)
}

// Store is the persistence surface the runner needs.
type Store interface {
	storage.JobStore
	ListPages(ctx context.Context, siteID string) ([]storage.Page, error)
}

// Runner starts, cancels, and finalizes background crawl jobs. Every started
// job ends in done or error, even on panic-free early returns; jobs from a
// previous process are failed by Reap at startup.
type Runner struct {
	store   Store
	crawler CrawlRunner
	logger  *zap.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewRunner(store Store, cr CrawlRunner, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		store:   store,
		crawler: cr,
		logger:  logger,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Reap fails jobs left in queued or running state by a previous process.
// Call once before serving traffic.
func (r *Runner) Reap(ctx context.Context) error {
	swept, err := r.store.FailOrphanedJobs(ctx, orphanErrText)
	if err != nil {
		return fmt.Errorf("reap orphaned jobs: %w", err)
	}
	if swept > 0 {
		r.logger.Warn("failed orphaned crawl jobs", zap.Int("count", swept))
	}
	return nil
}

// Start creates a queued job and launches its crawl in the background. The
// returned job ID can be polled via the job store.
func (r *Runner) Start(ctx context.Context, site storage.Site, startURL string, maxPages int) (string, error) {
	job := storage.Job{
		ID:       uuid.NewString(),
		SiteID:   site.ID,
		Domain:   site.Domain,
		StartURL: startURL,
		Status:   storage.JobStatusQueued,
		MaxPages: maxPages,
	}
	if err := r.store.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.mu.Lock()
	r.cancels[job.ID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.cancels, job.ID)
			r.mu.Unlock()
			cancel()
		}()
		r.run(runCtx, job)
	}()
	return job.ID, nil
}

// Cancel stops a running job. Unknown or already finished jobs are a no-op.
func (r *Runner) Cancel(jobID string) {
	r.mu.Lock()
	cancel, ok := r.cancels[jobID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

// Shutdown cancels all running jobs and waits for them to finalize.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	for _, cancel := range r.cancels {
		cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, job storage.Job) {
	logger := r.logger.With(zap.String("job_id", job.ID), zap.String("domain", job.Domain))

	if err := r.store.UpdateJobStatus(ctx, job.ID, storage.JobStatusRunning, ""); err != nil {
		logger.Error("mark job running failed", zap.Error(err))
		return
	}

	crawled, failed := 0, 0
	outcomes, err := r.crawler.Run(ctx, job.SiteID, job.StartURL, job.MaxPages, func(event crawler.Event) {
		if event.Type != crawler.EventPage {
			return
		}
		if event.OK {
			crawled++
		} else {
			failed++
		}
		if updErr := r.store.UpdateJobCounters(ctx, job.ID, crawled, failed); updErr != nil {
			logger.Warn("update job counters failed", zap.Error(updErr))
		}
	})

	// Finalization must survive job cancellation.
	finCtx := context.WithoutCancel(ctx)
	if err != nil {
		status := storage.JobStatusError
		errText := err.Error()
		if ctx.Err() != nil {
			errText = "canceled"
		}
		if updErr := r.store.UpdateJobStatus(finCtx, job.ID, status, errText); updErr != nil {
			logger.Error("mark job failed failed", zap.Error(updErr))
		}
		metrics.CrawlRunFinished("error")
		logger.Warn("crawl job failed", zap.Error(err))
		return
	}

	if scoreErr := r.scorePages(finCtx, job); scoreErr != nil {
		logger.Warn("score pages failed", zap.Error(scoreErr))
	}

	if updErr := r.store.UpdateJobCounters(finCtx, job.ID, countOK(outcomes), countFailed(outcomes)); updErr != nil {
		logger.Warn("update job counters failed", zap.Error(updErr))
	}
	if updErr := r.store.UpdateJobStatus(finCtx, job.ID, storage.JobStatusDone, ""); updErr != nil {
		logger.Error("mark job done failed", zap.Error(updErr))
		return
	}
	metrics.CrawlRunFinished("ok")
	logger.Info("crawl job finished",
		zap.Int("pages_crawled", countOK(outcomes)),
		zap.Int("pages_failed", countFailed(outcomes)))
}

// scorePages writes a ranked PageScore row per indexed page so the advance
// endpoint can walk results in order.
func (r *Runner) scorePages(ctx context.Context, job storage.Job) error {
	pages, err := r.store.ListPages(ctx, job.SiteID)
	if err != nil {
		return fmt.Errorf("list pages: %w", err)
	}
	for _, page := range pages {
		score := scorePage(page, job.StartURL)
		if err := r.store.CreatePageScore(ctx, storage.PageScore{
			JobID:   job.ID,
			URL:     page.URL,
			Title:   truncate(page.Title, 512),
			Score:   score,
			Reasons: scoreReasons(score, page),
		}); err != nil {
			return fmt.Errorf("create page score: %w", err)
		}
	}
	if err := r.store.RankPageScores(ctx, job.ID); err != nil {
		return fmt.Errorf("rank page scores: %w", err)
	}
	return nil
}

// scorePage rates a page in [0,1] from simple structural signals: the start
// page ranks highest, then title quality, content volume, and path depth.
func scorePage(page storage.Page, startURL string) float64 {
	score := 0.0
	if isStartPage(page.URL, startURL) {
		score += 0.4
	}
	if len(page.Title) > 10 {
		score += 0.2
	}
	switch {
	case len(page.Content) > 1000:
		score += 0.2
	case len(page.Content) > 500:
		score += 0.1
	}
	if pathDepth(page.URL) <= 2 {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}

func scoreReasons(score float64, page storage.Page) []string {
	var reasons []string
	if score >= 0.8 {
		reasons = append(reasons, "High-quality content")
	}
	if len(page.Title) > 10 {
		reasons = append(reasons, "Clear page title")
	}
	if pathDepth(page.URL) <= 1 {
		reasons = append(reasons, "Main section page")
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "Standard page")
	}
	if len(reasons) > 3 {
		reasons = reasons[:3]
	}
	return reasons
}

func isStartPage(pageURL, startURL string) bool {
	trim := func(s string) string { return strings.TrimRight(s, "/") }
	return trim(pageURL) == trim(startURL)
}

func pathDepth(rawURL string) int {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return 0
	}
	return len(strings.Split(path, "/"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func countOK(outcomes []crawler.Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.OK {
			n++
		}
	}
	return n
}

func countFailed(outcomes []crawler.Outcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.OK {
			n++
		}
	}
	return n
}
