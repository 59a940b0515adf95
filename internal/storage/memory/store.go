// Package memory provides an in-memory Store for development and tests.
package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tchan1002/pathfinder/internal/storage"
)

// Store implements storage.Store with maps guarded by one mutex. Vector
// search is an exact cosine scan, which is fine at development scale.
type Store struct {
	mu         sync.RWMutex
	sites      map[string]storage.Site
	pages      map[string]storage.Page
	snapshots  map[string][]storage.Snapshot
	summaries  map[string][]storage.Summary
	embeddings map[string]storage.Embedding
	jobs       map[string]storage.Job
	scores     map[string][]storage.PageScore
	feedback   []storage.Feedback
}

func NewStore() *Store {
	return &Store{
		sites:      make(map[string]storage.Site),
		pages:      make(map[string]storage.Page),
		snapshots:  make(map[string][]storage.Snapshot),
		summaries:  make(map[string][]storage.Summary),
		embeddings: make(map[string]storage.Embedding),
		jobs:       make(map[string]storage.Job),
		scores:     make(map[string][]storage.PageScore),
	}
}

func (s *Store) CreateSite(_ context.Context, site storage.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sites {
		if existing.Domain == site.Domain {
			return errors.New("site domain already exists")
		}
	}
	if site.ID == "" {
		site.ID = uuid.NewString()
	}
	if site.CreatedAt.IsZero() {
		site.CreatedAt = time.Now().UTC()
	}
	s.sites[site.ID] = site
	return nil
}

func (s *Store) GetSite(_ context.Context, siteID string) (storage.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[siteID]
	if !ok {
		return storage.Site{}, storage.ErrNotFound
	}
	return site, nil
}

func (s *Store) GetSiteByDomain(_ context.Context, domain string) (storage.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, site := range s.sites {
		if site.Domain == domain {
			return site, nil
		}
	}
	return storage.Site{}, storage.ErrNotFound
}

func (s *Store) ListSites(_ context.Context) ([]storage.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.Site, 0, len(s.sites))
	for _, site := range s.sites {
		out = append(out, site)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteSite(_ context.Context, siteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[siteID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.sites, siteID)
	for id, page := range s.pages {
		if page.SiteID != siteID {
			continue
		}
		delete(s.pages, id)
		delete(s.snapshots, id)
		delete(s.summaries, id)
		delete(s.embeddings, id)
	}
	return nil
}

func (s *Store) UpsertPage(_ context.Context, page storage.Page) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for id, existing := range s.pages {
		if existing.SiteID == page.SiteID && existing.NormalizedURL == page.NormalizedURL {
			existing.URL = page.URL
			existing.Title = page.Title
			existing.MetaDescription = page.MetaDescription
			existing.Content = page.Content
			existing.ContentHash = page.ContentHash
			existing.LastCrawledAt = page.LastCrawledAt
			s.pages[id] = existing
			return id, nil
		}
	}
	if page.ID == "" {
		page.ID = uuid.NewString()
	}
	if page.CreatedAt.IsZero() {
		page.CreatedAt = now
	}
	s.pages[page.ID] = page
	return page.ID, nil
}

func (s *Store) ListPages(_ context.Context, siteID string) ([]storage.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.Page
	for _, page := range s.pages {
		if page.SiteID == siteID {
			out = append(out, page)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateSnapshot(_ context.Context, snap storage.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	s.snapshots[snap.PageID] = append(s.snapshots[snap.PageID], snap)
	return nil
}

func (s *Store) GetSummary(_ context.Context, pageID, textHash string) (storage.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sum := range s.summaries[pageID] {
		if sum.TextHash == textHash {
			return sum, nil
		}
	}
	return storage.Summary{}, storage.ErrNotFound
}

func (s *Store) CreateSummary(_ context.Context, summary storage.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if summary.ID == "" {
		summary.ID = uuid.NewString()
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}
	s.summaries[summary.PageID] = append(s.summaries[summary.PageID], summary)
	return nil
}

func (s *Store) ReplaceEmbedding(_ context.Context, emb storage.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if emb.ID == "" {
		emb.ID = uuid.NewString()
	}
	if emb.CreatedAt.IsZero() {
		emb.CreatedAt = time.Now().UTC()
	}
	s.embeddings[emb.PageID] = emb
	return nil
}

func (s *Store) SearchByVector(_ context.Context, siteID string, vector []float32, limit int) ([]storage.PageHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var hits []storage.PageHit
	for pageID, emb := range s.embeddings {
		page, ok := s.pages[pageID]
		if !ok || page.SiteID != siteID {
			continue
		}
		sim := cosine(vector, emb.Vector)
		dist := 1 - sim
		hit := s.hitLocked(page)
		hit.Similarity = sim
		hit.Distance = &dist
		hits = append(hits, hit)
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *Store) ListPagesByRecency(_ context.Context, siteID string, limit int) ([]storage.PageHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pages []storage.Page
	for _, page := range s.pages {
		if page.SiteID == siteID {
			pages = append(pages, page)
		}
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].LastCrawledAt.After(pages[j].LastCrawledAt) })
	if limit > 0 && len(pages) > limit {
		pages = pages[:limit]
	}
	hits := make([]storage.PageHit, 0, len(pages))
	for _, page := range pages {
		hits = append(hits, s.hitLocked(page))
	}
	return hits, nil
}

// hitLocked joins a page with its newest summary and snapshot. Callers hold
// at least a read lock.
func (s *Store) hitLocked(page storage.Page) storage.PageHit {
	hit := storage.PageHit{
		PageID:  page.ID,
		URL:     page.URL,
		Title:   page.Title,
		Content: page.Content,
	}
	if sums := s.summaries[page.ID]; len(sums) > 0 {
		latest := sums[0]
		for _, sum := range sums[1:] {
			if sum.CreatedAt.After(latest.CreatedAt) {
				latest = sum
			}
		}
		hit.Summary = latest.Text
	}
	if snaps := s.snapshots[page.ID]; len(snaps) > 0 {
		latest := snaps[0]
		for _, snap := range snaps[1:] {
			if snap.CreatedAt.After(latest.CreatedAt) {
				latest = snap
			}
		}
		hit.Screenshot = latest.ScreenshotPath
	}
	return hit
}

func (s *Store) CreateJob(_ context.Context, job storage.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	if job.Status == "" {
		job.Status = storage.JobStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *Store) GetJob(_ context.Context, jobID string) (storage.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return storage.Job{}, storage.ErrNotFound
	}
	return job, nil
}

func (s *Store) LatestDoneJob(_ context.Context, domain string) (storage.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *storage.Job
	for id := range s.jobs {
		job := s.jobs[id]
		if job.Domain != domain || job.Status != storage.JobStatusDone || job.FinishedAt == nil {
			continue
		}
		if latest == nil || job.FinishedAt.After(*latest.FinishedAt) {
			latest = &job
		}
	}
	if latest == nil {
		return storage.Job{}, storage.ErrNotFound
	}
	return *latest, nil
}

func (s *Store) UpdateJobStatus(_ context.Context, jobID string, status storage.JobStatus, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return storage.ErrNotFound
	}
	job.Status = status
	job.ErrorText = errText
	now := time.Now().UTC()
	if status == storage.JobStatusRunning && job.StartedAt == nil {
		job.StartedAt = &now
	}
	if status == storage.JobStatusDone || status == storage.JobStatusError {
		job.FinishedAt = &now
	}
	s.jobs[jobID] = job
	return nil
}

func (s *Store) UpdateJobCounters(_ context.Context, jobID string, crawled, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return storage.ErrNotFound
	}
	job.PagesCrawled = crawled
	job.PagesFailed = failed
	s.jobs[jobID] = job
	return nil
}

func (s *Store) FailOrphanedJobs(_ context.Context, errText string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	swept := 0
	for id, job := range s.jobs {
		if job.Status != storage.JobStatusQueued && job.Status != storage.JobStatusRunning {
			continue
		}
		job.Status = storage.JobStatusError
		job.ErrorText = errText
		job.FinishedAt = &now
		s.jobs[id] = job
		swept++
	}
	return swept, nil
}

func (s *Store) CreatePageScore(_ context.Context, score storage.PageScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if score.ID == "" {
		score.ID = uuid.NewString()
	}
	score.UpdatedAt = time.Now().UTC()
	s.scores[score.JobID] = append(s.scores[score.JobID], score)
	return nil
}

func (s *Store) RankPageScores(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scores := s.scores[jobID]
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	for i := range scores {
		scores[i].Rank = i + 1
	}
	s.scores[jobID] = scores
	return nil
}

func (s *Store) ListPageScores(_ context.Context, jobID string) ([]storage.PageScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scores := s.scores[jobID]
	out := make([]storage.PageScore, len(scores))
	copy(out, scores)
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (s *Store) CreateFeedback(_ context.Context, fb storage.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[fb.JobID]; !ok {
		return storage.ErrNotFound
	}
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}
	s.feedback = append(s.feedback, fb)
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
