package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tchan1002/pathfinder/internal/crawler"
	"github.com/tchan1002/pathfinder/internal/storage"
)

// Freshness window for reusing a finished job's results instead of starting
// a new crawl, and the crawl duration estimate reported to clients.
const (
	resultFreshness = 15 * time.Minute
	crawlETASeconds = 120
)

// Error codes surfaced by the /v1 endpoints.
const (
	codeInvalidURL       = "INVALID_URL"
	codeInvalidRequest   = "INVALID_REQUEST"
	codeDisallowedDomain = "DISALLOWED_DOMAIN"
	codeJobNotFound      = "JOB_NOT_FOUND"
	codeCrawlFailure     = "CRAWL_FAILURE"
	codeInternalError    = "INTERNAL_ERROR"
)

type analyzeRequest struct {
	StartURL    string `json:"start_url"`
	DomainLimit string `json:"domain_limit"`
	UserID      string `json:"user_id"`
	MaxPages    int    `json:"max_pages"`
}

type advanceRequest struct {
	JobID       string `json:"job_id"`
	ConsumedURL string `json:"consumed_url"`
}

type feedbackRequest struct {
	JobID      string `json:"job_id"`
	LandedURL  string `json:"landed_url"`
	WasCorrect bool   `json:"was_correct"`
	ChosenRank *int   `json:"chosen_rank"`
}

type rankedPage struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Score     float64   `json:"score"`
	Rank      int       `json:"rank"`
	Reasons   []string  `json:"reasons,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type progressPayload struct {
	PagesScanned  int  `json:"pages_scanned"`
	PagesTotalEst *int `json:"pages_total_est"`
}

type jobStatusResponse struct {
	Status       string           `json:"status"`
	Progress     *progressPayload `json:"progress,omitempty"`
	ErrorCode    string           `json:"error_code,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// analyze returns cached ranked results when a recent crawl of the domain
// exists, and otherwise starts a new background crawl job.
func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorCode(w, r, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}
	if req.StartURL == "" {
		s.writeErrorCode(w, r, http.StatusBadRequest, codeInvalidRequest, "start_url is required")
		return
	}
	startURL, err := crawler.NormalizeURL(req.StartURL)
	if err != nil {
		s.writeErrorCode(w, r, http.StatusBadRequest, codeInvalidURL, "start_url is not a valid http(s) URL")
		return
	}
	if req.DomainLimit != "" && !crawler.WithinDomainLimit(startURL, req.DomainLimit) {
		s.writeErrorCode(w, r, http.StatusBadRequest, codeDisallowedDomain, "start_url is outside the allowed domain")
		return
	}
	domain, err := crawler.ExtractDomain(startURL)
	if err != nil {
		s.writeErrorCode(w, r, http.StatusBadRequest, codeInvalidURL, "start_url has no host")
		return
	}

	if job, err := s.store.LatestDoneJob(r.Context(), domain); err == nil {
		if s.now().Sub(job.CreatedAt) <= resultFreshness {
			scores, err := s.store.ListPageScores(r.Context(), job.ID)
			if err != nil {
				s.internalError(w, r, "load cached results", err)
				return
			}
			if len(scores) > 0 {
				s.writeCached(w, job.ID, scores)
				return
			}
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.internalError(w, r, "look up previous jobs", err)
		return
	}

	site, err := s.store.GetSiteByDomain(r.Context(), domain)
	if errors.Is(err, storage.ErrNotFound) {
		site = storage.Site{ID: uuid.NewString(), Domain: domain, StartURL: startURL}
		if err := s.store.CreateSite(r.Context(), site); err != nil {
			s.internalError(w, r, "create site", err)
			return
		}
	} else if err != nil {
		s.internalError(w, r, "load site", err)
		return
	}

	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = s.cfg.Crawler.MaxPagesDefault
	}
	jobID, err := s.runner.Start(r.Context(), site, startURL, maxPages)
	if err != nil {
		s.internalError(w, r, "start crawl job", err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"mode":    "started",
		"job_id":  jobID,
		"eta_sec": crawlETASeconds,
	})
}

func (s *Server) writeCached(w http.ResponseWriter, jobID string, scores []storage.PageScore) {
	var next *rankedPage
	if len(scores) > 1 {
		p := toRankedPage(scores[1])
		next = &p
	}
	remaining := len(scores) - 2
	if remaining < 0 {
		remaining = 0
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"mode":      "cached",
		"job_id":    jobID,
		"top":       toRankedPage(scores[0]),
		"next":      next,
		"remaining": remaining,
	})
}

type checkRequest struct {
	URL string `json:"url"`
}

type checkedPage struct {
	ID            string    `json:"id"`
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	LastCrawledAt time.Time `json:"lastCrawledAt"`
}

// checkDomain reports whether a domain is already indexed, with its pages.
func (s *Server) checkDomain(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorCode(w, r, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}
	if req.URL == "" {
		s.writeErrorCode(w, r, http.StatusBadRequest, codeInvalidRequest, "url is required")
		return
	}
	normalized, err := crawler.NormalizeURL(req.URL)
	if err != nil {
		s.writeErrorCode(w, r, http.StatusBadRequest, codeInvalidURL, "url is not a valid http(s) URL")
		return
	}
	domain, err := crawler.ExtractDomain(normalized)
	if err != nil {
		s.writeErrorCode(w, r, http.StatusBadRequest, codeInvalidURL, "url has no host")
		return
	}

	site, err := s.store.GetSiteByDomain(r.Context(), domain)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(s.logger, w, http.StatusOK, map[string]any{
			"exists":  false,
			"domain":  domain,
			"message": "Site not found. Crawl it first.",
		})
		return
	} else if err != nil {
		s.internalError(w, r, "load site", err)
		return
	}

	pages, err := s.store.ListPages(r.Context(), site.ID)
	if err != nil {
		s.internalError(w, r, "list pages", err)
		return
	}
	if len(pages) == 0 {
		writeJSON(s.logger, w, http.StatusOK, map[string]any{
			"exists":  true,
			"domain":  domain,
			"pages":   []checkedPage{},
			"message": "Site exists but has no pages yet. Crawling may not be complete.",
		})
		return
	}

	payload := make([]checkedPage, 0, len(pages))
	for _, p := range pages {
		payload = append(payload, checkedPage{
			ID:            p.ID,
			URL:           p.URL,
			Title:         p.Title,
			Content:       p.Content,
			LastCrawledAt: p.LastCrawledAt,
		})
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"exists":    true,
		"domain":    domain,
		"siteId":    site.ID,
		"pages":     payload,
		"pageCount": len(payload),
		"message":   fmt.Sprintf("Found %d pages for %s", len(payload), domain),
	})
}

// resultsHead peeks at a finished job's top and next candidates without
// moving the cursor.
func (s *Server) resultsHead(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		s.writeErrorCode(w, r, http.StatusBadRequest, codeInvalidRequest, "job_id is required")
		return
	}

	job, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeErrorCode(w, r, http.StatusNotFound, codeJobNotFound, "job not found")
			return
		}
		s.internalError(w, r, "load job", err)
		return
	}
	if job.Status != storage.JobStatusDone {
		s.writeErrorCode(w, r, http.StatusBadRequest, codeInvalidRequest, "job is not done")
		return
	}

	scores, err := s.store.ListPageScores(r.Context(), job.ID)
	if err != nil {
		s.internalError(w, r, "load results", err)
		return
	}
	if len(scores) == 0 {
		s.writeErrorCode(w, r, http.StatusNotFound, codeJobNotFound, "job has no results")
		return
	}

	var next *rankedPage
	if len(scores) > 1 {
		p := toRankedPage(scores[1])
		next = &p
	}
	remaining := len(scores) - 2
	if remaining < 0 {
		remaining = 0
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"top":       toRankedPage(scores[0]),
		"next":      next,
		"remaining": remaining,
	})
}

func (s *Server) jobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeErrorCode(w, r, http.StatusNotFound, codeJobNotFound, "job not found")
			return
		}
		s.internalError(w, r, "load job", err)
		return
	}

	resp := jobStatusResponse{Status: string(job.Status)}
	switch job.Status {
	case storage.JobStatusQueued, storage.JobStatusRunning:
		resp.Progress = &progressPayload{PagesScanned: job.PagesCrawled}
	case storage.JobStatusError:
		resp.ErrorCode = codeCrawlFailure
		resp.ErrorMessage = job.ErrorText
	}
	writeJSON(s.logger, w, http.StatusOK, resp)
}

// advance moves the result cursor past a consumed page and returns the next
// ranked candidate.
func (s *Server) advance(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorCode(w, r, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}
	if req.JobID == "" || req.ConsumedURL == "" {
		s.writeErrorCode(w, r, http.StatusBadRequest, codeInvalidRequest, "job_id and consumed_url are required")
		return
	}

	job, err := s.store.GetJob(r.Context(), req.JobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeErrorCode(w, r, http.StatusNotFound, codeJobNotFound, "job not found")
			return
		}
		s.internalError(w, r, "load job", err)
		return
	}
	if job.Status != storage.JobStatusDone {
		s.writeErrorCode(w, r, http.StatusBadRequest, codeInvalidRequest, "job is not done")
		return
	}

	scores, err := s.store.ListPageScores(r.Context(), job.ID)
	if err != nil {
		s.internalError(w, r, "load results", err)
		return
	}
	consumed := findScore(scores, req.ConsumedURL)
	if consumed == nil {
		s.writeErrorCode(w, r, http.StatusBadRequest, codeInvalidRequest, "consumed_url is not in the job results")
		return
	}

	var next *rankedPage
	for _, sc := range scores {
		if sc.Rank == consumed.Rank+1 {
			p := toRankedPage(sc)
			next = &p
			break
		}
	}
	remaining := len(scores) - (consumed.Rank + 1)
	if remaining < 0 {
		remaining = 0
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"next":      next,
		"remaining": remaining,
	})
}

func (s *Server) feedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorCode(w, r, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}
	if req.JobID == "" || req.LandedURL == "" {
		s.writeErrorCode(w, r, http.StatusBadRequest, codeInvalidRequest, "job_id and landed_url are required")
		return
	}

	fb := storage.Feedback{
		JobID:      req.JobID,
		LandedURL:  req.LandedURL,
		WasCorrect: req.WasCorrect,
		ChosenRank: req.ChosenRank,
	}
	if err := s.store.CreateFeedback(r.Context(), fb); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeErrorCode(w, r, http.StatusNotFound, codeJobNotFound, "job not found")
			return
		}
		s.internalError(w, r, "record feedback", err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]bool{"ok": true})
}

func findScore(scores []storage.PageScore, rawURL string) *storage.PageScore {
	normalized, err := crawler.NormalizeURL(rawURL)
	for i := range scores {
		if scores[i].URL == rawURL {
			return &scores[i]
		}
		if err == nil && scores[i].URL == normalized {
			return &scores[i]
		}
	}
	return nil
}

func toRankedPage(sc storage.PageScore) rankedPage {
	return rankedPage{
		URL:       sc.URL,
		Title:     sc.Title,
		Score:     sc.Score,
		Rank:      sc.Rank,
		Reasons:   sc.Reasons,
		UpdatedAt: sc.UpdatedAt,
	}
}

func (s *Server) writeErrorCode(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(s.logger, w, status, map[string]string{
		"error_code":    code,
		"error_message": msg,
		"request_id":    requestIDFrom(r.Context()),
	})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, action string, err error) {
	s.logger.Error(action+" failed", zap.Error(err), zap.String("request_id", requestIDFrom(r.Context())))
	s.writeErrorCode(w, r, http.StatusInternalServerError, codeInternalError, "internal server error")
}
