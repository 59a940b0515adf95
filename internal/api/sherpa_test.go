package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tchan1002/pathfinder/internal/storage"
)

func newJob(id string, site storage.Site) storage.Job {
	return storage.Job{
		ID:       id,
		SiteID:   site.ID,
		Domain:   site.Domain,
		StartURL: site.StartURL,
		MaxPages: 200,
	}
}

func TestAnalyzeStartsJob(t *testing.T) {
	env := newTestEnv(t)
	env.runner.jobID = "job-42"

	rec := env.do(t, http.MethodPost, "/v1/analyze", map[string]any{
		"start_url": "https://example.com/docs",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "started", body["mode"])
	require.Equal(t, "job-42", body["job_id"])
	require.EqualValues(t, 120, body["eta_sec"])

	require.Equal(t, "example.com", env.runner.lastSite.Domain)
	require.Equal(t, "https://example.com/docs", env.runner.lastURL)
	require.Equal(t, 200, env.runner.lastMax)
}

func TestAnalyzeReusesExistingSite(t *testing.T) {
	env := newTestEnv(t)
	site := env.seedSite(t, "example.com")

	rec := env.do(t, http.MethodPost, "/v1/analyze", map[string]any{
		"start_url": "https://example.com/",
		"max_pages": 25,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, site.ID, env.runner.lastSite.ID)
	require.Equal(t, 25, env.runner.lastMax)
}

func TestAnalyzeCachedResults(t *testing.T) {
	env := newTestEnv(t)
	env.seedDoneJob(t, "example.com",
		"https://example.com/",
		"https://example.com/docs",
		"https://example.com/about",
	)

	rec := env.do(t, http.MethodPost, "/v1/analyze", map[string]any{
		"start_url": "https://example.com/",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "cached", body["mode"])

	top := body["top"].(map[string]any)
	require.Equal(t, "https://example.com/", top["url"])
	require.EqualValues(t, 1, top["rank"])

	next := body["next"].(map[string]any)
	require.EqualValues(t, 2, next["rank"])
	require.EqualValues(t, 1, body["remaining"])
}

func TestAnalyzeStaleResultsStartNewJob(t *testing.T) {
	env := newTestEnv(t)
	env.seedDoneJob(t, "example.com", "https://example.com/")
	env.server.now = func() time.Time { return time.Now().Add(time.Hour) }

	rec := env.do(t, http.MethodPost, "/v1/analyze", map[string]any{
		"start_url": "https://example.com/",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "started", decodeBody(t, rec)["mode"])
}

func TestAnalyzeInvalidURL(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/analyze", map[string]any{
		"start_url": "not a url",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "INVALID_URL", body["error_code"])
	require.NotEmpty(t, body["request_id"])
}

func TestAnalyzeMissingStartURL(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/analyze", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "INVALID_REQUEST", decodeBody(t, rec)["error_code"])
}

func TestAnalyzeDisallowedDomain(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/analyze", map[string]any{
		"start_url":    "https://example.com/",
		"domain_limit": "other.com",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "DISALLOWED_DOMAIN", decodeBody(t, rec)["error_code"])
}

func TestCheckDomainIndexed(t *testing.T) {
	env := newTestEnv(t)
	site := env.seedSite(t, "example.com")
	ctx := context.Background()
	_, err := env.store.UpsertPage(ctx, storage.Page{
		ID:            "page-1",
		SiteID:        site.ID,
		URL:           "https://example.com/docs",
		NormalizedURL: "https://example.com/docs",
		Title:         "Docs",
		Content:       "how to get started",
		LastCrawledAt: time.Now(),
	})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/v1/check", map[string]any{
		"url": "https://example.com/anything",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, true, body["exists"])
	require.Equal(t, "example.com", body["domain"])
	require.Equal(t, site.ID, body["siteId"])
	require.EqualValues(t, 1, body["pageCount"])

	pages := body["pages"].([]any)
	require.Len(t, pages, 1)
	page := pages[0].(map[string]any)
	require.Equal(t, "https://example.com/docs", page["url"])
	require.Equal(t, "Docs", page["title"])
	require.Equal(t, "how to get started", page["content"])
}

func TestCheckDomainUnknown(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/check", map[string]any{
		"url": "https://nowhere.example/",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, false, body["exists"])
	require.Equal(t, "nowhere.example", body["domain"])
}

func TestCheckDomainNoPages(t *testing.T) {
	env := newTestEnv(t)
	env.seedSite(t, "example.com")

	rec := env.do(t, http.MethodPost, "/v1/check", map[string]any{
		"url": "https://example.com/",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, true, body["exists"])
	require.Len(t, body["pages"].([]any), 0)
}

func TestCheckDomainErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/check", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "INVALID_REQUEST", decodeBody(t, rec)["error_code"])

	rec = env.do(t, http.MethodPost, "/v1/check", map[string]any{"url": "not a url"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "INVALID_URL", decodeBody(t, rec)["error_code"])
}

func TestResultsHead(t *testing.T) {
	env := newTestEnv(t)
	job := env.seedDoneJob(t, "example.com",
		"https://example.com/",
		"https://example.com/docs",
		"https://example.com/about",
	)

	rec := env.do(t, http.MethodGet, "/v1/results/head?job_id="+job.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)

	top := body["top"].(map[string]any)
	require.Equal(t, "https://example.com/", top["url"])
	require.EqualValues(t, 1, top["rank"])
	next := body["next"].(map[string]any)
	require.EqualValues(t, 2, next["rank"])
	require.EqualValues(t, 1, body["remaining"])

	// Peeking does not consume: a second read returns the same head.
	rec = env.do(t, http.MethodGet, "/v1/results/head?job_id="+job.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	again := decodeBody(t, rec)
	require.Equal(t, "https://example.com/", again["top"].(map[string]any)["url"])
}

func TestResultsHeadErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/results/head", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "INVALID_REQUEST", decodeBody(t, rec)["error_code"])

	rec = env.do(t, http.MethodGet, "/v1/results/head?job_id=missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "JOB_NOT_FOUND", decodeBody(t, rec)["error_code"])

	site := env.seedSite(t, "example.com")
	running := newJob("job-running", site)
	require.NoError(t, env.store.CreateJob(context.Background(), running))
	rec = env.do(t, http.MethodGet, "/v1/results/head?job_id=job-running", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "INVALID_REQUEST", decodeBody(t, rec)["error_code"])
}

func TestJobStatusLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	site := env.seedSite(t, "example.com")

	job := newJob("job-status", site)
	require.NoError(t, env.store.CreateJob(ctx, job))

	rec := env.do(t, http.MethodGet, "/v1/jobs/job-status/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "queued", body["status"])
	require.NotNil(t, body["progress"])

	require.NoError(t, env.store.UpdateJobStatus(ctx, job.ID, "running", ""))
	require.NoError(t, env.store.UpdateJobCounters(ctx, job.ID, 7, 1))
	rec = env.do(t, http.MethodGet, "/v1/jobs/job-status/status", nil)
	body = decodeBody(t, rec)
	require.Equal(t, "running", body["status"])
	progress := body["progress"].(map[string]any)
	require.EqualValues(t, 7, progress["pages_scanned"])
	require.Nil(t, progress["pages_total_est"])

	require.NoError(t, env.store.UpdateJobStatus(ctx, job.ID, "error", "boom"))
	rec = env.do(t, http.MethodGet, "/v1/jobs/job-status/status", nil)
	body = decodeBody(t, rec)
	require.Equal(t, "error", body["status"])
	require.Equal(t, "CRAWL_FAILURE", body["error_code"])
	require.Equal(t, "boom", body["error_message"])
	require.Nil(t, body["progress"])
}

func TestJobStatusNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/jobs/missing/status", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "JOB_NOT_FOUND", decodeBody(t, rec)["error_code"])
}

func TestAdvance(t *testing.T) {
	env := newTestEnv(t)
	job := env.seedDoneJob(t, "example.com",
		"https://example.com/",
		"https://example.com/docs",
		"https://example.com/about",
	)

	rec := env.do(t, http.MethodPost, "/v1/results/advance", map[string]any{
		"job_id":       job.ID,
		"consumed_url": "https://example.com/",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	next := body["next"].(map[string]any)
	require.Equal(t, "https://example.com/docs", next["url"])
	require.EqualValues(t, 1, body["remaining"])

	rec = env.do(t, http.MethodPost, "/v1/results/advance", map[string]any{
		"job_id":       job.ID,
		"consumed_url": "https://example.com/about",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	require.Nil(t, body["next"])
	require.EqualValues(t, 0, body["remaining"])
}

func TestAdvanceErrors(t *testing.T) {
	env := newTestEnv(t)
	job := env.seedDoneJob(t, "example.com", "https://example.com/")

	rec := env.do(t, http.MethodPost, "/v1/results/advance", map[string]any{
		"job_id":       "missing",
		"consumed_url": "https://example.com/",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "JOB_NOT_FOUND", decodeBody(t, rec)["error_code"])

	rec = env.do(t, http.MethodPost, "/v1/results/advance", map[string]any{
		"job_id":       job.ID,
		"consumed_url": "https://example.com/unknown",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "INVALID_REQUEST", decodeBody(t, rec)["error_code"])

	running := newJob("job-running", env.runner.lastSite)
	running.Domain = "example.com"
	require.NoError(t, env.store.CreateJob(context.Background(), running))
	rec = env.do(t, http.MethodPost, "/v1/results/advance", map[string]any{
		"job_id":       running.ID,
		"consumed_url": "https://example.com/",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeedback(t *testing.T) {
	env := newTestEnv(t)
	job := env.seedDoneJob(t, "example.com", "https://example.com/")

	rank := 1
	rec := env.do(t, http.MethodPost, "/v1/feedback", map[string]any{
		"job_id":      job.ID,
		"landed_url":  "https://example.com/",
		"was_correct": true,
		"chosen_rank": rank,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decodeBody(t, rec)["ok"])
}

func TestFeedbackUnknownJob(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/feedback", map[string]any{
		"job_id":      "missing",
		"landed_url":  "https://example.com/",
		"was_correct": false,
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "JOB_NOT_FOUND", decodeBody(t, rec)["error_code"])
}
