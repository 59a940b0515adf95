package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tchan1002/pathfinder/internal/metrics"
	"github.com/tchan1002/pathfinder/internal/storage"
)

// ErrStartURLMismatch is returned when the start URL does not belong to the
// site's domain.
var ErrStartURLMismatch = errors.New("start URL must match site domain")

// Config holds the settings for a crawl run.
type Config struct {
	UserAgent  string
	PageBudget int
	NavTimeout time.Duration
	// RenderEnabled selects the browser strategy when a renderer can be
	// launched; when false, or when launch fails, the plain fetcher is used
	// for the whole run.
	RenderEnabled bool
	// Delay is the politeness pause between page fetches.
	Delay time.Duration
}

// IndexedPage is what the indexer reports back for a successfully
// persisted page.
type IndexedPage struct {
	PageID        string
	Title         string
	Summary       string
	ScreenshotURL string
}

// Indexer persists one fetched page and its derived artifacts.
type Indexer interface {
	Index(ctx context.Context, siteID, pageURL, normalizedURL string, fetched FetchResult) (IndexedPage, error)
}

// Outcome records the result of one page visit for batch callers.
type Outcome struct {
	URL    string `json:"url"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// Crawler runs the sequential crawl-and-index loop for one site at a time.
type Crawler struct {
	cfg     Config
	sites   storage.SiteStore
	indexer Indexer
	logger  *zap.Logger

	// newRenderer and newPlain exist so tests can substitute fetchers.
	newRenderer func() (Fetcher, error)
	newPlain    func() Fetcher
	robotsFn    func(ctx context.Context, startURL string) RobotsPolicy
}

// New constructs a Crawler.
func New(cfg Config, sites storage.SiteStore, indexer Indexer, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	c := &Crawler{
		cfg:     cfg,
		sites:   sites,
		indexer: indexer,
		logger:  logger,
	}
	c.newRenderer = func() (Fetcher, error) {
		return NewChromedpFetcher(cfg.UserAgent, cfg.NavTimeout, logger)
	}
	c.newPlain = func() Fetcher {
		return NewCollyFetcher(cfg.UserAgent, cfg.NavTimeout)
	}
	c.robotsFn = func(ctx context.Context, startURL string) RobotsPolicy {
		client := &http.Client{Timeout: 10 * time.Second}
		return LoadRobots(ctx, client, startURL, cfg.UserAgent, logger)
	}
	return c
}

// Run crawls the site from startURL until the frontier empties, the page
// budget is spent, or the context is canceled. maxPages overrides the
// configured page budget when positive. Per-page failures are recorded and
// the loop continues; only site lookup and start URL validation are fatal.
// Events are emitted to onEvent as the run progresses.
func (c *Crawler) Run(ctx context.Context, siteID, startURL string, maxPages int, onEvent EventFunc) ([]Outcome, error) {
	site, err := c.sites.GetSite(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("load site: %w", err)
	}
	if !SameOrigin(startURL, "https://"+site.Domain) && !SameOrigin(startURL, "http://"+site.Domain) {
		return nil, ErrStartURLMismatch
	}

	start, err := NormalizeURL(startURL)
	if err != nil {
		return nil, fmt.Errorf("normalize start url: %w", err)
	}

	robots := c.robotsFn(ctx, start)

	fetcher := c.selectFetcher(onEvent)
	defer func() {
		if cerr := fetcher.Close(context.Background()); cerr != nil {
			c.logger.Warn("fetcher close failed", zap.Error(cerr))
		}
	}()

	budget := c.cfg.PageBudget
	if maxPages > 0 {
		budget = maxPages
	}
	frontier := NewFrontier(budget)
	frontier.Enqueue(start)

	var limiter *rate.Limiter
	if c.cfg.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(c.cfg.Delay), 1)
	}

	var outcomes []Outcome
	for {
		if ctx.Err() != nil {
			return outcomes, fmt.Errorf("crawl canceled: %w", ctx.Err())
		}
		current, ok := frontier.Next()
		if !ok {
			break
		}

		if !robots.Allowed(current) {
			c.logger.Info("robots disallowed", zap.String("url", current))
			metrics.PageCrawled(hostLabel(current), "robots_skip")
			outcome := Outcome{URL: current, Reason: "Disallowed by robots.txt"}
			outcomes = append(outcomes, outcome)
			onEvent.emit(Event{Type: EventPage, URL: current, Reason: outcome.Reason})
			continue
		}
		frontier.Spend()

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return outcomes, fmt.Errorf("politeness wait: %w", err)
			}
		}

		outcomes = append(outcomes, c.visit(ctx, fetcher, robots, frontier, site, current, onEvent))
	}

	onEvent.emit(Event{Type: EventDone})
	return outcomes, nil
}

// selectFetcher picks the fetch strategy once per run: the browser renderer
// when enabled and launchable, otherwise the plain fetcher.
func (c *Crawler) selectFetcher(onEvent EventFunc) Fetcher {
	if c.cfg.RenderEnabled {
		renderer, err := c.newRenderer()
		if err == nil {
			return renderer
		}
		c.logger.Warn("browser unavailable; falling back to plain fetch", zap.Error(err))
		onEvent.emit(Event{Type: EventStatus, Message: "Browser unavailable. Falling back to fetch-only crawl."})
	}
	return c.newPlain()
}

func (c *Crawler) visit(
	ctx context.Context,
	fetcher Fetcher,
	robots RobotsPolicy,
	frontier *Frontier,
	site storage.Site,
	current string,
	onEvent EventFunc,
) Outcome {
	onEvent.emit(Event{Type: EventStatus, Message: "crawling " + current})

	fetched, err := fetcher.Fetch(ctx, current)
	if err != nil {
		c.logger.Warn("page fetch failed", zap.String("url", current), zap.Error(err))
		metrics.PageCrawled(hostLabel(current), "failed")
		onEvent.emit(Event{Type: EventPage, URL: current, Reason: err.Error()})
		return Outcome{URL: current, Reason: err.Error()}
	}

	for _, link := range fetched.Links {
		if !SameOrigin(link, current) {
			continue
		}
		normalized, err := NormalizeURL(link)
		if err != nil {
			continue
		}
		frontier.Enqueue(normalized)
	}

	indexed, err := c.indexer.Index(ctx, site.ID, current, current, fetched)
	if err != nil {
		c.logger.Error("index page failed", zap.String("url", current), zap.Error(err))
		metrics.PageCrawled(hostLabel(current), "failed")
		onEvent.emit(Event{Type: EventPage, URL: current, Reason: err.Error()})
		return Outcome{URL: current, Reason: err.Error()}
	}

	metrics.PageCrawled(hostLabel(current), "ok")
	onEvent.emit(Event{Type: EventStatus, Message: "saved " + current})
	onEvent.emit(Event{
		Type:          EventPage,
		URL:           current,
		OK:            true,
		PageID:        indexed.PageID,
		Title:         indexed.Title,
		Summary:       indexed.Summary,
		ScreenshotURL: indexed.ScreenshotURL,
	})
	return Outcome{URL: current, OK: true}
}
