package crawler

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// CollyFetcher is the plain (non-browser) fetch strategy: a direct HTTP GET
// following redirects, with anchor hrefs pulled from the static document.
// It produces no screenshots.
type CollyFetcher struct {
	userAgent string
	timeout   time.Duration
	transport http.RoundTripper
}

// NewCollyFetcher builds the plain fetcher.
func NewCollyFetcher(userAgent string, timeout time.Duration) *CollyFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CollyFetcher{
		userAgent: userAgent,
		timeout:   timeout,
		transport: newHTTPTransport(),
	}
}

// Fetch executes a single GET using a fresh collector. Robots enforcement
// happens in the crawl loop, so the collector's own robots handling is off.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (FetchResult, error) {
	collector := colly.NewCollector(colly.Async(false))
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	collector.SetRequestTimeout(f.timeout)
	if f.userAgent != "" {
		collector.UserAgent = f.userAgent
	}
	if f.transport != nil {
		collector.WithTransport(f.transport)
	}

	var (
		result   FetchResult
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		result.URL = r.Request.URL.String()
		result.HTML = string(r.Body)
	})
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		if href := e.Request.AbsoluteURL(e.Attr("href")); href != "" {
			result.Links = append(result.Links, href)
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return FetchResult{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return FetchResult{}, fmt.Errorf("visit %s: %w", rawURL, err)
		}
		if fetchErr != nil {
			return FetchResult{}, fetchErr
		}
		return result, nil
	}
}

// Close is a no-op; the plain fetcher holds no long-lived resources.
func (f *CollyFetcher) Close(context.Context) error { return nil }

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
