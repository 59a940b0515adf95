package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const screenshotQuality = 70

// ChromedpFetcher is the rendered fetch strategy: it navigates a headless
// browser tab to the URL, waits for the DOM to be ready, and captures the
// resulting HTML plus a best-effort JPEG screenshot. The browser is acquired
// once per crawl run and released by Close on every exit path.
type ChromedpFetcher struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	timeout         time.Duration
	logger          *zap.Logger
}

// NewChromedpFetcher launches a headless browser and verifies it responds.
// Callers fall back to the plain fetcher when this returns an error.
func NewChromedpFetcher(userAgent string, timeout time.Duration, logger *zap.Logger) (*ChromedpFetcher, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(1280, 720),
		chromedp.UserAgent(userAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &ChromedpFetcher{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		timeout:         timeout,
		logger:          logger,
	}, nil
}

// Fetch renders the page in a fresh tab with a bounded navigation timeout.
// Screenshot failure is logged but does not fail the page.
func (f *ChromedpFetcher) Fetch(ctx context.Context, rawURL string) (FetchResult, error) {
	tabCtx, cancelTab := chromedp.NewContext(f.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, f.timeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	var html string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return FetchResult{}, fmt.Errorf("render %s: %w", rawURL, err)
	}

	result := FetchResult{
		URL:   rawURL,
		HTML:  html,
		Links: anchorsFromHTML(html, rawURL),
	}

	var shot []byte
	captureErr := chromedp.Run(taskCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		data, err := page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(screenshotQuality).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("capture screenshot: %w", err)
		}
		shot = data
		return nil
	}))
	if captureErr != nil {
		f.logger.Debug("screenshot failed", zap.String("url", rawURL), zap.Error(captureErr))
	} else {
		result.Screenshot = shot
	}

	return result, nil
}

// Close tears down the browser and allocator contexts.
func (f *ChromedpFetcher) Close(context.Context) error {
	if f == nil {
		return nil
	}
	f.browserCancel()
	f.allocatorCancel()
	return nil
}

// anchorsFromHTML pulls a[href] values from rendered markup and resolves them
// against the page URL. Parse failures yield no links rather than an error.
func anchorsFromHTML(html, pageURL string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		links = append(links, base.ResolveReference(ref).String())
	})
	return links
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
