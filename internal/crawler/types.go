// Package crawler implements the crawl-and-index pipeline: URL
// canonicalization, the FIFO frontier, robots politeness, and the rendered
// and plain page fetchers driven by the sequential crawl loop.
package crawler

import "context"

// FetchResult is what a Fetcher produces for one page. Screenshot is nil
// when the fetch strategy cannot capture one. Links are the raw anchor hrefs
// resolved against the page URL; the crawl loop normalizes and
// origin-filters them.
type FetchResult struct {
	URL        string
	HTML       string
	Screenshot []byte
	Links      []string
}

// Fetcher retrieves one page. Implementations: chromedp rendered fetch and
// colly plain fetch.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (FetchResult, error)
	// Close releases fetch resources (the browser, for the rendered
	// strategy). Guaranteed to be called once per crawl run.
	Close(ctx context.Context) error
}

// EventType discriminates crawl stream events.
type EventType string

// Crawl stream event types.
const (
	EventStatus EventType = "status"
	EventPage   EventType = "page"
	EventDone   EventType = "done"
)

// Event is one crawl progress notification, serialized as-is onto the
// crawl event stream.
type Event struct {
	Type          EventType `json:"type"`
	Message       string    `json:"message,omitempty"`
	URL           string    `json:"url,omitempty"`
	OK            bool      `json:"ok,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	PageID        string    `json:"pageId,omitempty"`
	Title         string    `json:"title,omitempty"`
	Summary       string    `json:"summary,omitempty"`
	ScreenshotURL string    `json:"screenshotUrl,omitempty"`
}

// EventFunc receives crawl events. A nil EventFunc is valid and discards
// everything.
type EventFunc func(Event)

func (fn EventFunc) emit(ev Event) {
	if fn != nil {
		fn(ev)
	}
}
