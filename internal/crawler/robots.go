package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

const robotsMaxBytes = 1 << 20

// RobotsPolicy answers whether a URL may be fetched for the configured
// user agent.
type RobotsPolicy interface {
	Allowed(rawURL string) bool
}

type robotsPolicy struct {
	data      *robotstxt.RobotsData
	userAgent string
}

// LoadRobots fetches and parses {origin}/robots.txt once for a crawl run.
// It fails open: an unreachable or unparsable robots.txt yields a policy
// that allows everything.
func LoadRobots(ctx context.Context, client *http.Client, startURL, userAgent string, logger *zap.Logger) RobotsPolicy {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	parsed, err := url.Parse(startURL)
	if err != nil || parsed.Host == "" {
		return allowAll{}
	}
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", parsed.Scheme, parsed.Host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return allowAll{}
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		logger.Warn("robots fetch failed; allowing all", zap.String("url", robotsURL), zap.Error(err))
		return allowAll{}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Debug("close robots body", zap.Error(cerr))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsMaxBytes))
	if err != nil {
		logger.Warn("robots read failed; allowing all", zap.String("url", robotsURL), zap.Error(err))
		return allowAll{}
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		logger.Warn("robots parse failed; allowing all", zap.String("url", robotsURL), zap.Error(err))
		return allowAll{}
	}
	return &robotsPolicy{data: data, userAgent: userAgent}
}

// Allowed implements RobotsPolicy.
func (p *robotsPolicy) Allowed(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	group := p.data.FindGroup(p.userAgent)
	if group == nil {
		return true
	}
	path := parsed.Path
	if path == "" {
		path = "/"
	}
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}
	return group.Test(path)
}

type allowAll struct{}

func (allowAll) Allowed(string) bool { return true }

var _ RobotsPolicy = allowAll{}

// hostLabel extracts a lowercased host for logging and metrics labels.
func hostLabel(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Host)
}
