package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ErrMalformedURL marks input that cannot be canonicalized. Callers treat it
// as "skip this URL", never as fatal to the crawl.
var ErrMalformedURL = errors.New("malformed url")

// NormalizeURL canonicalizes a URL so that equivalent spellings collapse to
// one frontier entry. It lowercases the scheme and host, strips the fragment,
// removes default ports, removes a trailing slash except at the root, and
// sorts query parameters by key (repeated values sorted too). The result is
// idempotent: NormalizeURL(NormalizeURL(u)) == NormalizeURL(u).
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMalformedURL, raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q: missing scheme or host", ErrMalformedURL, raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""

	// A bare host and an explicit root slash are the same page.
	if u.Path == "" {
		u.Path = "/"
	}
	if u.Path != "/" {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}

	u.RawQuery = sortedQuery(u.Query())

	return u.String(), nil
}

func sortedQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vals := append([]string(nil), values[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// SameOrigin reports whether two URLs share scheme, host, and effective port,
// falling back to the scheme's default port when absent. Invalid input yields
// false rather than an error.
func SameOrigin(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	if ua.Hostname() == "" || ub.Hostname() == "" {
		return false
	}
	if !strings.EqualFold(ua.Scheme, ub.Scheme) {
		return false
	}
	if !strings.EqualFold(ua.Hostname(), ub.Hostname()) {
		return false
	}
	return effectivePort(ua) == effectivePort(ub)
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}

// ExtractDomain returns the lowercased hostname for site identity.
func ExtractDomain(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMalformedURL, raw, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: %q: missing host", ErrMalformedURL, raw)
	}
	return host, nil
}

// WithinDomainLimit reports whether the URL's domain is the limit domain or a
// subdomain of it. An empty limit allows everything.
func WithinDomainLimit(raw, limit string) bool {
	if limit == "" {
		return true
	}
	domain, err := ExtractDomain(raw)
	if err != nil {
		return false
	}
	limit = strings.ToLower(limit)
	return domain == limit || strings.HasSuffix(domain, "."+limit)
}
