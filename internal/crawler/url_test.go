package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases scheme and host", "HTTPS://Example.COM/Path", "https://example.com/Path"},
		{"strips fragment", "https://example.com/page#section", "https://example.com/page"},
		{"strips default https port", "https://example.com:443/page", "https://example.com/page"},
		{"strips default http port", "http://example.com:80/page", "http://example.com/page"},
		{"keeps custom port", "https://example.com:8443/page", "https://example.com:8443/page"},
		{"trims trailing slash", "https://example.com/docs/", "https://example.com/docs"},
		{"keeps root slash", "https://example.com/", "https://example.com/"},
		{"adds root slash to bare host", "http://a.com", "http://a.com/"},
		{"sorts query keys", "https://example.com/p?b=2&a=1", "https://example.com/p?a=1&b=2"},
		{"sorts repeated values", "https://example.com/p?k=z&k=a", "https://example.com/p?k=a&k=z"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeURL(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)

			again, err := NormalizeURL(got)
			require.NoError(t, err)
			require.Equal(t, got, again, "normalization must be idempotent")
		})
	}
}

func TestNormalizeURLErrors(t *testing.T) {
	for _, raw := range []string{"", "not a url", "/relative/path", "example.com/no-scheme"} {
		_, err := NormalizeURL(raw)
		require.ErrorIs(t, err, ErrMalformedURL, "input %q", raw)
	}
}

func TestSameOrigin(t *testing.T) {
	require.True(t, SameOrigin("https://example.com/a", "https://example.com/b"))
	require.True(t, SameOrigin("https://EXAMPLE.com/a", "https://example.com/b"))
	require.True(t, SameOrigin("https://example.com:443/a", "https://example.com/b"))
	require.False(t, SameOrigin("https://example.com/a", "http://example.com/a"))
	require.False(t, SameOrigin("https://example.com/a", "https://other.com/a"))
	require.False(t, SameOrigin("https://example.com/a", "https://sub.example.com/a"))
	require.False(t, SameOrigin("https://example.com:8443/a", "https://example.com/a"))
	require.False(t, SameOrigin("nonsense", "https://example.com/"))
}

func TestExtractDomain(t *testing.T) {
	domain, err := ExtractDomain("https://Shop.Example.com:8080/cart")
	require.NoError(t, err)
	require.Equal(t, "shop.example.com", domain)

	_, err = ExtractDomain("no scheme here")
	require.ErrorIs(t, err, ErrMalformedURL)
}

func TestWithinDomainLimit(t *testing.T) {
	require.True(t, WithinDomainLimit("https://example.com/page", "example.com"))
	require.True(t, WithinDomainLimit("https://docs.example.com/page", "example.com"))
	require.True(t, WithinDomainLimit("https://anything.test/page", ""))
	require.False(t, WithinDomainLimit("https://example.com.evil.test/page", "example.com"))
	require.False(t, WithinDomainLimit("https://other.com/page", "example.com"))
	require.False(t, WithinDomainLimit("garbage", "example.com"))
}
