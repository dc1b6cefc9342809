package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sitemapServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/sitemap-docs.xml</loc></sitemap>
  <sitemap><loc>%s/sitemap-broken.xml</loc></sitemap>
</sitemapindex>`, srv.URL, srv.URL)
	})

	mux.HandleFunc("/sitemap-docs.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%s/docs/getting-started</loc></url>
  <url><loc>%s/docs/api/charges</loc></url>
  <url><loc>%s/ja/docs/api/charges</loc></url>
  <url><loc>%s/blog/funding-round</loc></url>
  <url><loc>%s/docs/getting-started</loc></url>
</urlset>`, srv.URL, srv.URL, srv.URL, srv.URL, srv.URL)
	})

	mux.HandleFunc("/sitemap-broken.xml", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSitemapDiscoverWalksNestedIndex(t *testing.T) {
	srv := sitemapServer(t)

	d := NewSitemapDiscoverer(5*time.Second, 50)
	urls, _, err := d.Discover(context.Background(), srv.URL)
	require.NoError(t, err)

	// Locale pages, non-doc pages and duplicates are filtered out; a
	// broken nested sitemap does not abort the walk.
	assert.Equal(t, []string{
		srv.URL + "/docs/getting-started",
		srv.URL + "/docs/api/charges",
	}, urls)
}

func TestSitemapDiscoverCapsResults(t *testing.T) {
	srv := sitemapServer(t)

	d := NewSitemapDiscoverer(5*time.Second, 1)
	urls, _, err := d.Discover(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, urls, 1)
}

func TestSitemapDiscoverMissingSitemap(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d := NewSitemapDiscoverer(5*time.Second, 50)
	_, _, err := d.Discover(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestSitemapURL(t *testing.T) {
	got, err := sitemapURL("https://example.com/docs?q=1#frag")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/sitemap.xml", got)

	got, err = sitemapURL("https://example.com/custom-map.xml")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/custom-map.xml", got)

	_, err = sitemapURL("not-a-url")
	assert.Error(t, err)
}

func TestFilterDocURLs(t *testing.T) {
	urls := filterDocURLs([]string{
		"https://example.com/docs/auth",
		"https://example.com/DOCS/auth",
		"https://example.com/zh-cn/docs/auth",
		"https://example.com/fr/guide/intro",
		"https://example.com/pricing",
		"https://example.com/api/reference",
	})

	assert.Equal(t, []string{
		"https://example.com/docs/auth",
		"https://example.com/api/reference",
	}, urls)
}

func TestFilterDocURLsLocaleIsPathSegmentOnly(t *testing.T) {
	// "de" inside a word is not a locale segment.
	urls := filterDocURLs([]string{"https://example.com/developer/docs"})
	assert.Len(t, urls, 1)
}
