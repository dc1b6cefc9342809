package discovery

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/kiffhq/kiff/internal/llm"
)

// nonEnglishPath matches locale segments we skip during discovery.
var nonEnglishPath = regexp.MustCompile(`/(zh|zh-cn|zh-tw|cn|ja|jp|ko|kr|ru|fr|de|es|pt|it)(/|$)`)

// docsKeywords mark paths that look like documentation.
var docsKeywords = []string{
	"docs", "api", "reference", "guide", "tutorial", "getting-started",
	"developer", "documentation", "quickstart",
}

const maxSitemapDepth = 3

// SitemapDiscoverer finds candidate documentation URLs by walking a
// site's sitemap.xml, including nested sitemap-index entries.
type SitemapDiscoverer struct {
	httpClient *http.Client
	maxURLs    int
}

func NewSitemapDiscoverer(timeout time.Duration, maxURLs int) *SitemapDiscoverer {
	if maxURLs <= 0 {
		maxURLs = 50
	}
	return &SitemapDiscoverer{
		httpClient: &http.Client{Timeout: timeout},
		maxURLs:    maxURLs,
	}
}

type sitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	URLs    []sitemapLoc `xml:"url"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// Discover fetches the base URL's sitemap and returns an ordered,
// de-duplicated, capped list of documentation-looking URLs. A missing
// sitemap is an error so callers can fall back to search discovery.
func (d *SitemapDiscoverer) Discover(ctx context.Context, baseURL string) ([]string, llm.Usage, error) {
	var usage llm.Usage

	root, err := sitemapURL(baseURL)
	if err != nil {
		return nil, usage, err
	}

	var all []string
	if err := d.walk(ctx, root, 0, &all); err != nil {
		return nil, usage, err
	}

	urls := filterDocURLs(all)
	if len(urls) > d.maxURLs {
		urls = urls[:d.maxURLs]
	}

	slog.Info("sitemap discovery finished", "base_url", baseURL, "raw", len(all), "kept", len(urls))
	return urls, usage, nil
}

func (d *SitemapDiscoverer) walk(ctx context.Context, loc string, depth int, out *[]string) error {
	if depth > maxSitemapDepth {
		return nil
	}

	body, err := d.fetch(ctx, loc)
	if err != nil {
		if depth == 0 {
			return err
		}
		// A broken nested sitemap does not abort the whole walk.
		slog.Warn("skipping unreachable nested sitemap", "url", loc, "error", err)
		return nil
	}

	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
		for _, sm := range index.Sitemaps {
			if err := d.walk(ctx, strings.TrimSpace(sm.Loc), depth+1, out); err != nil {
				return err
			}
		}
		return nil
	}

	var set urlSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return fmt.Errorf("parse sitemap %s: %w", loc, err)
	}
	for _, u := range set.URLs {
		if loc := strings.TrimSpace(u.Loc); loc != "" {
			*out = append(*out, loc)
		}
	}
	return nil
}

func (d *SitemapDiscoverer) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("sitemap request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch sitemap %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read sitemap %s: %w", rawURL, err)
	}
	return body, nil
}

func sitemapURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("base URL %q missing scheme or host", baseURL)
	}
	if strings.HasSuffix(u.Path, ".xml") {
		return baseURL, nil
	}
	u.Path = "/sitemap.xml"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// filterDocURLs drops non-English locales, keeps documentation-looking
// paths, and de-duplicates preserving discovery order.
func filterDocURLs(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	var out []string
	for _, raw := range urls {
		lower := strings.ToLower(raw)
		if seen[lower] {
			continue
		}
		seen[lower] = true

		if nonEnglishPath.MatchString(lower) {
			continue
		}
		if !looksLikeDocs(lower) {
			continue
		}
		out = append(out, raw)
	}
	return out
}

func looksLikeDocs(lowerURL string) bool {
	for _, kw := range docsKeywords {
		if strings.Contains(lowerURL, kw) {
			return true
		}
	}
	return false
}
