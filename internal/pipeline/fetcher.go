package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kiffhq/kiff/pkg/textextract"
)

// pageContent is one fetched and text-extracted documentation page.
type pageContent struct {
	URL    string
	Format string
	Text   string
	Size   int
}

// contentFetcher downloads pages with bounded concurrency and per-URL
// timeouts. Individual failures are logged and skipped; a slow URL must
// never stall the whole run.
type contentFetcher struct {
	client      *http.Client
	concurrency int
}

func newContentFetcher(timeout time.Duration, concurrency int) *contentFetcher {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &contentFetcher{
		client:      &http.Client{Timeout: timeout},
		concurrency: concurrency,
	}
}

// fetchAll returns successfully fetched pages in input order, plus the
// count of failures. It only errors when the context is cancelled.
func (f *contentFetcher) fetchAll(ctx context.Context, urls []string) ([]pageContent, int, error) {
	pages := make([]*pageContent, len(urls))
	var failed int
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	for i, u := range urls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			page, err := f.fetchOne(gctx, u)
			if err != nil {
				slog.Warn("skipping unfetchable URL", "url", u, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			pages[i] = page
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, failed, err
	}

	out := make([]pageContent, 0, len(urls))
	for _, p := range pages {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, failed, nil
}

func (f *contentFetcher) fetchOne(ctx context.Context, rawURL string) (*pageContent, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "kiff-indexer/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	extracted, err := textextract.Extract(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	if len(extracted.Content) == 0 {
		return nil, fmt.Errorf("no text content")
	}

	return &pageContent{
		URL:    rawURL,
		Format: extracted.Format,
		Text:   extracted.Content,
		Size:   len(body),
	}, nil
}
