package crawler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// FetchResult is one fetched page: its extracted text and the documentation
// links found on it.
type FetchResult struct {
	Text  string
	Links []string
}

// Fetcher retrieves a page and extracts its text. Implementations may be
// plain HTTP or a headless browser; the crawler does not care.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// HTTPFetcher fetches pages over plain HTTP with a shared politeness rate
// limit across all requests.
type HTTPFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	agent   string
}

// NewHTTPFetcher creates a fetcher limited to reqPerSec requests per second.
func NewHTTPFetcher(reqPerSec float64, burst int) *HTTPFetcher {
	if reqPerSec <= 0 {
		reqPerSec = 2
	}
	if burst <= 0 {
		burst = 1
	}
	return &HTTPFetcher{
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(reqPerSec), burst),
		agent:   "tiledocs-crawler/1.0",
	}
}

// Fetch downloads a page, waits on the rate limiter first.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (FetchResult, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return FetchResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{}, err
	}
	req.Header.Set("User-Agent", f.agent)

	resp, err := f.client.Do(req)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return FetchResult{}, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	text, links, err := ExtractPage(resp.Body, url)
	if err != nil {
		return FetchResult{}, fmt.Errorf("extract %s: %w", url, err)
	}
	return FetchResult{Text: text, Links: links}, nil
}
