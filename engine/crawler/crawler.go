// Package crawler fetches documentation pages and feeds them through the
// ingest pipeline. Fetch concurrency is bounded; per-URL failures are
// logged and counted, never fatal — partial failure is the expected steady
// state over a flaky network.
package crawler

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mapwright/tiledocs/engine/docgraph"
	"github.com/mapwright/tiledocs/engine/domain"
	"github.com/mapwright/tiledocs/pkg/fn"
)

// Options configures a crawl run.
type Options struct {
	// MaxConcurrent bounds simultaneous page fetches.
	MaxConcurrent int
	// FollowLinks enables frontier expansion from discovered links.
	FollowLinks bool
	// MaxDepth bounds link-following; 0 means seeds only.
	MaxDepth int
	// AllowedPrefixes restricts discovered links to the documentation
	// roots. Seeds are always crawled.
	AllowedPrefixes []string
}

// Crawler orchestrates fetching and indexing.
type Crawler struct {
	fetcher  Fetcher
	pipeline fn.Stage[domain.Page, string]
	graph    *docgraph.Store // optional; nil disables link-graph recording
	opts     Options
	logger   *slog.Logger
}

// New creates a Crawler. graph may be nil.
func New(fetcher Fetcher, pipeline fn.Stage[domain.Page, string], graph *docgraph.Store, opts Options, logger *slog.Logger) *Crawler {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{fetcher: fetcher, pipeline: pipeline, graph: graph, opts: opts, logger: logger}
}

type outcome struct {
	ok    bool
	links []string
}

// Crawl fetches and indexes every URL in the set, following links up to
// MaxDepth when enabled. It returns how many pages indexed successfully and
// how many failed.
func (c *Crawler) Crawl(ctx context.Context, urls []string) (succeeded, failed int) {
	frontier := fn.Unique(urls)
	visited := make(map[string]struct{})

	for depth := 0; len(frontier) > 0; depth++ {
		var pending []string
		for _, u := range frontier {
			if _, ok := visited[u]; !ok {
				visited[u] = struct{}{}
				pending = append(pending, u)
			}
		}
		if len(pending) == 0 {
			break
		}

		c.logger.Info("crawl wave", "depth", depth, "pages", len(pending))
		outcomes := fn.ParMap(pending, c.opts.MaxConcurrent, func(u string) outcome {
			return c.crawlOne(ctx, u)
		})

		var next []string
		for _, o := range outcomes {
			if o.ok {
				succeeded++
			} else {
				failed++
			}
			next = append(next, o.links...)
		}

		if !c.opts.FollowLinks || depth >= c.opts.MaxDepth {
			break
		}
		frontier = fn.Filter(fn.Unique(next), c.allowed)
	}
	return succeeded, failed
}

// crawlOne fetches one page, records it in the link graph, and runs the
// ingest pipeline on it.
func (c *Crawler) crawlOne(ctx context.Context, url string) outcome {
	res, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		c.logger.Warn("fetch failed", "url", url, "err", err)
		return outcome{}
	}

	page := domain.Page{URL: url, Content: res.Text, FetchedAt: time.Now().UTC()}

	if c.graph != nil {
		if err := c.graph.SavePage(ctx, docgraph.PageNode{URL: url, CrawledAt: page.FetchedAt}); err != nil {
			c.logger.Warn("link graph save page failed", "url", url, "err", err)
		} else if err := c.graph.SaveLinks(ctx, url, fn.Filter(res.Links, c.allowed)); err != nil {
			c.logger.Warn("link graph save links failed", "url", url, "err", err)
		}
	}

	result := c.pipeline(ctx, page)
	if result.IsErr() {
		_, err := result.Unwrap()
		c.logger.Warn("index failed", "url", url, "err", err)
		return outcome{links: res.Links}
	}
	return outcome{ok: true, links: res.Links}
}

func (c *Crawler) allowed(u string) bool {
	if len(c.opts.AllowedPrefixes) == 0 {
		return false
	}
	for _, p := range c.opts.AllowedPrefixes {
		if strings.HasPrefix(u, p) {
			return true
		}
	}
	return false
}
