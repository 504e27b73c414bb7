// Package docgraph stores the documentation link graph in Neo4j: one node
// per crawled page, one LINKS_TO edge per hyperlink between pages. The
// crawler records the graph during discovery; retrieval uses it to surface
// pages related to the ones a query matched.
package docgraph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// PageNode is a documentation page in the link graph.
type PageNode struct {
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	CrawledAt time.Time `json:"crawled_at"`
}

// Store provides link-graph operations.
type Store struct {
	driver neo4j.DriverWithContext
}

// New creates a Store on the given driver.
func New(driver neo4j.DriverWithContext) *Store {
	return &Store{driver: driver}
}

// SavePage creates or updates a page node.
func (s *Store) SavePage(ctx context.Context, p PageNode) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MERGE (p:Page {url: $url}) SET p.title = $title, p.crawled_at = $crawledAt`
	_, err := sess.Run(ctx, cypher, map[string]any{
		"url":       p.URL,
		"title":     p.Title,
		"crawledAt": p.CrawledAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("docgraph: save page %s: %w", p.URL, err)
	}
	return nil
}

// SaveLinks records outgoing links from one page in a single transaction.
// Target nodes are created as stubs if not yet crawled.
func (s *Store) SaveLinks(ctx context.Context, from string, tos []string) error {
	if len(tos) == 0 {
		return nil
	}
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cypher := `MATCH (a:Page {url: $from})
			MERGE (b:Page {url: $to})
			MERGE (a)-[:LINKS_TO]->(b)`
		for _, to := range tos {
			if to == from {
				continue
			}
			if _, err := tx.Run(ctx, cypher, map[string]any{"from": from, "to": to}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("docgraph: save links from %s: %w", from, err)
	}
	return nil
}

// RelatedPages returns pages within depth link hops of the given URL,
// capped at limit.
func (s *Store) RelatedPages(ctx context.Context, url string, depth, limit int) ([]PageNode, error) {
	if depth <= 0 {
		depth = 1
	}
	if limit <= 0 {
		limit = 10
	}
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(
		`MATCH (start:Page {url: $url})-[:LINKS_TO*1..%d]-(n:Page)
		 WHERE n.url <> $url
		 RETURN DISTINCT n LIMIT %d`, depth, limit)
	result, err := sess.Run(ctx, cypher, map[string]any{"url": url})
	if err != nil {
		return nil, fmt.Errorf("docgraph: related pages %s: %w", url, err)
	}

	var pages []PageNode
	for result.Next(ctx) {
		raw, ok := result.Record().Get("n")
		if !ok {
			continue
		}
		node, ok := raw.(neo4j.Node)
		if !ok {
			continue
		}
		pages = append(pages, pageFromProps(node.Props))
	}
	return pages, result.Err()
}

// RelatedURLs is RelatedPages reduced to the URLs, for callers that only
// need pointers to neighboring pages.
func (s *Store) RelatedURLs(ctx context.Context, url string, depth, limit int) ([]string, error) {
	pages, err := s.RelatedPages(ctx, url, depth, limit)
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(pages))
	for _, p := range pages {
		urls = append(urls, p.URL)
	}
	return urls, nil
}

func pageFromProps(props map[string]any) PageNode {
	p := PageNode{}
	if v, ok := props["url"].(string); ok {
		p.URL = v
	}
	if v, ok := props["title"].(string); ok {
		p.Title = v
	}
	if v, ok := props["crawled_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			p.CrawledAt = t
		}
	}
	return p
}
