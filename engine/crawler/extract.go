package crawler

import (
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractPage parses an HTML page, returning its main content as plain text
// (code blocks preserved inside fences so the chunker can respect them) and
// every absolute hyperlink found on the page.
func ExtractPage(r io.Reader, pageURL string) (string, []string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", nil, err
	}

	links := extractLinks(doc, pageURL)

	// Prefer the page's main-content container over the full body.
	content := doc.Find(`div[role="main"]`).First()
	if content.Length() == 0 {
		content = doc.Find("main, article").First()
	}
	if content.Length() == 0 {
		content = doc.Find("body").First()
	}

	content.Find("script, style, nav, header, footer").Remove()

	// Fence code blocks so chunk boundaries keep them intact.
	content.Find("pre").Each(func(_ int, s *goquery.Selection) {
		s.SetText("\n```\n" + strings.TrimRight(s.Text(), "\n") + "\n```\n")
	})

	var b strings.Builder
	content.Find("h1, h2, h3, h4, h5, h6, p, li, pre, td, dt, dd").Each(func(_ int, s *goquery.Selection) {
		// Skip elements that only wrap other extracted elements.
		if s.Children().Is("p, li, pre") {
			return
		}
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	})

	text := strings.TrimSpace(b.String())
	if text == "" {
		text = strings.TrimSpace(content.Text())
	}
	return text, links, nil
}

// extractLinks resolves every anchor on the page to an absolute URL with
// the fragment stripped.
func extractLinks(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""
		u := abs.String()
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		links = append(links, u)
	})
	return links
}
