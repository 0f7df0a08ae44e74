// Package extractor turns a fetched HTML document into the record the
// persistence batcher stores and the new links the scheduler enqueues.
package extractor

import (
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ignoredExtensions lists file extensions that are never worth following
// as crawl targets.
var ignoredExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".svg", ".pdf",
	".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".zip", ".rar",
	".tar", ".gz", ".mp3", ".mp4", ".avi", ".mov",
}

// blockedSubstrings lists host+path+query substrings that mark a link as
// not worth following even when it carries no recognizable extension:
// download/streaming endpoints, static asset mounts, arXiv's non-HTML
// mirrors, and syndication feeds.
var blockedSubstrings = []string{
	"/download/", "/compress/", "/stream/", "/pdf/", "/static/",
	"/content/uploads/", "arxiv.org/pdf/", "arxiv.org/ps/", "arxiv.org/src/",
	".pdf?", "/lectures/", "/video/", "/audio/",
	"/rss", ".rss", "/feed", "/atom",
}

// MetaTag is a single <meta name="..."|property="..." content="..."> pair.
type MetaTag struct {
	Name    string
	Content string
}

// Result is everything extracted from one HTML document in a single pass.
type Result struct {
	Links        []*url.URL
	Language     string
	Title        string
	MetaTags     []MetaTag
	CanonicalURL string
	ContentText  string
}

// Extract parses r as HTML rooted at baseURL and returns the full record
// plus the outbound links worth following.
func Extract(baseURL string, r io.Reader) (*Result, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	result := &Result{}

	if lang, ok := doc.Find("html").Attr("lang"); ok {
		result.Language = lang
	}
	result.Title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("meta[name], meta[property]").Each(func(_ int, sel *goquery.Selection) {
		name, ok := sel.Attr("name")
		if !ok {
			name, _ = sel.Attr("property")
		}
		content, ok := sel.Attr("content")
		if !ok {
			return
		}
		result.MetaTags = append(result.MetaTags, MetaTag{Name: name, Content: content})
	})

	if canonical, ok := doc.Find("link[rel='canonical']").Attr("href"); ok {
		result.CanonicalURL = canonical
	}

	result.ContentText = extractContentText(doc)
	result.Links = extractLinks(doc, base)

	return result, nil
}

// extractContentText joins the trimmed text of every heading/paragraph/
// list-item element, space-separated, skipping empty nodes.
func extractContentText(doc *goquery.Document) string {
	var parts []string
	doc.Find("h1, h2, h3, h4, h5, h6, p, li").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, " ")
}

// extractLinks resolves every <a href> against base, drops fragments,
// keeps only http/https targets, and filters out ignored file types. A
// seen-set within the call dedupes repeated hrefs in the same document.
func extractLinks(doc *goquery.Document, base *url.URL) []*url.URL {
	seen := make(map[string]bool)
	var links []*url.URL

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		resolved, ok := resolve(base, href)
		if !ok {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		if isIgnoredPath(resolved) {
			return
		}
		key := resolved.String()
		if seen[key] {
			return
		}
		seen[key] = true
		links = append(links, resolved)
	})

	return links
}

// resolve joins a possibly relative href against base, stripping any
// fragment.
func resolve(base *url.URL, href string) (*url.URL, bool) {
	u, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	resolved := base.ResolveReference(u)
	resolved.Fragment = ""
	return resolved, true
}

// isIgnoredPath reports whether resolved ends with one of the ignored
// extensions, or its host+path+query contains one of the blocked
// substrings, case-insensitively. Extension matching is scoped to the
// path alone; substring matching spans host and query too, since some
// blocked patterns (arxiv.org/pdf/, .pdf?) straddle those boundaries.
func isIgnoredPath(resolved *url.URL) bool {
	lowerPath := strings.ToLower(resolved.Path)
	for _, ext := range ignoredExtensions {
		if strings.HasSuffix(lowerPath, ext) {
			return true
		}
	}

	full := strings.ToLower(resolved.Host + resolved.Path)
	if resolved.RawQuery != "" {
		full += "?" + strings.ToLower(resolved.RawQuery)
	}
	for _, substr := range blockedSubstrings {
		if strings.Contains(full, substr) {
			return true
		}
	}
	return false
}
