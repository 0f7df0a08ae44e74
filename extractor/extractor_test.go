package extractor

import (
	"strings"
	"testing"
)

const sampleHTML = `
<html lang="en">
<head>
	<title>Example Domain</title>
	<meta name="description" content="an example page">
	<meta property="og:title" content="Example OG Title">
	<link rel="canonical" href="https://example.com/canonical">
</head>
<body>
	<h1>Heading</h1>
	<p>Some paragraph text.</p>
	<li>A list item</li>
	<a href="/relative/page">relative</a>
	<a href="https://other.com/page#fragment">fragment</a>
	<a href="/image.JPG">image</a>
	<a href="ftp://example.com/file">ftp</a>
	<a href="/relative/page">duplicate</a>
</body>
</html>
`

func TestExtractBasicFields(t *testing.T) {
	result, err := Extract("https://example.com/", strings.NewReader(sampleHTML))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if result.Language != "en" {
		t.Fatalf("expected language 'en', got %q", result.Language)
	}
	if result.Title != "Example Domain" {
		t.Fatalf("expected title 'Example Domain', got %q", result.Title)
	}
	if result.CanonicalURL != "https://example.com/canonical" {
		t.Fatalf("expected canonical URL to stay raw, got %q", result.CanonicalURL)
	}
}

func TestExtractMetaTags(t *testing.T) {
	result, err := Extract("https://example.com/", strings.NewReader(sampleHTML))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(result.MetaTags) != 2 {
		t.Fatalf("expected 2 meta tags, got %d", len(result.MetaTags))
	}
	foundProperty := false
	for _, tag := range result.MetaTags {
		if tag.Name == "og:title" && tag.Content == "Example OG Title" {
			foundProperty = true
		}
	}
	if !foundProperty {
		t.Fatal("expected a meta tag read from a property attribute")
	}
}

func TestExtractContentText(t *testing.T) {
	result, err := Extract("https://example.com/", strings.NewReader(sampleHTML))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(result.ContentText, "Heading") || !strings.Contains(result.ContentText, "Some paragraph text.") {
		t.Fatalf("expected content text to include heading and paragraph text, got %q", result.ContentText)
	}
}

func TestExtractLinksResolvesAndFilters(t *testing.T) {
	result, err := Extract("https://example.com/", strings.NewReader(sampleHTML))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	var urls []string
	for _, l := range result.Links {
		urls = append(urls, l.String())
	}

	if !contains(urls, "https://example.com/relative/page") {
		t.Fatalf("expected relative link resolved against base, got %v", urls)
	}
	if !contains(urls, "https://other.com/page") {
		t.Fatalf("expected fragment stripped from absolute link, got %v", urls)
	}
	if contains(urls, "https://example.com/image.JPG") {
		t.Fatalf("expected ignored image extension to be filtered, got %v", urls)
	}
	for _, u := range urls {
		if strings.HasPrefix(u, "ftp://") {
			t.Fatalf("expected non-http(s) scheme to be filtered, got %v", urls)
		}
	}

	count := 0
	for _, u := range urls {
		if u == "https://example.com/relative/page" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected duplicate href to be deduped, got %d occurrences", count)
	}
}

func TestExtractLinksFiltersBlockedSubstrings(t *testing.T) {
	html := `
<html><body>
<a href="http://x.test/feed">feed</a>
<a href="http://x.test/download/a">download</a>
<a href="http://arxiv.org/pdf/1234.5678">arxiv pdf</a>
<a href="http://x.test/report.pdf?download=1">pdf with query</a>
<a href="http://x.test/normal/page">normal</a>
</body></html>
`
	result, err := Extract("http://x.test/", strings.NewReader(html))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	var urls []string
	for _, l := range result.Links {
		urls = append(urls, l.String())
	}

	if !contains(urls, "http://x.test/normal/page") {
		t.Fatalf("expected normal link to survive, got %v", urls)
	}
	for _, blocked := range []string{
		"http://x.test/feed",
		"http://x.test/download/a",
		"http://arxiv.org/pdf/1234.5678",
		"http://x.test/report.pdf?download=1",
	} {
		if contains(urls, blocked) {
			t.Fatalf("expected %q to be filtered as a blocked substring, got %v", blocked, urls)
		}
	}
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
