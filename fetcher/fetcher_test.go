package fetcher

import (
	"testing"
)

func TestNormalizeURLAddsScheme(t *testing.T) {
	got, err := NormalizeURL("example.com/path")
	if err != nil {
		t.Fatalf("NormalizeURL: %v", err)
	}
	if got != "http://example.com/path" {
		t.Fatalf("expected http:// prefix added, got %q", got)
	}
}

func TestNormalizeURLKeepsExistingScheme(t *testing.T) {
	got, err := NormalizeURL("https://example.com/path")
	if err != nil {
		t.Fatalf("NormalizeURL: %v", err)
	}
	if got != "https://example.com/path" {
		t.Fatalf("expected scheme preserved, got %q", got)
	}
}

func TestIsCloudflareError(t *testing.T) {
	if !isCloudflareError("Error 1101: Cloudflare: Worker threw exception") {
		t.Fatal("expected a Cloudflare error to be detected")
	}
	if isCloudflareError("plain old html") {
		t.Fatal("expected ordinary content to not be classified as a Cloudflare error")
	}
}
