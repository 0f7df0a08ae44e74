// Package fetcher implements the two-stage fetch: a tunnel request first,
// falling back to a rotating proxy when the tunnel is blocked or
// exhausted.
package fetcher

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/rehttp"
	"github.com/aybabtme/iocontrol"

	"github.com/tunnelcrawl/genesis/fingerprint"
	"github.com/tunnelcrawl/genesis/metrics"
	"github.com/tunnelcrawl/genesis/proxy"
)

// Result is the outcome of a successful fetch: the response body, the
// method that served it, and the measured throughput of the download.
type Result struct {
	Body           string
	Method         string // "TUNNEL" or "PROXY"
	Elapsed        time.Duration
	BytesPerSecond float64
}

// Pipeline fetches a URL first through a tunnel endpoint, making up to
// MaxTunnelRetries tunnel attempts in total, then falls back to the proxy
// pool.
type Pipeline struct {
	TunnelURL        string
	MaxTunnelRetries int
	Proxies          *proxy.Pool
	Metrics          *metrics.Counters
	tunnelClient     *http.Client
}

// New builds a Pipeline. timeout bounds every individual tunnel HTTP call;
// proxy calls use the timeout their pool's clients were built with.
// skipVerify controls whether the tunnel client verifies the
// tunnel endpoint's TLS certificate.
func New(tunnelURL string, maxTunnelRetries int, proxies *proxy.Pool, counters *metrics.Counters, timeout time.Duration, skipVerify bool) *Pipeline {
	transport := rehttp.NewTransport(
		&http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: skipVerify}},
		rehttp.RetryAll(rehttp.RetryMaxRetries(2), rehttp.RetryTemporaryErr()),
		rehttp.ExpJitterDelay(1, 10*time.Second),
	)
	return &Pipeline{
		TunnelURL:        tunnelURL,
		MaxTunnelRetries: maxTunnelRetries,
		Proxies:          proxies,
		Metrics:          counters,
		tunnelClient:     &http.Client{Timeout: timeout, Transport: transport},
	}
}

// Fetch retrieves targetURL, trying the tunnel first and falling back to
// a proxy from the pool. It returns the normalized base URL the page was
// actually fetched from, alongside the Result.
func (p *Pipeline) Fetch(targetURL string) (string, *Result, error) {
	baseURL, err := NormalizeURL(targetURL)
	if err != nil {
		return "", nil, fmt.Errorf("normalize %s: %w", targetURL, err)
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxTunnelRetries; attempt++ {
		body, elapsed, rate, err := p.tryTunnel(targetURL)
		if err == nil {
			p.Metrics.MarkSuccess()
			return baseURL, &Result{Body: body, Method: "TUNNEL", Elapsed: elapsed, BytesPerSecond: rate}, nil
		}
		lastErr = err
	}

	p.Metrics.MarkProxy()
	body, elapsed, rate, err := p.tryProxy(baseURL, targetURL)
	if err != nil {
		p.Metrics.MarkFailed()
		return baseURL, nil, fmt.Errorf("fetch %s: tunnel failed (%v), proxy failed: %w", targetURL, lastErr, err)
	}

	p.Metrics.MarkSuccess()
	return baseURL, &Result{Body: body, Method: "PROXY", Elapsed: elapsed, BytesPerSecond: rate}, nil
}

// tryTunnel issues a single tunnel attempt, composing the tunnel URL as
// <TunnelURL><scheme>:/<rest of targetURL>, and classifying 403/Cloudflare
// responses as failures.
func (p *Pipeline) tryTunnel(targetURL string) (string, time.Duration, float64, error) {
	p.Metrics.MarkTunnel()

	normalized := targetURL
	if !strings.Contains(normalized, "://") {
		normalized = "http://" + normalized
	}

	parts := strings.SplitN(normalized, "://", 2)
	if len(parts) != 2 {
		return "", 0, 0, fmt.Errorf("invalid URL format: %s", targetURL)
	}
	scheme, rest := parts[0], parts[1]
	tunnelURL := fmt.Sprintf("%s%s:/%s", p.TunnelURL, scheme, rest)

	start := time.Now()
	resp, err := p.tunnelClient.Get(tunnelURL)
	if err != nil {
		return "", time.Since(start), 0, err
	}
	defer resp.Body.Close()

	body, rate, err := readMetered(resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		return "", elapsed, 0, err
	}

	if resp.StatusCode == http.StatusForbidden || strings.Contains(body, "403 Forbidden") {
		return "", elapsed, rate, fmt.Errorf("403 Forbidden")
	}
	if isCloudflareError(body) {
		return "", elapsed, rate, fmt.Errorf("cloudflare error in response content")
	}

	return body, elapsed, rate, nil
}

// tryProxy fetches baseURL through the next proxy in the pool, setting
// the fingerprint-derived User-Agent and Referer headers.
func (p *Pipeline) tryProxy(baseURL, originalURL string) (string, time.Duration, float64, error) {
	proxyHandle, ok := p.Proxies.Next()
	if !ok {
		return "", 0, 0, fmt.Errorf("no proxy available")
	}

	fp := fingerprint.Generate(proxyHandle.IP, originalURL)

	req, err := http.NewRequest(http.MethodGet, baseURL, nil)
	if err != nil {
		return "", 0, 0, err
	}
	req.Header.Set("User-Agent", fp.UserAgent)
	if fp.Referer != "" {
		req.Header.Set("Referer", fp.Referer)
	} else {
		req.Header.Set("Referer", baseURL)
	}

	start := time.Now()
	resp, err := proxyHandle.Client.Do(req)
	if err != nil {
		return "", time.Since(start), 0, err
	}
	defer resp.Body.Close()

	body, rate, err := readMetered(resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		return "", elapsed, 0, err
	}

	if resp.StatusCode == http.StatusForbidden || strings.Contains(body, "403 Forbidden") {
		return "", elapsed, rate, fmt.Errorf("403 Forbidden")
	}

	return body, elapsed, rate, nil
}

// readMetered reads r fully while sampling throughput through an
// iocontrol measured reader, returning the body and the observed
// bytes/sec. The rate is folded into the periodic metrics line by the
// caller via metrics.Counters.MarkThroughput.
func readMetered(r io.Reader) (string, float64, error) {
	measured := iocontrol.NewMeasuredReader(r)
	body, err := io.ReadAll(measured)
	if err != nil {
		return "", 0, err
	}
	return string(body), measured.BytesPerSec(), nil
}

// NormalizeURL prefixes rawURL with http:// if it has no scheme, matching
// the source implementation's tolerance for bare host/path seeds.
func NormalizeURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" {
		parsed, err = url.Parse("http://" + rawURL)
		if err != nil {
			return "", err
		}
	}
	return parsed.String(), nil
}

// isCloudflareError matches the tunnel's way of reporting a Cloudflare
// Worker exception inline in a 200 response body.
func isCloudflareError(body string) bool {
	return strings.Contains(body, "Cloudflare") && strings.Contains(body, "Worker threw exception")
}
