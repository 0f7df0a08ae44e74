// Package proxy manages the pool of outbound proxies a crawl fetches
// through, each exposed as a ready-to-use *http.Client.
package proxy

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/rehttp"
)

// Proxy is a single entry of the proxy pool: an address, its parsed IP
// (used to seed the fingerprint generator) and a dedicated HTTP client.
type Proxy struct {
	Addr     string
	IP       net.IP
	Username string
	Password string
	Client   *http.Client
}

// Pool is a round-robin collection of Proxies.
type Pool struct {
	proxies []Proxy
	current atomic.Uint64
}

// NewFromFile loads a pool from a line-oriented file of
// "host:port:user:pass" entries, the same format the source implementation
// reads. Malformed lines (wrong field count) are skipped; a line with an
// unparseable IP falls back to 0.0.0.0 rather than being dropped, matching
// the source's tolerance for bad proxy lists.
func NewFromFile(path string, timeout time.Duration) (*Pool, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open proxy file: %w", err)
	}
	defer file.Close()

	var proxies []Proxy
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) != 4 {
			continue
		}

		host, port, user, pass := parts[0], parts[1], parts[2], parts[3]
		ip := net.ParseIP(host)
		if ip == nil {
			ip = net.ParseIP("0.0.0.0")
		}

		addr := fmt.Sprintf("http://%s:%s", host, port)
		client, err := newProxyClient(addr, user, pass, timeout)
		if err != nil {
			return nil, fmt.Errorf("build client for proxy %s: %w", addr, err)
		}

		proxies = append(proxies, Proxy{
			Addr:     addr,
			IP:       ip,
			Username: user,
			Password: pass,
			Client:   client,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read proxy file: %w", err)
	}

	return &Pool{proxies: proxies}, nil
}

// newProxyClient builds an http.Client that tunnels through the given
// proxy address with basic auth, wrapped in the same rehttp retry/backoff
// transport the tunnel client uses.
func newProxyClient(addr, user, pass string, timeout time.Duration) (*http.Client, error) {
	proxyURL, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}
	proxyURL.User = url.UserPassword(user, pass)

	transport := rehttp.NewTransport(
		&http.Transport{
			Proxy:           http.ProxyURL(proxyURL),
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
		rehttp.RetryAll(rehttp.RetryMaxRetries(2), rehttp.RetryTemporaryErr()),
		rehttp.ExpJitterDelay(1, 10*time.Second),
	)

	return &http.Client{Timeout: timeout, Transport: transport}, nil
}

// Len returns the number of proxies in the pool.
func (p *Pool) Len() int {
	return len(p.proxies)
}

// Next returns the next proxy in round-robin order, or false if the pool
// is empty.
func (p *Pool) Next() (Proxy, bool) {
	if len(p.proxies) == 0 {
		return Proxy{}, false
	}
	idx := p.current.Add(1) - 1
	return p.proxies[idx%uint64(len(p.proxies))], true
}
