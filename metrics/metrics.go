// Package metrics tracks the running counters of a crawl and exposes
// them both as a periodic human-readable log line and, optionally, as
// Prometheus metrics.
package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const nanosPerSecond = float64(time.Second)

// Counters holds the lock-free counters of a single crawl run.
type Counters struct {
	Total     atomic.Uint64
	Tunnel    atomic.Uint64
	Proxy     atomic.Uint64
	Failed    atomic.Uint64
	Success   atomic.Uint64
	TotalLeft atomic.Int64

	bytesTransferred atomic.Uint64
	fetchNanos       atomic.Uint64

	lastActivity atomic.Int64 // unix nanos

	clock     clock.Clock
	startedAt time.Time

	promTotal   prometheus.Counter
	promTunnel  prometheus.Counter
	promProxy   prometheus.Counter
	promFailed  prometheus.Counter
	promSuccess prometheus.Counter
}

// New creates a Counters tracker. clk is used for both the activity
// watchdog and the elapsed-time rate calculation, so tests can drive it
// without sleeping.
func New(clk clock.Clock) *Counters {
	c := &Counters{
		clock:     clk,
		startedAt: clk.Now(),
		promTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "genesis_requests_total",
			Help: "Total number of fetch attempts.",
		}),
		promTunnel: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "genesis_requests_tunnel_total",
			Help: "Fetch attempts served via the tunnel.",
		}),
		promProxy: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "genesis_requests_proxy_total",
			Help: "Fetch attempts served via a proxy fallback.",
		}),
		promFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "genesis_requests_failed_total",
			Help: "Fetch attempts that failed entirely.",
		}),
		promSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "genesis_requests_success_total",
			Help: "Fetch attempts that succeeded.",
		}),
	}
	c.lastActivity.Store(clk.Now().UnixNano())
	return c
}

// Register registers the Prometheus collectors on reg.
func (c *Counters) Register(reg *prometheus.Registry) {
	reg.MustRegister(c.promTotal, c.promTunnel, c.promProxy, c.promFailed, c.promSuccess)
}

// MarkTunnel records a tunnel-served attempt.
func (c *Counters) MarkTunnel() {
	c.Total.Add(1)
	c.Tunnel.Add(1)
	c.promTotal.Inc()
	c.promTunnel.Inc()
	c.touch()
}

// MarkProxy records a proxy-served fallback attempt. Total only counts
// tunnel attempts (it stays equal to Tunnel); a proxy fallback is not a
// new attempt against the tunnel, so it does not inflate Total.
func (c *Counters) MarkProxy() {
	c.Proxy.Add(1)
	c.promProxy.Inc()
	c.touch()
}

// MarkSuccess records a successful fetch: success increments and
// total_left decrements together, the same success-path pairing the
// source implementation uses.
func (c *Counters) MarkSuccess() {
	c.Success.Add(1)
	c.TotalLeft.Add(-1)
	c.promSuccess.Inc()
	c.touch()
}

// MarkFailed records a failed fetch.
func (c *Counters) MarkFailed() {
	c.Failed.Add(1)
	c.promFailed.Inc()
	c.touch()
}

// IncTotalLeft records a newly enqueued URL, incrementing the
// outstanding-URL gauge.
func (c *Counters) IncTotalLeft() {
	c.TotalLeft.Add(1)
}

// MarkThroughput folds one fetch's measured transfer rate and elapsed time
// (their product approximating the bytes read) into the run's cumulative
// average transfer rate.
func (c *Counters) MarkThroughput(bytesPerSec float64, elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	c.bytesTransferred.Add(uint64(bytesPerSec * elapsed.Seconds()))
	c.fetchNanos.Add(uint64(elapsed.Nanoseconds()))
}

// throughput returns the cumulative average bytes/sec across every fetch
// recorded via MarkThroughput.
func (c *Counters) throughput() float64 {
	nanos := c.fetchNanos.Load()
	if nanos == 0 {
		return 0
	}
	return float64(c.bytesTransferred.Load()) / (float64(nanos) / nanosPerSecond)
}

func (c *Counters) touch() {
	c.lastActivity.Store(c.clock.Now().UnixNano())
}

// IdleFor returns how long it has been since the last recorded activity.
func (c *Counters) IdleFor() time.Duration {
	last := time.Unix(0, c.lastActivity.Load())
	return c.clock.Now().Sub(last)
}

// Line renders the periodic plain-text metrics log line.
func (c *Counters) Line() string {
	elapsed := c.clock.Now().Sub(c.startedAt).Seconds()
	total := c.Total.Load()
	proxy := c.Proxy.Load()

	tpRate := 0.0
	if proxy > 0 {
		tpRate = float64(c.Tunnel.Load()) / float64(proxy)
	}

	rate := 0.0
	if elapsed > 0 {
		rate = float64(total) / elapsed
	}

	return fmt.Sprintf(
		"[Metrics] Total: %s, Success: %s, Tunnel: %s, Proxy: %s, T-P Rate: %.2f, Failed: %s, Left: %s, Rate: %.2f req/sec, Throughput: %s/s",
		humanize.Comma(int64(total)),
		humanize.Comma(int64(c.Success.Load())),
		humanize.Comma(int64(c.Tunnel.Load())),
		humanize.Comma(int64(proxy)),
		tpRate,
		humanize.Comma(int64(c.Failed.Load())),
		humanize.Comma(c.TotalLeft.Load()),
		rate,
		humanize.Bytes(uint64(c.throughput())),
	)
}

// Summary renders the one-line final-run report.
func (c *Counters) Summary() string {
	elapsed := c.clock.Now().Sub(c.startedAt).Seconds()
	total := c.Total.Load()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(total) / elapsed
	}
	return fmt.Sprintf("Processed %s pages in %.1fs (%.2f/sec)", humanize.Comma(int64(total)), elapsed, rate)
}

// ServeHTTP starts a Prometheus /metrics endpoint listening on addr. It
// blocks, so callers run it in its own goroutine; a non-nil error other
// than http.ErrServerClosed indicates the listener failed.
func ServeHTTP(addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}
	return server.ListenAndServe()
}
