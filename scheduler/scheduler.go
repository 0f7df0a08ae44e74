// Package scheduler buffers discovered URLs into per-host FIFO queues
// and drains them in round-robin order, so no single domain can starve
// the others out of a batch.
package scheduler

import (
	"fmt"
	"math/rand"
	"net/url"
	"time"

	"github.com/benbjohnson/clock"
)

// DomainQueues holds one FIFO queue of pending URLs per host, plus the
// insertion order of hosts used to round-robin between them.
//
// Not safe for concurrent use: a single goroutine owns it, driven by an
// event loop that serializes Add/CollectBatch calls.
type DomainQueues struct {
	queues map[string][]string
	order  []string
	total  int
}

// New creates an empty DomainQueues.
func New() *DomainQueues {
	return &DomainQueues{queues: make(map[string][]string)}
}

// Add enqueues rawURL under its host. The first URL seen for a host
// appends that host to the round-robin order.
func (d *DomainQueues) Add(host, rawURL string) {
	if _, exists := d.queues[host]; !exists {
		d.order = append(d.order, host)
	}
	d.queues[host] = append(d.queues[host], rawURL)
	d.total++
}

// Total returns the number of URLs currently queued across all hosts.
func (d *DomainQueues) Total() int {
	return d.total
}

// CollectBatch pops up to maxPerDomain URLs from each host's queue, in
// host-insertion order, then rotates that order left by one so the next
// call starts from a different host — preventing the first-seen host
// from always going first.
func (d *DomainQueues) CollectBatch(maxPerDomain int) []string {
	var batch []string

	for _, host := range d.order {
		queue := d.queues[host]
		take := maxPerDomain
		if take > len(queue) {
			take = len(queue)
		}
		batch = append(batch, queue[:take]...)
		d.queues[host] = queue[take:]
		d.total -= take
	}

	if len(d.order) > 0 {
		d.order = append(d.order[1:], d.order[0])
	}

	return batch
}

// Shuffle randomizes the order of a collected batch in place, so that
// fetch concurrency doesn't correlate with host-insertion order.
func Shuffle(batch []string) {
	rand.Shuffle(len(batch), func(i, j int) {
		batch[i], batch[j] = batch[j], batch[i]
	})
}

// ExtractHost returns the host component of rawURL, the key DomainQueues
// groups by.
func ExtractHost(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("extract host from %s: %w", rawURL, err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("extract host from %s: no host", rawURL)
	}
	return parsed.Host, nil
}

// Runner owns a DomainQueues and drains it into batches either when the
// queue crosses a size threshold or on every tick, whichever comes
// first — the single-owner event loop that keeps DomainQueues free of
// locking.
type Runner struct {
	queues       *DomainQueues
	discovered   <-chan string
	batches      chan<- []string
	maxPerDomain int
	threshold    int
	tick         time.Duration
	clock        clock.Clock
}

// NewRunner builds a Runner reading discovered URLs from discovered and
// writing collected batches to batches.
func NewRunner(discovered <-chan string, batches chan<- []string, maxPerDomain, threshold int, tick time.Duration, clk clock.Clock) *Runner {
	return &Runner{
		queues:       New(),
		discovered:   discovered,
		batches:      batches,
		maxPerDomain: maxPerDomain,
		threshold:    threshold,
		tick:         tick,
		clock:        clk,
	}
}

// Run drains discovered into DomainQueues and emits batches on batches
// until ctx-like done is closed or discovered is closed and drained.
func (r *Runner) Run(done <-chan struct{}) {
	ticker := r.clock.Ticker(r.tick)
	defer ticker.Stop()

	drain := func() {
		if r.queues.Total() == 0 {
			return
		}
		batch := r.queues.CollectBatch(r.maxPerDomain)
		if len(batch) == 0 {
			return
		}
		Shuffle(batch)
		r.batches <- batch
	}

	for {
		select {
		case <-done:
			drain()
			return
		case rawURL, ok := <-r.discovered:
			if !ok {
				drain()
				return
			}
			host, err := ExtractHost(rawURL)
			if err != nil {
				continue
			}
			r.queues.Add(host, rawURL)
			if r.queues.Total() >= r.threshold {
				drain()
			}
		case <-ticker.C:
			drain()
		}
	}
}
