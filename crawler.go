package crawler

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tunnelcrawl/genesis/batch"
	"github.com/tunnelcrawl/genesis/extractor"
	"github.com/tunnelcrawl/genesis/fetcher"
	"github.com/tunnelcrawl/genesis/logging"
	"github.com/tunnelcrawl/genesis/messaging"
	"github.com/tunnelcrawl/genesis/metrics"
	"github.com/tunnelcrawl/genesis/proxy"
	"github.com/tunnelcrawl/genesis/scheduler"
	"github.com/tunnelcrawl/genesis/settings"
	"github.com/tunnelcrawl/genesis/sink"
)

// BatchEvent is the payload published on Notifier once a persistence
// batch is flushed, for a downstream full-text indexer to consume.
type BatchEvent struct {
	Partition string `json:"partition"`
	BatchID   string `json:"batch_id"`
	Count     int    `json:"count"`
}

// Orchestrator wires the proxy pool, scheduler, fetch pipeline, extractor
// and persistence batcher into a single running crawl, and drives the
// periodic housekeeping tasks (log flushing, metrics emission, the
// inactivity watchdog).
type Orchestrator struct {
	Settings *settings.Settings
	Logger   *logging.AsyncLogger
	Metrics  *metrics.Counters
	Notifier messaging.Producer
	Clock    clock.Clock

	visited   *VisitedSet
	proxies   *proxy.Pool
	fetchPipe *fetcher.Pipeline
	buffer    *batch.Buffer
	sinkImpl  sink.Sink

	discovered chan string
	batches    chan []string

	pagesProcessed atomic.Int64
	stopped        chan struct{}
	stopOnce       sync.Once
}

// New builds an Orchestrator from settings, loading the proxy pool and
// persistence sink and wiring every component together. The caller owns
// closing the returned Orchestrator's Logger once Run returns.
func New(cfg *settings.Settings, logger *logging.AsyncLogger, notifier messaging.Producer, clk clock.Clock) (*Orchestrator, error) {
	proxies, err := proxy.NewFromFile(cfg.ProxyFile, cfg.FetchTimeout)
	if err != nil {
		return nil, fmt.Errorf("load proxy pool: %w", err)
	}

	sinkImpl, err := sink.New(cfg.SinkTarget)
	if err != nil {
		return nil, fmt.Errorf("open sink: %w", err)
	}

	counters := metrics.New(clk)
	pipeline := fetcher.New(cfg.ProxyTunnelURL, cfg.MaxTunnelRetries, proxies, counters, cfg.FetchTimeout, cfg.InsecureSkipVerify)

	o := &Orchestrator{
		Settings:   cfg,
		Logger:     logger,
		Metrics:    counters,
		Notifier:   notifier,
		Clock:      clk,
		visited:    NewVisitedSet(),
		proxies:    proxies,
		fetchPipe:  pipeline,
		sinkImpl:   sinkImpl,
		discovered: make(chan string, cfg.Concurrency),
		batches:    make(chan []string, 4),
		stopped:    make(chan struct{}),
	}

	o.buffer = batch.New(&recordSink{orch: o}, cfg.BatchSize, cfg.DBConcurrency, func(err error) {
		_ = o.Logger.Addf("persistence error: %v", err)
	})

	return o, nil
}

// recordSink adapts sink.Sink to batch.Sink, publishing a BatchEvent on
// the orchestrator's Notifier after every successful write.
type recordSink struct {
	orch *Orchestrator
}

func (r *recordSink) SaveBatch(ctx context.Context, batchID string, records []batch.Record) error {
	if err := r.orch.sinkImpl.SaveBatch(ctx, batchID, records); err != nil {
		return err
	}
	partition := sink.PartitionPrefix(records[0].URL)
	payload := fmt.Sprintf(`{"partition":%q,"batch_id":%q,"count":%d}`, partition, batchID, len(records))
	if err := r.orch.Notifier.Produce([]byte(payload)); err != nil {
		_ = r.orch.Logger.Addf("notifier error: %v", err)
	}
	return nil
}

// LoadSeeds reads newline-delimited URLs from path and enqueues each
// unvisited one as a discovery.
func (o *Orchestrator) LoadSeeds(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seeds file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		o.discover(line)
	}
	return scanner.Err()
}

// discover enqueues rawURL if it hasn't been seen yet. Only a first-time
// insertion counts toward total_left, matching the enqueue/process pairing
// spec.md §3 describes.
func (o *Orchestrator) discover(rawURL string) {
	if !o.visited.InsertIfAbsent(rawURL) {
		return
	}
	o.Metrics.IncTotalLeft()
	o.discovered <- rawURL
}

// Run drives the crawl to completion: it starts the scheduler, the
// periodic housekeeping tasks and the fetch fan-out, and blocks until
// MAX_PAGES is reached, the inactivity watchdog stops the crawl, or ctx is
// canceled (including via SIGINT/SIGTERM). It does not return when the
// discovered/batches pipeline drains: an idle crawl, including one with
// no seeds, ends only once the inactivity watchdog fires.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, cancel := o.withSignalHandling(ctx)
	defer cancel()

	runner := scheduler.NewRunner(o.discovered, o.batches, o.Settings.MaxPerDomain, o.Settings.BatchSize, o.Settings.SchedulerTick, o.Clock)

	done := make(chan struct{})
	go runner.Run(done)

	go func() {
		select {
		case <-o.stopped:
			cancel()
		case <-ctx.Done():
		}
	}()

	go o.Logger.RunFlusher(ctx.Done(), o.Settings.FlushInterval)

	var housekeeping sync.WaitGroup
	housekeeping.Add(1)
	go func() {
		defer housekeeping.Done()
		o.runHousekeeping(ctx)
	}()

	o.fanOutWorkers(ctx)

	close(done)
	close(o.discovered)

	cancel()
	housekeeping.Wait()

	o.buffer.Flush(context.Background())
	_ = o.Logger.Add(o.Metrics.Summary())
	_ = o.Logger.Flush()

	return nil
}

// withSignalHandling returns a context canceled when SIGINT/SIGTERM is
// received, so an operator can stop a long crawl cleanly.
func (o *Orchestrator) withSignalHandling(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-signalCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// runHousekeeping runs the periodic metrics emitter and inactivity
// watchdog until ctx is canceled. Log flushing runs on its own ticker
// via Logger.RunFlusher, started alongside this goroutine in Run.
func (o *Orchestrator) runHousekeeping(ctx context.Context) {
	metricsTicker := o.Clock.Ticker(5 * time.Second)
	defer metricsTicker.Stop()
	watchdogTicker := o.Clock.Ticker(5 * time.Second)
	defer watchdogTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-metricsTicker.C:
			_ = o.Logger.Add(o.Metrics.Line())
			_ = o.Logger.Flush()
		case <-watchdogTicker.C:
			if o.Metrics.IdleFor() >= o.Settings.InactivityTimeout {
				_ = o.Logger.Add("inactivity timeout reached, stopping crawl")
				_ = o.Logger.Flush()
				o.stopOnce.Do(func() { close(o.stopped) })
				return
			}
		}
	}
}

// fanOutWorkers consumes batches from the scheduler and fetches every URL
// in each batch, bounded by Settings.Concurrency in-flight fetches, until
// batches is closed, MAX_PAGES is reached, or ctx is canceled.
func (o *Orchestrator) fanOutWorkers(ctx context.Context) {
	semaphore := make(chan struct{}, o.Settings.Concurrency)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case urls, ok := <-o.batches:
			if !ok {
				wg.Wait()
				return
			}
			for _, rawURL := range urls {
				if o.Settings.MaxPages > 0 && o.pagesProcessed.Load() >= int64(o.Settings.MaxPages) {
					o.stopOnce.Do(func() { close(o.stopped) })
					continue
				}

				semaphore <- struct{}{}
				wg.Add(1)
				go func(rawURL string) {
					defer wg.Done()
					defer func() { <-semaphore }()
					o.processPage(ctx, rawURL)
				}(rawURL)
			}
		}
	}
}

// processPage fetches a single URL, extracts its record and outbound
// links, enqueues the links for discovery and appends the record to the
// persistence buffer.
func (o *Orchestrator) processPage(ctx context.Context, rawURL string) {
	count := o.pagesProcessed.Add(1)
	if o.Settings.BatchSize > 0 && count%int64(o.Settings.BatchSize) == 0 {
		_ = o.Logger.Addf("======== Batch %d complete ========", count/int64(o.Settings.BatchSize))
	}

	baseURL, result, err := o.fetchPipe.Fetch(rawURL)
	if err != nil {
		_ = o.Logger.Addf("fetch %s failed: %v", rawURL, err)
		return
	}
	o.Metrics.MarkThroughput(result.BytesPerSecond, result.Elapsed)

	extracted, err := extractor.Extract(baseURL, strings.NewReader(result.Body))
	if err != nil {
		_ = o.Logger.Addf("extract %s failed: %v", baseURL, err)
		return
	}

	record := batch.Record{
		URL:          baseURL,
		Language:     extracted.Language,
		Title:        extracted.Title,
		CanonicalURL: extracted.CanonicalURL,
		ContentText:  extracted.ContentText,
	}
	for _, tag := range extracted.MetaTags {
		record.MetaTags = append(record.MetaTags, batch.MetaTag{Name: tag.Name, Content: tag.Content})
	}
	o.buffer.Add(ctx, record)

	for _, link := range extracted.Links {
		o.discover(link.String())
	}
}

// Close releases the orchestrator's resources (persistence sink, proxy
// clients have nothing to close).
func (o *Orchestrator) Close() error {
	return o.sinkImpl.Close()
}
