package crawler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tunnelcrawl/genesis/batch"
	"github.com/tunnelcrawl/genesis/fetcher"
	"github.com/tunnelcrawl/genesis/logging"
	"github.com/tunnelcrawl/genesis/messaging"
	"github.com/tunnelcrawl/genesis/metrics"
	"github.com/tunnelcrawl/genesis/proxy"
	"github.com/tunnelcrawl/genesis/settings"
)

const sampleHTML = `
<html>
<head><title>A Test</title></head>
<body>
<a href="/x">x</a>
<a href="/y">y</a>
<a href="http://a.test/x#frag">x again</a>
</body>
</html>
`

func newTestOrchestrator(t *testing.T, tunnelURL string) *Orchestrator {
	t.Helper()
	dir := t.TempDir()

	proxyFile := filepath.Join(dir, "proxies.txt")
	if err := os.WriteFile(proxyFile, []byte(""), 0o644); err != nil {
		t.Fatalf("write proxy file: %v", err)
	}
	proxies, err := proxy.NewFromFile(proxyFile, time.Second)
	if err != nil {
		t.Fatalf("NewFromFile: %v", err)
	}

	mock := clock.NewMock()
	counters := metrics.New(mock)
	pipeline := fetcher.New(tunnelURL, 2, proxies, counters, 5*time.Second, true)

	logger, err := logging.New(dir, 100, mock)
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	t.Cleanup(func() { logger.Close() })

	return &Orchestrator{
		Settings: &settings.Settings{
			BatchSize:         1,
			Concurrency:       4,
			MaxPages:          0,
			InactivityTimeout: time.Minute,
			FlushInterval:     time.Second,
			MaxPerDomain:      10,
			SchedulerTick:     time.Second,
		},
		Logger:     logger,
		Metrics:    counters,
		Notifier:   messaging.NewChannelQueue(),
		Clock:      mock,
		visited:    NewVisitedSet(),
		proxies:    proxies,
		fetchPipe:  pipeline,
		discovered: make(chan string, 100),
		batches:    make(chan []string, 10),
		stopped:    make(chan struct{}),
	}
}

func TestLoadSeedsDedupesAndEnqueues(t *testing.T) {
	o := newTestOrchestrator(t, "http://unused.invalid/")

	dir := t.TempDir()
	seedsPath := filepath.Join(dir, "seeds.txt")
	content := "http://a.test/\nhttp://a.test/\n\nhttp://b.test/\n"
	if err := os.WriteFile(seedsPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write seeds: %v", err)
	}

	if err := o.LoadSeeds(seedsPath); err != nil {
		t.Fatalf("LoadSeeds: %v", err)
	}

	close(o.discovered)
	var seen []string
	for url := range o.discovered {
		seen = append(seen, url)
	}

	if len(seen) != 2 {
		t.Fatalf("expected 2 deduped seeds enqueued, got %v", seen)
	}
}

func TestRecordSinkPublishesBatchEvent(t *testing.T) {
	o := newTestOrchestrator(t, "http://unused.invalid/")
	fake := &fakeBatchSink{}
	o.sinkImpl = fake

	queue := o.Notifier.(messaging.ChannelQueue)
	events := make(chan []byte, 1)
	go queue.Consume(events)

	rs := &recordSink{orch: o}
	records := []batch.Record{{URL: "http://example.com/a"}}
	if err := rs.SaveBatch(context.Background(), "batch-1", records); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}

	select {
	case payload := <-events:
		var event map[string]any
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if event["batch_id"] != "batch-1" {
			t.Fatalf("expected batch_id batch-1, got %v", event["batch_id"])
		}
		if event["count"].(float64) != 1 {
			t.Fatalf("expected count 1, got %v", event["count"])
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for batch event")
	}

	if len(fake.batches) != 1 {
		t.Fatalf("expected underlying sink to receive 1 batch, got %d", len(fake.batches))
	}
}

func TestProcessPageExtractsRecordAndDiscoversLinks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(sampleHTML))
	}))
	defer server.Close()

	o := newTestOrchestrator(t, server.URL+"/")
	fake := &fakeBatchSink{}
	o.buffer = batch.New(fake, 1, 1, nil)

	o.processPage(context.Background(), "http://a.test/")
	o.buffer.Flush(context.Background())

	if len(fake.batches) != 1 || len(fake.batches[0]) != 1 {
		t.Fatalf("expected exactly one record persisted, got %+v", fake.batches)
	}
	if fake.batches[0][0].Title != "A Test" {
		t.Fatalf("expected extracted title, got %q", fake.batches[0][0].Title)
	}

	close(o.discovered)
	var links []string
	for url := range o.discovered {
		links = append(links, url)
	}
	if len(links) != 2 {
		t.Fatalf("expected 2 deduped discovered links (fragment stripped, dup collapsed), got %v", links)
	}

	if o.Metrics.Success.Load() != 1 {
		t.Fatalf("expected success=1, got %d", o.Metrics.Success.Load())
	}
	if o.Metrics.Tunnel.Load() != 1 {
		t.Fatalf("expected tunnel=1, got %d", o.Metrics.Tunnel.Load())
	}
}

type fakeBatchSink struct {
	batches [][]batch.Record
}

func (f *fakeBatchSink) SaveBatch(_ context.Context, _ string, records []batch.Record) error {
	f.batches = append(f.batches, records)
	return nil
}

func (f *fakeBatchSink) Close() error { return nil }
