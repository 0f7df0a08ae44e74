package scheduler

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestAddAndCollectBatchRoundRobins(t *testing.T) {
	d := New()
	d.Add("a.com", "https://a.com/1")
	d.Add("a.com", "https://a.com/2")
	d.Add("b.com", "https://b.com/1")

	batch := d.CollectBatch(10)
	if len(batch) != 3 {
		t.Fatalf("expected all 3 urls in first batch, got %d", len(batch))
	}
	if d.Total() != 0 {
		t.Fatalf("expected queue drained, got total=%d", d.Total())
	}
}

func TestCollectBatchRespectsMaxPerDomain(t *testing.T) {
	d := New()
	for i := 0; i < 5; i++ {
		d.Add("a.com", "https://a.com/x")
	}
	d.Add("b.com", "https://b.com/1")

	batch := d.CollectBatch(2)
	if len(batch) != 3 { // 2 from a.com + 1 from b.com
		t.Fatalf("expected 3 urls in batch, got %d", len(batch))
	}
	if d.Total() != 3 { // 3 remain queued for a.com
		t.Fatalf("expected 3 remaining, got %d", d.Total())
	}
}

func TestCollectBatchRotatesHostOrder(t *testing.T) {
	d := New()
	d.Add("a.com", "https://a.com/1")
	d.Add("a.com", "https://a.com/2")
	d.Add("b.com", "https://b.com/1")
	d.Add("b.com", "https://b.com/2")

	first := d.CollectBatch(1)
	if first[0] != "https://a.com/1" {
		t.Fatalf("expected first batch to start with a.com, got %v", first)
	}

	second := d.CollectBatch(1)
	if second[0] != "https://b.com/2" {
		t.Fatalf("expected second batch to start with b.com after rotation, got %v", second)
	}
}

func TestExtractHost(t *testing.T) {
	host, err := ExtractHost("https://example.com/path")
	if err != nil {
		t.Fatalf("ExtractHost: %v", err)
	}
	if host != "example.com" {
		t.Fatalf("expected example.com, got %q", host)
	}

	if _, err := ExtractHost("not a url with no host::"); err == nil {
		t.Fatal("expected an error for a hostless/unparseable URL")
	}
}

func TestRunnerEmitsBatchOnThreshold(t *testing.T) {
	discovered := make(chan string, 10)
	batches := make(chan []string, 10)
	mock := clock.NewMock()

	runner := NewRunner(discovered, batches, 5, 3, time.Second, mock)
	done := make(chan struct{})
	go runner.Run(done)

	discovered <- "https://a.com/1"
	discovered <- "https://a.com/2"
	discovered <- "https://a.com/3"

	select {
	case batch := <-batches:
		if len(batch) != 3 {
			t.Fatalf("expected batch of 3, got %d", len(batch))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for threshold-triggered batch")
	}

	close(done)
}

func TestRunnerEmitsBatchOnTick(t *testing.T) {
	discovered := make(chan string, 10)
	batches := make(chan []string, 10)
	mock := clock.NewMock()

	runner := NewRunner(discovered, batches, 5, 1000, time.Second, mock)
	done := make(chan struct{})
	go runner.Run(done)

	discovered <- "https://a.com/1"
	time.Sleep(10 * time.Millisecond) // let the goroutine consume it
	mock.Add(time.Second)

	select {
	case batch := <-batches:
		if len(batch) != 1 {
			t.Fatalf("expected batch of 1, got %d", len(batch))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tick-triggered batch")
	}

	close(done)
}
