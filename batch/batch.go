// Package batch accumulates extracted records in memory and drains them
// in fixed-size chunks to a persistence sink, bounding writer concurrency
// with a semaphore.
package batch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MetaTag is a single {name, content} meta tag pair of a persisted record.
type MetaTag struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Record is a single extracted-page document flowing from the extractor
// to persistence.
type Record struct {
	URL          string    `json:"url"`
	Language     string    `json:"language"`
	Title        string    `json:"title"`
	MetaTags     []MetaTag `json:"meta_tags"`
	CanonicalURL string    `json:"canonical_url,omitempty"` // raw href of the first <link rel="canonical">, not resolved against URL
	ContentText  string    `json:"content_text"`
}

// Sanitize strips ASCII control characters and NULs from every string
// field, applied once at write time so in-memory records keep raw text
// until just before persistence.
func (r Record) Sanitize() Record {
	clean := Record{
		URL:          sanitizeString(r.URL),
		Language:     sanitizeString(r.Language),
		Title:        sanitizeString(r.Title),
		CanonicalURL: sanitizeString(r.CanonicalURL),
		ContentText:  sanitizeString(r.ContentText),
	}
	clean.MetaTags = make([]MetaTag, len(r.MetaTags))
	for i, tag := range r.MetaTags {
		clean.MetaTags[i] = MetaTag{Name: sanitizeString(tag.Name), Content: sanitizeString(tag.Content)}
	}
	return clean
}

func sanitizeString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == 0 || r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Sink persists a flushed chunk of sanitized records.
type Sink interface {
	SaveBatch(ctx context.Context, batchID string, records []Record) error
}

// Buffer accumulates pending records and drains them to a Sink once the
// threshold given to New is reached, bounding concurrent writers with a
// semaphore of the concurrency given to New.
type Buffer struct {
	mu        sync.Mutex
	pending   []Record
	threshold int
	sink      Sink
	sem       chan struct{}
	onError   func(err error)
	wg        sync.WaitGroup
}

// New creates a Buffer draining to sink once threshold records are
// pending, with up to concurrency simultaneous writes in flight.
func New(sink Sink, threshold, concurrency int, onError func(error)) *Buffer {
	if onError == nil {
		onError = func(error) {}
	}
	return &Buffer{
		threshold: threshold,
		sink:      sink,
		sem:       make(chan struct{}, concurrency),
		onError:   onError,
	}
}

// Add appends record to the pending buffer, draining a chunk in the
// background if the threshold is crossed.
func (b *Buffer) Add(ctx context.Context, record Record) {
	b.mu.Lock()
	b.pending = append(b.pending, record)
	var chunk []Record
	if len(b.pending) >= b.threshold {
		chunk = b.pending[:b.threshold]
		b.pending = append([]Record(nil), b.pending[b.threshold:]...)
	}
	b.mu.Unlock()

	if chunk != nil {
		b.drain(ctx, chunk)
	}
}

// drain hands chunk to the sink asynchronously, bounded by the writer
// semaphore. Records are sanitized here, immediately before the write,
// so the in-memory pending buffer retains raw text right up until the
// point of persistence.
func (b *Buffer) drain(ctx context.Context, chunk []Record) {
	b.sem <- struct{}{}
	b.wg.Add(1)
	go func() {
		defer func() { <-b.sem; b.wg.Done() }()
		sanitized := make([]Record, len(chunk))
		for i, record := range chunk {
			sanitized[i] = record.Sanitize()
		}
		batchID := uuid.NewString()
		if err := b.sink.SaveBatch(ctx, batchID, sanitized); err != nil {
			b.onError(fmt.Errorf("save batch %s: %w", batchID, err))
		}
	}()
}

// Flush synchronously drains any residual pending records, waiting for
// every in-flight write to finish. Call at end-of-run.
func (b *Buffer) Flush(ctx context.Context) {
	b.mu.Lock()
	remaining := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(remaining) > 0 {
		b.drain(ctx, remaining)
	}
	b.wg.Wait()
}

// Pending returns the number of records currently buffered, for metrics.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
