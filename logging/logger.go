// Package logging provides a small buffered append-only logger, in the
// same minimal spirit as the rest of the ambient stack: no external
// logging framework, just a mutex and a file.
package logging

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// animeNames is the fixed catalogue a run's log filename is drawn from.
var animeNames = []string{
	"yuki", "sakura", "mikasa", "miku", "asuka", "rei", "misato", "hinata",
	"tohru", "zero", "rem", "ram", "emilia", "aqua", "nami", "lucy", "erza",
	"asuna", "misaka", "saber", "rin", "mai", "nezuko", "ichigo",
}

// AsyncLogger buffers log lines in memory and flushes them to disk either
// when the buffer fills or on a timer, so that a busy crawl doesn't pay
// for an fsync per message.
type AsyncLogger struct {
	mu         sync.Mutex
	buffer     []string
	file       *os.File
	bufferSize int
	clock      clock.Clock
}

// New creates a logger writing to <logDir>/crawler-<name>.log, where <name>
// is drawn at random from a fixed catalogue, so repeated runs in the
// same directory don't clobber each other's logs.
func New(logDir string, bufferSize int, clk clock.Clock) (*AsyncLogger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	name := animeNames[rand.Intn(len(animeNames))]
	path := filepath.Join(logDir, fmt.Sprintf("crawler-%s.log", name))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &AsyncLogger{
		buffer:     make([]string, 0, bufferSize),
		file:       file,
		bufferSize: bufferSize,
		clock:      clk,
	}, nil
}

// Add appends a formatted entry to the buffer, flushing immediately if
// the buffer has reached capacity.
func (l *AsyncLogger) Add(message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := l.clock.Now().Format("2006-01-02 15:04:05")
	l.buffer = append(l.buffer, fmt.Sprintf("[%s] %s\n", timestamp, message))

	if len(l.buffer) >= l.bufferSize {
		return l.flushLocked()
	}
	return nil
}

// Addf is Add with fmt.Sprintf-style formatting.
func (l *AsyncLogger) Addf(format string, args ...any) error {
	return l.Add(fmt.Sprintf(format, args...))
}

// Flush writes any buffered entries to disk.
func (l *AsyncLogger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

func (l *AsyncLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	for _, line := range l.buffer {
		if _, err := l.file.WriteString(line); err != nil {
			return fmt.Errorf("write log entry: %w", err)
		}
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync log file: %w", err)
	}
	l.buffer = l.buffer[:0]
	return nil
}

// Close flushes any remaining entries and closes the underlying file.
func (l *AsyncLogger) Close() error {
	if err := l.Flush(); err != nil {
		return err
	}
	return l.file.Close()
}

// RunFlusher flushes the logger every interval until done is closed,
// driven by the injected clock rather than time.NewTicker so tests can
// fast-forward it.
func (l *AsyncLogger) RunFlusher(done <-chan struct{}, interval time.Duration) {
	ticker := l.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = l.Flush()
		}
	}
}
