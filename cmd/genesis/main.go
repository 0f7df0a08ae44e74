// Command genesis runs the crawl engine end to end: it loads settings
// from the environment, wires the proxy pool, fetch pipeline and
// persistence sink together, seeds the scheduler and blocks until
// MAX_PAGES is reached, the inactivity watchdog fires (which is also how a
// drained crawl ends), or the process receives SIGINT/SIGTERM.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tunnelcrawl/genesis/logging"
	"github.com/tunnelcrawl/genesis/messaging"
	"github.com/tunnelcrawl/genesis/metrics"
	"github.com/tunnelcrawl/genesis/settings"

	crawler "github.com/tunnelcrawl/genesis"
)

func main() {
	cfg, err := settings.FromEnv()
	if err != nil {
		log.Printf("configuration error: %v", err)
		os.Exit(1)
	}

	clk := clock.New()

	logger, err := logging.New("logs", cfg.LogBufferSize, clk)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		os.Exit(1)
	}
	defer logger.Close()

	notifier := messaging.NewChannelQueue()
	events := make(chan []byte, 64)
	go notifier.Consume(events)
	go logBatchEvents(logger, events)

	orchestrator, err := crawler.New(cfg, logger, notifier, clk)
	if err != nil {
		log.Printf("failed to initialize crawler: %v", err)
		os.Exit(1)
	}
	defer orchestrator.Close()

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		orchestrator.Metrics.Register(reg)
		go func() {
			if err := metrics.ServeHTTP(cfg.MetricsAddr, reg); err != nil {
				_ = logger.Addf("metrics server stopped: %v", err)
			}
		}()
	}

	if err := orchestrator.LoadSeeds(cfg.SeedsFile); err != nil {
		log.Printf("failed to load seeds from %s: %v", cfg.SeedsFile, err)
		os.Exit(1)
	}

	if err := orchestrator.Run(context.Background()); err != nil {
		log.Printf("crawl terminated with error: %v", err)
		os.Exit(1)
	}
}

// logBatchEvents forwards BatchEvent notifications onto the run's
// AsyncLogger, giving an operator a record of every persisted batch without
// needing a separate downstream consumer attached.
func logBatchEvents(logger *logging.AsyncLogger, events <-chan []byte) {
	for payload := range events {
		var event crawler.BatchEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			continue
		}
		_ = logger.Addf("batch %s persisted: partition=%s count=%d", event.BatchID, event.Partition, event.Count)
	}
}
