// Package settings collects every tunable of the crawl engine into a
// single struct built from environment variables, the same minimal
// read-env-or-default approach as the env package it builds on.
package settings

import (
	"time"

	"github.com/tunnelcrawl/genesis/env"
)

// Defaults match the values the source implementation hard-codes.
const (
	DefaultSeedsFile         = "data/sites.txt"
	DefaultProxyFile         = "data/proxies.txt"
	DefaultSinkTarget        = "bolt:data/genesis.db:analyses"
	DefaultMaxPages          = 50_000
	DefaultConcurrency       = 5_000
	DefaultDBConcurrency     = 20
	DefaultBatchSize         = 2_000
	DefaultMaxPerDomain      = 5
	DefaultMaxTunnelRetries  = 2
	DefaultInactivityTimeout = 60 * time.Second
	DefaultFetchTimeout      = 30 * time.Second
	DefaultSchedulerTick     = 1 * time.Second
	DefaultFlushInterval     = 5 * time.Second
	DefaultLogBufferSize     = 10_000
)

// Settings is the immutable configuration of a single crawl run.
type Settings struct {
	// PROXY_TUNNEL_URL is the only required variable; startup fails
	// without it (spec.md §6 exit codes: non-zero on missing env var).
	ProxyTunnelURL string

	SeedsFile  string
	ProxyFile  string
	SinkTarget string
	// MetricsAddr, if non-empty, is the listen address for the
	// Prometheus /metrics endpoint. Empty disables it.
	MetricsAddr string

	MaxPages          int
	Concurrency       int
	DBConcurrency     int
	BatchSize         int
	MaxPerDomain      int
	MaxTunnelRetries  int
	InactivityTimeout time.Duration
	FetchTimeout      time.Duration
	SchedulerTick     time.Duration
	FlushInterval     time.Duration
	LogBufferSize     int

	// InsecureSkipVerify controls whether the tunnel client verifies the
	// tunnel endpoint's TLS certificate. The tunnel is typically reached
	// through a self-signed or proxied endpoint, so this defaults to true.
	InsecureSkipVerify bool
}

// FromEnv builds Settings from the process environment, returning an
// error if PROXY_TUNNEL_URL is unset (a configuration error per
// spec.md §7, fatal at startup).
func FromEnv() (*Settings, error) {
	tunnelURL, err := env.MustGetEnv("PROXY_TUNNEL_URL")
	if err != nil {
		return nil, err
	}

	return &Settings{
		ProxyTunnelURL:    tunnelURL,
		SeedsFile:         env.GetEnv("SEEDS_FILE", DefaultSeedsFile),
		ProxyFile:         env.GetEnv("PROXY_FILE", DefaultProxyFile),
		SinkTarget:        env.GetEnv("SINK_TARGET", DefaultSinkTarget),
		MetricsAddr:       env.GetEnv("METRICS_ADDR", ""),
		MaxPages:          env.GetEnvAsInt("MAX_PAGES", DefaultMaxPages),
		Concurrency:       env.GetEnvAsInt("CONCURRENCY", DefaultConcurrency),
		DBConcurrency:     env.GetEnvAsInt("DB_CONCURRENCY", DefaultDBConcurrency),
		BatchSize:         env.GetEnvAsInt("BATCH_SIZE", DefaultBatchSize),
		MaxPerDomain:      env.GetEnvAsInt("MAX_PER_DOMAIN", DefaultMaxPerDomain),
		MaxTunnelRetries:  env.GetEnvAsInt("MAX_TUNNEL_RETRIES", DefaultMaxTunnelRetries),
		InactivityTimeout: env.GetEnvAsSeconds("INACTIVITY_TIMEOUT", DefaultInactivityTimeout),
		FetchTimeout:      env.GetEnvAsSeconds("FETCH_TIMEOUT", DefaultFetchTimeout),
		SchedulerTick:      DefaultSchedulerTick,
		FlushInterval:      DefaultFlushInterval,
		LogBufferSize:      DefaultLogBufferSize,
		InsecureSkipVerify: env.GetEnvAsBool("INSECURE_SKIP_VERIFY", true),
	}, nil
}
