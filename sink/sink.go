// Package sink implements the persistence contract: batches of sanitized
// records are handed to a Sink, selected at startup by a scheme-prefixed
// target string looked up in a registry of schemes.
package sink

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tunnelcrawl/genesis/batch"
)

// Sink persists one flushed batch of records, keyed by batchID.
type Sink interface {
	SaveBatch(ctx context.Context, batchID string, records []batch.Record) error
	Close() error
}

type constructor func(path string) (Sink, error)

var registry = map[string]constructor{}

func register(scheme string, fn constructor) {
	registry[scheme] = fn
}

// New builds a Sink from a target string of the form "<scheme>:<path>",
// e.g. "s3:us-east-1:my-bucket" or "bolt:data/genesis.db:analyses".
func New(target string) (Sink, error) {
	scheme, path, ok := strings.Cut(target, ":")
	if !ok {
		return nil, fmt.Errorf("sink target %q does not have the form <scheme>:<path>", target)
	}
	fn, ok := registry[scheme]
	if !ok {
		return nil, fmt.Errorf("no sink registered for scheme %q", scheme)
	}
	return fn(path)
}

// PartitionPrefix returns the 1-byte hex prefix of MD5(url), the object-
// storage partitioning key the spec's layout uses
// (analyses/partition=<xx>/batch_<uuid>.jsonl).
func PartitionPrefix(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:1])
}

// encodeJSONLines renders records as newline-delimited JSON, one record
// per line, the payload both sink backends store verbatim.
func encodeJSONLines(records []batch.Record) ([]byte, error) {
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return nil, fmt.Errorf("encode record %s: %w", r.URL, err)
		}
	}
	return []byte(buf.String()), nil
}

// partitionOf picks a representative partition for a batch: the prefix of
// its first record's URL. Since a persistence batch as flushed by
// batch.Buffer is just whatever was pending, mixed-partition batches fall
// under the first record's partition — the spec's layout keys batches by
// UUID for uniqueness, not by a strict content partitioning guarantee.
func partitionOf(records []batch.Record) string {
	if len(records) == 0 {
		return "00"
	}
	return PartitionPrefix(records[0].URL)
}
