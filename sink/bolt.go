package sink

import (
	"context"
	"fmt"
	"strings"

	"go.etcd.io/bbolt"

	"github.com/tunnelcrawl/genesis/batch"
)

// BoltSink writes each flushed batch into an embedded bbolt database, one
// bucket per partition prefix and one key per batch UUID — an
// embedded-KV alternative to S3Sink for local/dev deployments that don't
// warrant an object store.
type BoltSink struct {
	db         *bbolt.DB
	bucketName string
}

func newBolt(path string) (Sink, error) {
	dbPath, bucketName, ok := strings.Cut(path, ":")
	if !ok {
		return nil, fmt.Errorf("bolt sink path %q does not have the form <path>:<bucket>", path)
	}

	db, err := bbolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt db %s: %w", dbPath, err)
	}
	return &BoltSink{db: db, bucketName: bucketName}, nil
}

// SaveBatch stores records as a single JSON-Lines value under a
// partition=<xx> bucket, keyed by batchID.
func (s *BoltSink) SaveBatch(ctx context.Context, batchID string, records []batch.Record) error {
	payload, err := encodeJSONLines(records)
	if err != nil {
		return err
	}

	bucketPath := fmt.Sprintf("%s/partition=%s", s.bucketName, partitionOf(records))
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(bucketPath))
		if err != nil {
			return fmt.Errorf("create bucket %s: %w", bucketPath, err)
		}
		return bucket.Put([]byte(batchID), payload)
	})
}

// Close closes the underlying bbolt database.
func (s *BoltSink) Close() error {
	return s.db.Close()
}

func init() {
	register("bolt", newBolt)
}
