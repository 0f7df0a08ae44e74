package sink

// Note: relies on the standard AWS credential chain (environment,
// ~/.aws/credentials, or instance role) being configured externally.

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/tunnelcrawl/genesis/batch"
)

// S3Sink writes each flushed batch as a single JSON-Lines object,
// partitioned by a hex prefix of MD5(url).
type S3Sink struct {
	svc    *s3.S3
	bucket string
}

func newS3(path string) (Sink, error) {
	region, bucket, ok := strings.Cut(path, ":")
	if !ok {
		return nil, fmt.Errorf("s3 sink path %q does not have the form <region>:<bucket>", path)
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return &S3Sink{svc: s3.New(sess), bucket: bucket}, nil
}

// SaveBatch writes records as a single JSON-Lines object at
// analyses/partition=<xx>/batch_<uuid>.jsonl.
func (s *S3Sink) SaveBatch(ctx context.Context, batchID string, records []batch.Record) error {
	payload, err := encodeJSONLines(records)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("analyses/partition=%s/batch_%s.jsonl", partitionOf(records), batchID)
	_, err = s.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Close is a no-op; the S3 client holds no resources worth releasing.
func (s *S3Sink) Close() error { return nil }

func init() {
	register("s3", newS3)
}
