// Package storage archives completed runs off-host. Archiving is an
// optional convenience: a failed upload never fails the run itself.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ArchiveGateway stores a finished run's state document and ledger
type ArchiveGateway interface {
	// ArchiveRun uploads the named files (relative name -> content) under
	// the run's archive location
	ArchiveRun(ctx context.Context, runID string, files map[string][]byte) error

	// ListRuns returns the runIDs present in the archive
	ListRuns(ctx context.Context) ([]string, error)
}

// S3ArchiveGateway implements ArchiveGateway on AWS S3.
// Bucket layout: s3://<bucket>/<prefix>/runs/<runID>/<file>
type S3ArchiveGateway struct {
	client S3API // Use interface for testability
	bucket string
	prefix string // Optional key prefix (e.g. "reviewfleet/prod")
}

// S3Config holds S3 archive gateway configuration
type S3Config struct {
	Bucket string // S3 bucket name
	Prefix string // Optional key prefix
	Region string // AWS region (optional, uses default if empty)
}

// NewS3ArchiveGateway creates an archive gateway using the ambient AWS
// configuration chain.
func NewS3ArchiveGateway(ctx context.Context, cfg S3Config) (*S3ArchiveGateway, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.Region != "" {
		awsCfg.Region = cfg.Region
	}
	return &S3ArchiveGateway{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// NewS3ArchiveGatewayWithClient creates an archive gateway with a custom
// S3 client. Primarily used for testing with mock clients.
func NewS3ArchiveGatewayWithClient(client S3API, bucket, prefix string) *S3ArchiveGateway {
	return &S3ArchiveGateway{client: client, bucket: bucket, prefix: prefix}
}

// ArchiveRun uploads each file under runs/<runID>/
func (g *S3ArchiveGateway) ArchiveRun(ctx context.Context, runID string, files map[string][]byte) error {
	uploadedAt := time.Now().UTC().Format(time.RFC3339)
	for name, content := range files {
		key := g.buildKey("runs", runID, name)
		_, err := g.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(g.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(content),
			ContentType: aws.String(contentTypeFor(name)),
			Metadata: map[string]string{
				"run-id":      runID,
				"uploaded-at": uploadedAt,
			},
		})
		if err != nil {
			return fmt.Errorf("upload %s to s3://%s/%s: %w", name, g.bucket, key, err)
		}
	}
	return nil
}

// ListRuns returns runIDs found under the runs/ prefix
func (g *S3ArchiveGateway) ListRuns(ctx context.Context) ([]string, error) {
	prefix := g.buildKey("runs") + "/"
	out, err := g.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(g.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("list archive runs: %w", err)
	}

	seen := make(map[string]bool)
	for _, obj := range out.Contents {
		rest := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
		runID, _, ok := strings.Cut(rest, "/")
		if ok && runID != "" {
			seen[runID] = true
		}
	}
	runs := make([]string, 0, len(seen))
	for runID := range seen {
		runs = append(runs, runID)
	}
	sort.Strings(runs)
	return runs, nil
}

// buildKey joins key parts under the optional prefix
func (g *S3ArchiveGateway) buildKey(parts ...string) string {
	if g.prefix != "" {
		parts = append([]string{g.prefix}, parts...)
	}
	return strings.Join(parts, "/")
}

func contentTypeFor(name string) string {
	switch {
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	case strings.HasSuffix(name, ".ndjson"):
		return "application/x-ndjson"
	default:
		return "text/plain"
	}
}

var _ ArchiveGateway = (*S3ArchiveGateway)(nil)
