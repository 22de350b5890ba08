package cloud

import (
	"context"
	"fmt"
	"strings"

	"dwh-etl/internal/logging"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used by S3Prober.
type S3API interface {
	HeadObject(ctx context.Context, input *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Prober checks that staging sources exist before COPY runs.
type S3Prober struct {
	client S3API
}

// S3ProberOption configures an S3Prober.
type S3ProberOption func(*S3Prober)

// WithS3Client sets a custom S3 client (useful for testing).
func WithS3Client(c S3API) S3ProberOption {
	return func(p *S3Prober) { p.client = c }
}

// NewS3Prober returns a prober using cfg unless a client is supplied.
func NewS3Prober(cfg aws.Config, opts ...S3ProberOption) *S3Prober {
	p := &S3Prober{}
	for _, o := range opts {
		o(p)
	}
	if p.client == nil {
		p.client = s3.NewFromConfig(cfg)
	}
	return p
}

// ParseURI splits "s3://bucket/key" into bucket and key. The key may be empty.
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("invalid S3 URI %q: missing s3:// scheme", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid S3 URI %q: missing bucket", uri)
	}
	return bucket, key, nil
}

// ProbeObject verifies that the single object at uri exists.
func (p *S3Prober) ProbeObject(ctx context.Context, uri string) error {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("invalid S3 object URI %q: missing key", uri)
	}
	logging.Logf(logging.Debug, "Probing S3 object %s", uri)
	_, err = p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("S3 object %s: %w", uri, ErrNotFound)
		}
		return fmt.Errorf("probing S3 object %s: %w", uri, err)
	}
	return nil
}

// ProbePrefix verifies that at least one object exists under uri.
func (p *S3Prober) ProbePrefix(ctx context.Context, uri string) error {
	bucket, prefix, err := ParseURI(uri)
	if err != nil {
		return err
	}
	logging.Logf(logging.Debug, "Probing S3 prefix %s", uri)
	out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("S3 prefix %s: %w", uri, ErrNotFound)
		}
		return fmt.Errorf("listing S3 prefix %s: %w", uri, err)
	}
	if len(out.Contents) == 0 && aws.ToInt32(out.KeyCount) == 0 {
		return fmt.Errorf("S3 prefix %s has no objects: %w", uri, ErrNotFound)
	}
	return nil
}
