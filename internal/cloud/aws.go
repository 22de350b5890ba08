// Package cloud wraps the AWS services the pipeline touches outside the
// warehouse: S3 (staging preflight) and Secrets Manager (cluster password).
package cloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/smithy-go"
)

// ErrNotFound is returned when a probed object, prefix or secret does not exist.
var ErrNotFound = errors.New("not found")

// NewAWS loads the default AWS configuration chain (environment, shared
// config, instance role). region overrides the chain's region when set.
func NewAWS(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

// notFoundCodes are the service error codes that mean "does not exist".
var notFoundCodes = map[string]bool{
	"NotFound":                  true,
	"NoSuchKey":                 true,
	"NoSuchBucket":              true,
	"ResourceNotFoundException": true,
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && notFoundCodes[apiErr.ErrorCode()]
}
