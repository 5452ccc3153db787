package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oppidan-dev/pg-backup-restore/internal/config"
	"github.com/oppidan-dev/pg-backup-restore/internal/provider"
)

// newClientFromConfig builds an S3 client against the per-account endpoint.
// The storage is S3-compatible but region-less, so the region carries the
// provider's sentinel token and addressing is path-style.
func newClientFromConfig(c config.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(c.Storage.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.Storage.AccessKeyID, c.Storage.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load sdk config: %w", err)
	}

	endpoint := c.Storage.EndpointURL()
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	return client, nil
}

func init() {
	provider.Register("s3", func(cfg any) (provider.Provider, error) {
		c, ok := cfg.(config.Config)
		if !ok {
			return nil, fmt.Errorf("s3: invalid config type")
		}
		client, err := newClientFromConfig(c)
		if err != nil {
			return nil, err
		}
		return &S3Provider{
			client:   client,
			uploader: manager.NewUploader(client),
			bucket:   c.Storage.Bucket,
			ro:       c.RetryOptions(),
		}, nil
	})
}
