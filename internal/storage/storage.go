// Package storage wraps the S3-compatible object store that holds user
// uploads, exposing only what the monitor probes.
package storage

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"buddy-monitor/internal/config"
)

// BucketChecker reports whether a bucket is reachable
type BucketChecker interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

// Client is a thin wrapper over a minio client
type Client struct {
	mc       *minio.Client
	endpoint string
}

// NewClient creates an object store client from the probe configuration
func NewClient(cfg config.ObjectStorageConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 client: endpoint is required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}

	return &Client{mc: mc, endpoint: cfg.Endpoint}, nil
}

// BucketExists checks the bucket through a HEAD request
func (c *Client) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return c.mc.BucketExists(ctx, bucket)
}

// Endpoint returns the configured endpoint
func (c *Client) Endpoint() string {
	return c.endpoint
}
