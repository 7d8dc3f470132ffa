// Package aws provides the AWS client used to verify the credentials behind
// the speech synthesis and upload integrations.
package aws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	appConfig "buddy-monitor/internal/config"
	"buddy-monitor/pkg/logger"
)

// STSClient defines the STS operations needed for the credentials check
type STSClient interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Identity is the caller identity the configured credentials resolve to
type Identity struct {
	Account string `json:"account"`
	ARN     string `json:"arn"`
	UserID  string `json:"user_id"`
}

// ClientProvider interface for creating AWS service clients
type ClientProvider interface {
	GetSTSClient(ctx context.Context) (STSClient, error)
	Region() string
	Close() error
}

// clientProvider implements ClientProvider
type clientProvider struct {
	config appConfig.AWSCredentialsConfig
	logger *logger.Logger

	mu     sync.Mutex
	awsCfg *aws.Config
}

// NewClientProvider creates a new AWS client provider
func NewClientProvider(cfg appConfig.AWSCredentialsConfig, log *logger.Logger) ClientProvider {
	return &clientProvider{
		config: cfg,
		logger: log.WithComponent("aws-client"),
	}
}

// Region returns the region clients are created for
func (cp *clientProvider) Region() string {
	return cp.config.Region
}

// GetSTSClient returns an STS client for the configured region
func (cp *clientProvider) GetSTSClient(ctx context.Context) (STSClient, error) {
	awsCfg, err := cp.getAWSConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get AWS config for region %s: %w", cp.config.Region, err)
	}

	client := sts.NewFromConfig(awsCfg)
	cp.logger.Debug("Created STS client", logger.String("region", cp.config.Region))

	return client, nil
}

// getAWSConfig returns the AWS config, loading it on first use
func (cp *clientProvider) getAWSConfig(ctx context.Context) (aws.Config, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if cp.awsCfg != nil {
		return *cp.awsCfg, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cp.config.Region),
		config.WithRetryMaxAttempts(cp.config.MaxRetries),
	}

	// Explicit keys take precedence over the default credential chain
	if cp.config.AccessKeyID != "" && cp.config.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cp.config.AccessKeyID,
			cp.config.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	awsCfg.HTTPClient = &http.Client{
		Timeout: time.Duration(cp.config.Timeout),
	}

	cp.awsCfg = &awsCfg

	cp.logger.Info("AWS config loaded",
		logger.String("region", cp.config.Region),
		logger.Int("max_retries", cp.config.MaxRetries),
		logger.Duration("timeout", time.Duration(cp.config.Timeout)),
	)

	return awsCfg, nil
}

// Close drops the cached config
func (cp *clientProvider) Close() error {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	cp.logger.Debug("Closing AWS client provider")
	cp.awsCfg = nil
	return nil
}

// ValidateCredentials resolves the caller identity of the configured
// credentials
func ValidateCredentials(ctx context.Context, provider ClientProvider) (Identity, error) {
	client, err := provider.GetSTSClient(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to create STS client: %w", err)
	}

	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, fmt.Errorf("credential validation failed: %w", err)
	}

	return Identity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
		UserID:  aws.ToString(out.UserId),
	}, nil
}
