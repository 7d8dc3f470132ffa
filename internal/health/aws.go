package health

import (
	"context"
	"fmt"
	"time"

	"buddy-monitor/internal/aws"
	"buddy-monitor/internal/storage"
	"buddy-monitor/pkg/errors"
)

// NewAWSCredentialsCheck verifies that the credentials used by the speech
// and upload integrations still resolve to an identity. A rejected call is
// an unhealthy reading, not a check error.
func NewAWSCredentialsCheck(provider aws.ClientProvider, timeout time.Duration) CheckFunc {
	return func(ctx context.Context) (Reading, error) {
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		details := map[string]interface{}{
			"region": provider.Region(),
		}

		identity, err := aws.ValidateCredentials(checkCtx, provider)
		if err != nil {
			storageErr := errors.NewStorageError("AWS_CREDENTIALS", err)
			details["error"] = storageErr.Error()
			return Reading{
				Healthy: false,
				Message: "AWS credentials rejected",
				Details: details,
			}, nil
		}

		details["account"] = identity.Account
		details["arn"] = identity.ARN

		return Reading{
			Healthy: true,
			Message: fmt.Sprintf("AWS credentials valid for account %s", identity.Account),
			Details: details,
		}, nil
	}
}

// NewObjectStorageCheck verifies the upload bucket is reachable
func NewObjectStorageCheck(checker storage.BucketChecker, bucket string, timeout time.Duration) CheckFunc {
	return func(ctx context.Context) (Reading, error) {
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		details := map[string]interface{}{
			"bucket": bucket,
		}

		exists, err := checker.BucketExists(checkCtx, bucket)
		switch {
		case err != nil:
			details["error"] = errors.NewStorageError("BUCKET_UNREACHABLE", err).Error()
			return Reading{
				Healthy: false,
				Message: "Object storage unreachable",
				Details: details,
			}, nil
		case !exists:
			return Reading{
				Healthy: false,
				Message: fmt.Sprintf("Bucket %s does not exist", bucket),
				Details: details,
			}, nil
		}

		return Reading{
			Healthy: true,
			Message: fmt.Sprintf("Bucket %s reachable", bucket),
			Details: details,
		}, nil
	}
}
