package health

import (
	"time"

	"buddy-monitor/internal/aws"
	"buddy-monitor/internal/config"
	"buddy-monitor/internal/metrics"
	"buddy-monitor/internal/storage"
	"buddy-monitor/pkg/errors"
)

// Dependencies are the collaborators the built-in checks read from
type Dependencies struct {
	Store   *metrics.Store
	Memory  MemorySource
	AWS     aws.ClientProvider
	Buckets storage.BucketChecker
}

// RegisterDefaultChecks registers every enabled built-in check
func RegisterDefaultChecks(m *Monitor, cfg *config.Config, deps Dependencies) error {
	if deps.Store == nil {
		return errors.NewValidationError("MISSING_DEPENDENCY", "performance sample store is required")
	}
	if deps.Memory == nil {
		deps.Memory = RuntimeMemory
	}

	checks := cfg.Checks

	defs := []struct {
		name  string
		label string
		cfg   config.CheckConfig
		check func() (CheckFunc, error)
	}{
		{config.CheckServer, "Server Status", checks.Server, func() (CheckFunc, error) {
			return NewServerCheck(deps.Memory), nil
		}},
		{config.CheckMemory, "Memory Usage", checks.Memory, func() (CheckFunc, error) {
			return NewMemoryCheck(deps.Memory, checks.Memory.Threshold), nil
		}},
		{config.CheckResponseTime, "Response Time", checks.ResponseTime, func() (CheckFunc, error) {
			threshold := time.Duration(checks.ResponseTime.Threshold * float64(time.Millisecond))
			return NewResponseTimeCheck(deps.Store, checks.ResponseTime.Window, threshold), nil
		}},
		{config.CheckErrorRate, "Error Rate", checks.ErrorRate, func() (CheckFunc, error) {
			return NewErrorRateCheck(deps.Store, checks.ErrorRate.Window, checks.ErrorRate.Threshold), nil
		}},
		{config.CheckRuntimeHeap, "Runtime Heap", checks.RuntimeHeap, func() (CheckFunc, error) {
			return NewRuntimeHeapCheck(deps.Memory, checks.RuntimeHeap.Threshold), nil
		}},
		{config.CheckAWSCredentials, "AWS Credentials", checks.AWSCredentials.CheckConfig, func() (CheckFunc, error) {
			if deps.AWS == nil {
				return nil, errors.NewConfigError("MISSING_DEPENDENCY", "aws_credentials check enabled without an AWS client")
			}
			return NewAWSCredentialsCheck(deps.AWS, time.Duration(checks.AWSCredentials.Timeout)), nil
		}},
		{config.CheckObjectStorage, "Object Storage", checks.ObjectStorage.CheckConfig, func() (CheckFunc, error) {
			if deps.Buckets == nil {
				return nil, errors.NewConfigError("MISSING_DEPENDENCY", "object_storage check enabled without a storage client")
			}
			return NewObjectStorageCheck(deps.Buckets, checks.ObjectStorage.Bucket, 10*time.Second), nil
		}},
	}

	for _, def := range defs {
		if !def.cfg.Enabled {
			continue
		}

		check, err := def.check()
		if err != nil {
			return err
		}

		if err := m.RegisterCheck(def.name, Definition{
			Label:    def.label,
			Interval: time.Duration(def.cfg.Interval),
			Critical: def.cfg.Critical,
			Check:    check,
		}); err != nil {
			return err
		}
	}

	return nil
}
