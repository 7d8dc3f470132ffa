package health

import (
	"context"
	"errors"
	"testing"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"buddy-monitor/internal/aws"
	"buddy-monitor/internal/config"
	"buddy-monitor/internal/metrics"
)

type mockSTSClient struct {
	shouldFail bool
}

func (m *mockSTSClient) GetCallerIdentity(_ context.Context, _ *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if m.shouldFail {
		return nil, errors.New("mock AWS error")
	}
	return &sts.GetCallerIdentityOutput{
		Account: awssdk.String("123456789012"),
		Arn:     awssdk.String("arn:aws:iam::123456789012:user/buddy"),
	}, nil
}

// mockClientProvider implements aws.ClientProvider for testing
type mockClientProvider struct {
	shouldFail bool
	client     *mockSTSClient
}

func (m *mockClientProvider) GetSTSClient(_ context.Context) (aws.STSClient, error) {
	if m.shouldFail {
		return nil, errors.New("failed to create client")
	}
	if m.client == nil {
		m.client = &mockSTSClient{}
	}
	return m.client, nil
}

func (m *mockClientProvider) Region() string { return "us-east-1" }

func (m *mockClientProvider) Close() error { return nil }

type mockBucketChecker struct {
	exists bool
	err    error
}

func (m *mockBucketChecker) BucketExists(_ context.Context, _ string) (bool, error) {
	return m.exists, m.err
}

func TestAWSCredentialsCheck(t *testing.T) {
	tests := []struct {
		name     string
		provider *mockClientProvider
		healthy  bool
	}{
		{"valid credentials", &mockClientProvider{}, true},
		{"rejected credentials", &mockClientProvider{client: &mockSTSClient{shouldFail: true}}, false},
		{"client creation fails", &mockClientProvider{shouldFail: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reading, err := NewAWSCredentialsCheck(tt.provider, time.Second)(context.Background())
			if err != nil {
				t.Fatalf("Expected failures to be readings, got error %v", err)
			}
			if reading.Healthy != tt.healthy {
				t.Errorf("Expected healthy=%v, got %v (%s)", tt.healthy, reading.Healthy, reading.Message)
			}
			if reading.Details["region"] != "us-east-1" {
				t.Errorf("Expected region detail, got %v", reading.Details["region"])
			}
			if tt.healthy && reading.Details["account"] != "123456789012" {
				t.Errorf("Expected account detail, got %v", reading.Details["account"])
			}
		})
	}
}

func TestObjectStorageCheck(t *testing.T) {
	tests := []struct {
		name    string
		checker *mockBucketChecker
		healthy bool
	}{
		{"bucket exists", &mockBucketChecker{exists: true}, true},
		{"bucket missing", &mockBucketChecker{exists: false}, false},
		{"endpoint unreachable", &mockBucketChecker{err: errors.New("connection refused")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reading, err := NewObjectStorageCheck(tt.checker, "uploads", time.Second)(context.Background())
			if err != nil {
				t.Fatalf("Expected failures to be readings, got error %v", err)
			}
			if reading.Healthy != tt.healthy {
				t.Errorf("Expected healthy=%v, got %v (%s)", tt.healthy, reading.Healthy, reading.Message)
			}
			if reading.Details["bucket"] != "uploads" {
				t.Errorf("Expected bucket detail, got %v", reading.Details["bucket"])
			}
		})
	}
}

func TestRegisterDefaultChecksWithProbes(t *testing.T) {
	cfg := config.Default()
	cfg.Checks.AWSCredentials.Enabled = true
	cfg.Checks.ObjectStorage.Enabled = true
	cfg.Checks.ObjectStorage.Bucket = "uploads"

	m := NewMonitor("test-service", "1.0.0", nil, newTestLogger(t))
	err := RegisterDefaultChecks(m, cfg, Dependencies{
		Store:   metrics.NewStore(100, 50),
		Memory:  fixedMemory(MemoryStats{HeapSys: 100}),
		AWS:     &mockClientProvider{},
		Buckets: &mockBucketChecker{exists: true},
	})
	if err != nil {
		t.Fatalf("Failed to register checks: %v", err)
	}

	status := m.GetStatus(context.Background())
	for _, name := range []string{config.CheckAWSCredentials, config.CheckObjectStorage} {
		reading, ok := status[name]
		if !ok {
			t.Errorf("Expected %s reading", name)
			continue
		}
		if !reading.Healthy {
			t.Errorf("Expected %s healthy, got %s", name, reading.Message)
		}
	}
}
