// Package config provides configuration management for the buddy-monitor application.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"buddy-monitor/pkg/logger"
)

// Names of the built-in health checks.
const (
	CheckServer         = "server"
	CheckMemory         = "memory"
	CheckResponseTime   = "response_time"
	CheckErrorRate      = "error_rate"
	CheckRuntimeHeap    = "runtime_heap"
	CheckAWSCredentials = "aws_credentials"
	CheckObjectStorage  = "object_storage"
)

// Names of the built-in repairs.
const (
	RepairMemoryCleanup        = "memory_cleanup"
	RepairResponseOptimization = "response_optimization"
	RepairErrorMitigation      = "error_mitigation"
	RepairStabilityCheck       = "stability_check"
)

// Duration is a custom type for handling time.Duration in YAML
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	duration, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration format: %w", err)
	}

	*d = Duration(duration)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// String returns the string representation of Duration
func (d Duration) String() string {
	return time.Duration(d).String()
}

// Config represents the complete application configuration
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	Log           logger.Config       `yaml:"log"`
	Server        ServerConfig        `yaml:"server"`
	Samples       SamplesConfig       `yaml:"samples"`
	Checks        ChecksConfig        `yaml:"checks"`
	Repairs       RepairsConfig       `yaml:"repairs"`
	ErrorPatterns ErrorPatternsConfig `yaml:"error_patterns"`
}

// ServiceConfig identifies the monitored service
type ServiceConfig struct {
	Name string `yaml:"name" validate:"required"`
}

// ServerConfig holds the HTTP surface settings
type ServerConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Port            int      `yaml:"port" validate:"min=1,max=65535"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// SamplesConfig bounds the performance sample history
type SamplesConfig struct {
	MaxSamples int `yaml:"max_samples" validate:"min=1"`
	TrimTo     int `yaml:"trim_to" validate:"min=1"`
}

// CheckConfig holds configuration for an individual health check
type CheckConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Interval  Duration `yaml:"interval"`
	Critical  bool     `yaml:"critical"`
	Threshold float64  `yaml:"threshold" validate:"min=0"`
	Window    int      `yaml:"window" validate:"min=0"`
}

// ChecksConfig holds configuration for all built-in checks
type ChecksConfig struct {
	Server         CheckConfig          `yaml:"server"`
	Memory         CheckConfig          `yaml:"memory"`
	ResponseTime   CheckConfig          `yaml:"response_time"`
	ErrorRate      CheckConfig          `yaml:"error_rate"`
	RuntimeHeap    CheckConfig          `yaml:"runtime_heap"`
	AWSCredentials AWSCredentialsConfig `yaml:"aws_credentials"`
	ObjectStorage  ObjectStorageConfig  `yaml:"object_storage"`
}

// AWSCredentialsConfig configures the probe for the AWS credentials used
// by the speech and upload integrations
type AWSCredentialsConfig struct {
	CheckConfig     `yaml:",inline"`
	Region          string   `yaml:"region"`
	AccessKeyID     string   `yaml:"access_key_id"`
	SecretAccessKey string   `yaml:"secret_access_key"`
	MaxRetries      int      `yaml:"max_retries" validate:"min=0,max=10"`
	Timeout         Duration `yaml:"timeout"`
}

// ObjectStorageConfig configures the S3-compatible bucket probe
type ObjectStorageConfig struct {
	CheckConfig `yaml:",inline"`
	Endpoint    string `yaml:"endpoint"`
	Bucket      string `yaml:"bucket"`
	AccessKey   string `yaml:"access_key"`
	SecretKey   string `yaml:"secret_key"`
	UseSSL      bool   `yaml:"use_ssl"`
}

// RepairConfig holds configuration for an individual repair
type RepairConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Cooldown Duration `yaml:"cooldown"`
}

// RepairsConfig holds configuration for all built-in repairs
type RepairsConfig struct {
	MemoryCleanup        RepairConfig `yaml:"memory_cleanup"`
	ResponseOptimization RepairConfig `yaml:"response_optimization"`
	ErrorMitigation      RepairConfig `yaml:"error_mitigation"`
	StabilityCheck       RepairConfig `yaml:"stability_check"`
}

// ErrorPatternsConfig bounds the error pattern tracker
type ErrorPatternsConfig struct {
	MaxPatterns        int `yaml:"max_patterns" validate:"min=1"`
	RecentMessages     int `yaml:"recent_messages" validate:"min=1"`
	RecurringThreshold int `yaml:"recurring_threshold" validate:"min=1"`
	MaxKeyLength       int `yaml:"max_key_length" validate:"min=16"`
}

// Default returns the built-in configuration. Load starts from it, so a
// YAML file only needs to name what it changes.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{Name: "mental-health-buddy"},
		Log:     logger.Config{Level: "info", Format: "json"},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8080,
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: Duration(5 * time.Second),
		},
		Samples: SamplesConfig{MaxSamples: 2000, TrimTo: 1000},
		Checks: ChecksConfig{
			Server:       CheckConfig{Enabled: true, Interval: Duration(30 * time.Second), Critical: true},
			Memory:       CheckConfig{Enabled: true, Interval: Duration(15 * time.Second), Critical: true, Threshold: 0.85},
			ResponseTime: CheckConfig{Enabled: true, Interval: Duration(45 * time.Second), Threshold: 2000, Window: 10},
			ErrorRate:    CheckConfig{Enabled: true, Interval: Duration(60 * time.Second), Critical: true, Threshold: 0.10, Window: 50},
			RuntimeHeap:  CheckConfig{Enabled: true, Interval: Duration(30 * time.Second), Threshold: 0.90},
			AWSCredentials: AWSCredentialsConfig{
				CheckConfig: CheckConfig{Interval: Duration(5 * time.Minute)},
				Region:      "us-east-1",
				MaxRetries:  3,
				Timeout:     Duration(10 * time.Second),
			},
			ObjectStorage: ObjectStorageConfig{
				CheckConfig: CheckConfig{Interval: Duration(2 * time.Minute)},
				UseSSL:      true,
			},
		},
		Repairs: RepairsConfig{
			MemoryCleanup:        RepairConfig{Enabled: true, Cooldown: Duration(5 * time.Minute)},
			ResponseOptimization: RepairConfig{Enabled: true, Cooldown: Duration(10 * time.Minute)},
			ErrorMitigation:      RepairConfig{Enabled: true, Cooldown: Duration(15 * time.Minute)},
			StabilityCheck:       RepairConfig{Enabled: true, Cooldown: Duration(30 * time.Minute)},
		},
		ErrorPatterns: ErrorPatternsConfig{
			MaxPatterns:        1000,
			RecentMessages:     10,
			RecurringThreshold: 5,
			MaxKeyLength:       200,
		},
	}
}

// Load loads configuration from the specified file path. With an empty
// path the standard locations are searched; when none exists the defaults
// are returned.
func Load(configPath string) (*Config, error) {
	config := Default()

	if configPath == "" {
		found, err := findConfigFile()
		if err != nil {
			setDefaults(config)
			return config, nil
		}
		configPath = found
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	setDefaults(config)

	if err := validate(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// findConfigFile searches for config file in standard locations
func findConfigFile() (string, error) {
	possiblePaths := []string{
		"./config.yaml",
		"./configs/config.yaml",
		"/etc/buddy-monitor/config.yaml",
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found in standard locations: %v", possiblePaths)
}

// setDefaults fills zero values a YAML file may have cleared explicitly
func setDefaults(config *Config) {
	defaults := Default()

	if config.Log.Level == "" {
		config.Log.Level = defaults.Log.Level
	}
	if config.Log.Format == "" {
		config.Log.Format = defaults.Log.Format
	}
	if config.Server.Port == 0 {
		config.Server.Port = defaults.Server.Port
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}
	if config.Samples.MaxSamples == 0 {
		config.Samples.MaxSamples = defaults.Samples.MaxSamples
	}
	if config.Samples.TrimTo == 0 {
		config.Samples.TrimTo = defaults.Samples.TrimTo
	}

	setCheckDefaults(&config.Checks.Server, defaults.Checks.Server)
	setCheckDefaults(&config.Checks.Memory, defaults.Checks.Memory)
	setCheckDefaults(&config.Checks.ResponseTime, defaults.Checks.ResponseTime)
	setCheckDefaults(&config.Checks.ErrorRate, defaults.Checks.ErrorRate)
	setCheckDefaults(&config.Checks.RuntimeHeap, defaults.Checks.RuntimeHeap)
	setCheckDefaults(&config.Checks.AWSCredentials.CheckConfig, defaults.Checks.AWSCredentials.CheckConfig)
	setCheckDefaults(&config.Checks.ObjectStorage.CheckConfig, defaults.Checks.ObjectStorage.CheckConfig)
	if config.Checks.AWSCredentials.Timeout == 0 {
		config.Checks.AWSCredentials.Timeout = defaults.Checks.AWSCredentials.Timeout
	}

	// Repair cooldowns keep their loaded value; Load starts from Default,
	// so a zero cooldown was set on purpose and disables the cooldown.

	if config.ErrorPatterns.MaxPatterns == 0 {
		config.ErrorPatterns.MaxPatterns = defaults.ErrorPatterns.MaxPatterns
	}
	if config.ErrorPatterns.RecentMessages == 0 {
		config.ErrorPatterns.RecentMessages = defaults.ErrorPatterns.RecentMessages
	}
	if config.ErrorPatterns.RecurringThreshold == 0 {
		config.ErrorPatterns.RecurringThreshold = defaults.ErrorPatterns.RecurringThreshold
	}
	if config.ErrorPatterns.MaxKeyLength == 0 {
		config.ErrorPatterns.MaxKeyLength = defaults.ErrorPatterns.MaxKeyLength
	}
}

// setCheckDefaults sets default values for a check
func setCheckDefaults(check *CheckConfig, defaults CheckConfig) {
	if check.Interval == 0 {
		check.Interval = defaults.Interval
	}
	if check.Threshold == 0 {
		check.Threshold = defaults.Threshold
	}
	if check.Window == 0 {
		check.Window = defaults.Window
	}
}

// validate validates the configuration using struct tags
func validate(config *Config) error {
	validator := validator.New()

	if err := validator.Struct(config); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(config)
}

// validateCustomRules performs custom validation logic
func validateCustomRules(config *Config) error {
	if config.Samples.TrimTo > config.Samples.MaxSamples {
		return fmt.Errorf("samples.trim_to (%d) must not exceed samples.max_samples (%d)",
			config.Samples.TrimTo, config.Samples.MaxSamples)
	}

	for name, check := range config.checkMap() {
		if time.Duration(check.Interval) <= 0 {
			return fmt.Errorf("check %s: interval must be positive", name)
		}
	}

	for _, name := range RepairNames() {
		repair, _ := config.GetRepairConfig(name)
		if repair.Cooldown < 0 {
			return fmt.Errorf("repair %s: cooldown must not be negative", name)
		}
	}

	for _, name := range []string{CheckMemory, CheckRuntimeHeap, CheckErrorRate} {
		check, _ := config.GetCheckConfig(name)
		if check.Threshold > 1 {
			return fmt.Errorf("check %s: threshold %.2f must be a ratio between 0 and 1", name, check.Threshold)
		}
	}

	if aws := config.Checks.AWSCredentials; aws.Enabled && aws.Region == "" {
		return fmt.Errorf("check %s: region is required when enabled", CheckAWSCredentials)
	}

	if store := config.Checks.ObjectStorage; store.Enabled && (store.Endpoint == "" || store.Bucket == "") {
		return fmt.Errorf("check %s: endpoint and bucket are required when enabled", CheckObjectStorage)
	}

	return nil
}

// formatValidationError formats validation errors into user-friendly messages
func formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var messages []string
		for _, fieldError := range validationErrors {
			message := fmt.Sprintf("field '%s' %s", fieldError.Namespace(), getValidationMessage(fieldError))
			messages = append(messages, message)
		}
		return fmt.Errorf("validation failed: %v", messages)
	}
	return err
}

// getValidationMessage returns a user-friendly validation message
func getValidationMessage(fieldError validator.FieldError) string {
	switch fieldError.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fieldError.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fieldError.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fieldError.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fieldError.Tag())
	}
}

func (c *Config) checkMap() map[string]CheckConfig {
	return map[string]CheckConfig{
		CheckServer:         c.Checks.Server,
		CheckMemory:         c.Checks.Memory,
		CheckResponseTime:   c.Checks.ResponseTime,
		CheckErrorRate:      c.Checks.ErrorRate,
		CheckRuntimeHeap:    c.Checks.RuntimeHeap,
		CheckAWSCredentials: c.Checks.AWSCredentials.CheckConfig,
		CheckObjectStorage:  c.Checks.ObjectStorage.CheckConfig,
	}
}

// GetCheckConfig returns the configuration for a specific check
func (c *Config) GetCheckConfig(name string) (CheckConfig, error) {
	check, ok := c.checkMap()[name]
	if !ok {
		return CheckConfig{}, fmt.Errorf("unknown check: %s", name)
	}
	return check, nil
}

// CheckNames returns every built-in check name in a stable order
func CheckNames() []string {
	return []string{CheckServer, CheckMemory, CheckResponseTime, CheckErrorRate,
		CheckRuntimeHeap, CheckAWSCredentials, CheckObjectStorage}
}

// RepairNames returns every built-in repair name in evaluation order
func RepairNames() []string {
	return []string{RepairMemoryCleanup, RepairResponseOptimization,
		RepairErrorMitigation, RepairStabilityCheck}
}

// EnabledChecks returns the names of enabled checks in a stable order
func (c *Config) EnabledChecks() []string {
	checks := c.checkMap()

	var enabled []string
	for _, name := range CheckNames() {
		if checks[name].Enabled {
			enabled = append(enabled, name)
		}
	}
	return enabled
}

// GetRepairConfig returns the configuration for a specific repair
func (c *Config) GetRepairConfig(name string) (RepairConfig, error) {
	switch name {
	case RepairMemoryCleanup:
		return c.Repairs.MemoryCleanup, nil
	case RepairResponseOptimization:
		return c.Repairs.ResponseOptimization, nil
	case RepairErrorMitigation:
		return c.Repairs.ErrorMitigation, nil
	case RepairStabilityCheck:
		return c.Repairs.StabilityCheck, nil
	default:
		return RepairConfig{}, fmt.Errorf("unknown repair: %s", name)
	}
}

// Save saves the configuration to a file
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	// Write file with secure permissions
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configPath, err)
	}

	return nil
}
