package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and environment variables.
type Config struct {
	Simulator SimulatorConfig `yaml:"simulator"`
	Logging   LoggingConfig   `yaml:"logging"`
	Callbacks CallbacksConfig `yaml:"callbacks"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// SimulatorConfig holds the gateway sandbox behaviour.
type SimulatorConfig struct {
	BaseURL         string   `yaml:"base_url"`         // Prefix of generated checkout URLs
	CheckoutPath    string   `yaml:"checkout_path"`    // Path between base URL and token (default: /checkout/)
	DefaultCurrency string   `yaml:"default_currency"` // Used when a request omits currency (default: XOF)
	SuccessRate     float64  `yaml:"success_rate"`     // Approval probability for rate-based resolution, 0..1
	SimulateDelay   bool     `yaml:"simulate_delay"`   // Inject latency into initiate and status checks
	MinDelay        Duration `yaml:"min_delay"`
	MaxDelay        Duration `yaml:"max_delay"`
	DuplicatePolicy string   `yaml:"duplicate_policy"` // overwrite or reject
	TokenBytes      int      `yaml:"token_bytes"`      // Random bytes per payment token (hex doubles the length)
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error (default: info)
	Format      string `yaml:"format"`      // json, console (default: json)
	Environment string `yaml:"environment"` // production, staging, development
}

// CallbacksConfig controls how resolved transactions are handed to the webhook outbox.
type CallbacksConfig struct {
	Enabled         bool              `yaml:"enabled"`
	Headers         map[string]string `yaml:"headers"`
	MaxAttempts     int               `yaml:"max_attempts"`
	InitialInterval Duration          `yaml:"initial_interval"` // First retry backoff for drained deliveries
	MaxInterval     Duration          `yaml:"max_interval"`
	Multiplier      float64           `yaml:"multiplier"`
	Breaker         BreakerConfig     `yaml:"breaker"` // Per-destination circuit breaker used while draining
}

// BreakerConfig configures the circuit breaker placed in front of each webhook destination.
type BreakerConfig struct {
	Enabled             bool     `yaml:"enabled"`
	MaxRequests         uint32   `yaml:"max_requests"` // Trial deliveries while half-open
	Interval            Duration `yaml:"interval"`
	Timeout             Duration `yaml:"timeout"` // Open period before half-open
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"`
	FailureRatio        float64  `yaml:"failure_ratio"`
	MinRequests         uint32   `yaml:"min_requests"`
}

// MetricsConfig holds Prometheus instrumentation settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}
