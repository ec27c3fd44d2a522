package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := cfg.parseFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the finalized built-in configuration without reading files or the environment.
func Default() *Config {
	cfg := defaultConfig()
	_ = cfg.finalize()
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Simulator: SimulatorConfig{
			BaseURL:         "http://localhost:8080",
			CheckoutPath:    "/checkout/",
			DefaultCurrency: "XOF",
			SuccessRate:     0.8,
			SimulateDelay:   false,
			MinDelay:        Duration{Duration: 100 * time.Millisecond},
			MaxDelay:        Duration{Duration: 500 * time.Millisecond},
			DuplicatePolicy: "overwrite",
			TokenBytes:      16,
		},
		Callbacks: CallbacksConfig{
			Enabled:         true,
			Headers:         make(map[string]string),
			MaxAttempts:     5,
			InitialInterval: Duration{Duration: 1 * time.Second},
			MaxInterval:     Duration{Duration: 5 * time.Minute},
			Multiplier:      2.0,
			Breaker: BreakerConfig{
				Enabled:             true,
				MaxRequests:         1,
				Interval:            Duration{Duration: 60 * time.Second},
				Timeout:             Duration{Duration: 30 * time.Second},
				ConsecutiveFailures: 5,
				FailureRatio:        0.7,
				MinRequests:         20,
			},
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "paysim",
		},
	}
}

// parseFile reads and unmarshals a YAML configuration file.
func (c *Config) parseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

// YAML renders the configuration in the same shape Load accepts.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config yaml: %w", err)
	}
	return out, nil
}
