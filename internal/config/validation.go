package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
)

// finalize applies defaults and validates the configuration.
func (c *Config) finalize() error {
	// Apply defaults
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Environment == "" {
		c.Logging.Environment = "development"
	}
	if c.Simulator.CheckoutPath == "" {
		c.Simulator.CheckoutPath = "/checkout/"
	}
	if c.Simulator.DefaultCurrency == "" {
		c.Simulator.DefaultCurrency = "XOF"
	}
	if c.Simulator.DuplicatePolicy == "" {
		c.Simulator.DuplicatePolicy = "overwrite"
	}
	if c.Simulator.TokenBytes == 0 {
		c.Simulator.TokenBytes = 16
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "paysim"
	}

	// Normalize
	c.Simulator.SuccessRate = clampRate(c.Simulator.SuccessRate)
	c.Simulator.BaseURL = strings.TrimRight(strings.TrimSpace(c.Simulator.BaseURL), "/")
	c.Simulator.CheckoutPath = normalizeCheckoutPath(c.Simulator.CheckoutPath)
	c.Simulator.DefaultCurrency = strings.ToUpper(strings.TrimSpace(c.Simulator.DefaultCurrency))
	c.Simulator.DuplicatePolicy = strings.ToLower(strings.TrimSpace(c.Simulator.DuplicatePolicy))

	return c.validate()
}

// validate checks that required configuration fields are set correctly.
func (c *Config) validate() error {
	var errs []string

	// Simulator validation
	if c.Simulator.BaseURL == "" {
		errs = append(errs, "simulator.base_url is required")
	} else if u, err := url.Parse(c.Simulator.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("simulator.base_url %q must be an absolute URL", c.Simulator.BaseURL))
	}
	if c.Simulator.MinDelay.Duration < 0 || c.Simulator.MaxDelay.Duration < 0 {
		errs = append(errs, "simulator.min_delay and simulator.max_delay must not be negative")
	}
	if c.Simulator.MaxDelay.Duration < c.Simulator.MinDelay.Duration {
		errs = append(errs, "simulator.max_delay must be greater than or equal to simulator.min_delay")
	}
	switch c.Simulator.DuplicatePolicy {
	case "overwrite", "reject":
	default:
		errs = append(errs, fmt.Sprintf("simulator.duplicate_policy %q must be 'overwrite' or 'reject'", c.Simulator.DuplicatePolicy))
	}
	if c.Simulator.TokenBytes < 16 || c.Simulator.TokenBytes > 64 {
		errs = append(errs, "simulator.token_bytes must be between 16 and 64")
	}

	// Logging validation
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("logging.format %q must be 'json' or 'console'", c.Logging.Format))
	}

	// Callbacks validation
	if c.Callbacks.MaxAttempts < 1 {
		errs = append(errs, "callbacks.max_attempts must be at least 1")
	}
	if c.Callbacks.Multiplier != 0 && c.Callbacks.Multiplier < 1 {
		errs = append(errs, "callbacks.multiplier must be at least 1")
	}
	if b := c.Callbacks.Breaker; b.Enabled {
		if b.FailureRatio < 0 || b.FailureRatio > 1 {
			errs = append(errs, "callbacks.breaker.failure_ratio must be between 0 and 1")
		}
		if b.ConsecutiveFailures == 0 && b.FailureRatio == 0 {
			errs = append(errs, "callbacks.breaker needs consecutive_failures or failure_ratio")
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// clampRate bounds a success rate to [0, 1] the same way the simulator's setter does.
func clampRate(rate float64) float64 {
	switch {
	case math.IsNaN(rate), rate < 0:
		return 0
	case rate > 1:
		return 1
	}
	return rate
}

// normalizeCheckoutPath ensures the path starts and ends with /.
// Examples: "pay" -> "/pay/", "/checkout" -> "/checkout/"
func normalizeCheckoutPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return path
}
