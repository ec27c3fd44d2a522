package config

import (
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration.
// All env vars use PAYSIM_ prefix for namespace isolation, except CALLBACK_HEADER_*.
func (c *Config) applyEnvOverrides() {
	// Simulator config
	setIfEnv(&c.Simulator.BaseURL, "PAYSIM_BASE_URL")
	setIfEnv(&c.Simulator.CheckoutPath, "PAYSIM_CHECKOUT_PATH")
	setIfEnv(&c.Simulator.DefaultCurrency, "PAYSIM_DEFAULT_CURRENCY")
	setFloatIfEnv(&c.Simulator.SuccessRate, "PAYSIM_SUCCESS_RATE")
	setBoolIfEnv(&c.Simulator.SimulateDelay, "PAYSIM_SIMULATE_DELAY")
	setDurationIfEnv(&c.Simulator.MinDelay, "PAYSIM_MIN_DELAY")
	setDurationIfEnv(&c.Simulator.MaxDelay, "PAYSIM_MAX_DELAY")
	setIfEnv(&c.Simulator.DuplicatePolicy, "PAYSIM_DUPLICATE_POLICY")
	setIntIfEnv(&c.Simulator.TokenBytes, "PAYSIM_TOKEN_BYTES")

	// Logging config
	setIfEnv(&c.Logging.Level, "PAYSIM_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "PAYSIM_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "PAYSIM_ENVIRONMENT")

	// Callbacks config
	setBoolIfEnv(&c.Callbacks.Enabled, "PAYSIM_CALLBACKS_ENABLED")
	setIntIfEnv(&c.Callbacks.MaxAttempts, "PAYSIM_CALLBACKS_MAX_ATTEMPTS")
	setBoolIfEnv(&c.Callbacks.Breaker.Enabled, "PAYSIM_CALLBACKS_BREAKER_ENABLED")
	// Load callback headers (CALLBACK_HEADER_*)
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, "CALLBACK_HEADER_") {
			continue
		}
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimPrefix(parts[0], "CALLBACK_HEADER_")
		if name == "" {
			continue
		}
		if c.Callbacks.Headers == nil {
			c.Callbacks.Headers = make(map[string]string)
		}
		headerName := textproto.CanonicalMIMEHeaderKey(strings.ReplaceAll(name, "_", "-"))
		c.Callbacks.Headers[headerName] = parts[1]
	}

	// Metrics config
	setBoolIfEnv(&c.Metrics.Enabled, "PAYSIM_METRICS_ENABLED")
	setIfEnv(&c.Metrics.Namespace, "PAYSIM_METRICS_NAMESPACE")
}

// setIfEnv sets a string pointer to the environment variable value if it exists.
func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// setBoolIfEnv sets a boolean pointer from an environment variable.
// Accepts "1", "true", "TRUE", "True" as true values.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

// setDurationIfEnv sets a Duration pointer from an environment variable.
// Uses time.ParseDuration to parse values like "50ms", "2s".
func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}

// setFloatIfEnv sets a float pointer from an environment variable. Unparseable values are ignored.
func setFloatIfEnv(target *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*target = f
		}
	}
}

// setIntIfEnv sets an int pointer from an environment variable. Unparseable values are ignored.
func setIntIfEnv(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*target = n
		}
	}
}
