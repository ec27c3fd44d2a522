package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/CedrosPay/paysim/internal/config"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// ErrOpen is returned by Execute while a destination's breaker rejects calls.
var ErrOpen = errors.New("circuitbreaker: destination unavailable")

// Manager keeps one circuit breaker per webhook destination so a failing
// endpoint cannot hold back deliveries to healthy ones.
type Manager struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	config   Config
	logger   zerolog.Logger
}

// Config configures every breaker created by a Manager.
type Config struct {
	Enabled bool

	// MaxRequests is the number of trial calls allowed while half-open. Default: 1
	MaxRequests uint32

	// Interval clears the closed-state counts periodically. 0 never clears.
	Interval time.Duration

	// Timeout is how long the breaker stays open before going half-open. Default: 30s
	Timeout time.Duration

	// Trip after ConsecutiveFailures, or once FailureRatio is reached over at least MinRequests.
	ConsecutiveFailures uint32
	FailureRatio        float64
	MinRequests         uint32
}

// DefaultConfig returns the breaker settings used for webhook destinations.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		MaxRequests:         1,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
		FailureRatio:        0.7,
		MinRequests:         20,
	}
}

// NewManagerFromConfig creates a manager from the callbacks breaker section.
func NewManagerFromConfig(cfg config.BreakerConfig, logger zerolog.Logger) *Manager {
	return NewManager(Config{
		Enabled:             cfg.Enabled,
		MaxRequests:         cfg.MaxRequests,
		Interval:            cfg.Interval.Duration,
		Timeout:             cfg.Timeout.Duration,
		ConsecutiveFailures: cfg.ConsecutiveFailures,
		FailureRatio:        cfg.FailureRatio,
		MinRequests:         cfg.MinRequests,
	}, logger)
}

// NewManager creates a manager. A disabled manager passes every call through.
func NewManager(cfg Config, logger zerolog.Logger) *Manager {
	return &Manager{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		config:   cfg,
		logger:   logger,
	}
}

// Execute runs fn under the breaker for destination. When the breaker is open
// fn is not called and the returned error wraps ErrOpen.
func (m *Manager) Execute(destination string, fn func() error) error {
	if m == nil || !m.config.Enabled {
		return fn()
	}

	_, err := m.breaker(destination).Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Join(ErrOpen, err)
	}
	return err
}

// State returns the breaker state for destination: "closed", "half-open", "open",
// or "disabled" when breakers are off.
func (m *Manager) State(destination string) string {
	if m == nil || !m.config.Enabled {
		return "disabled"
	}
	return m.breaker(destination).State().String()
}

// Counts returns the current counts for destination.
func (m *Manager) Counts(destination string) Counts {
	if m == nil || !m.config.Enabled {
		return Counts{}
	}

	c := m.breaker(destination).Counts()
	return Counts{
		Requests:             c.Requests,
		TotalSuccesses:       c.TotalSuccesses,
		TotalFailures:        c.TotalFailures,
		ConsecutiveSuccesses: c.ConsecutiveSuccesses,
		ConsecutiveFailures:  c.ConsecutiveFailures,
	}
}

// Counts represents circuit breaker statistics.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (m *Manager) breaker(destination string) *gobreaker.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.breakers[destination]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(m.settings(destination))
	m.breakers[destination] = b
	return b
}

func (m *Manager) settings(name string) gobreaker.Settings {
	cfg := m.config
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			if cfg.FailureRatio > 0 && cfg.MinRequests > 0 && counts.Requests >= cfg.MinRequests {
				return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
			}
			return false
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			m.logger.Warn().
				Str("destination", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuitbreaker.state_changed")
		},
	}
}
