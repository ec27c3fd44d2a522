package paysim

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/CedrosPay/paysim/internal/callbacks"
	"github.com/CedrosPay/paysim/internal/circuitbreaker"
	"github.com/CedrosPay/paysim/internal/config"
	"github.com/CedrosPay/paysim/internal/lifecycle"
	"github.com/CedrosPay/paysim/internal/logger"
	"github.com/CedrosPay/paysim/internal/metrics"
	"github.com/CedrosPay/paysim/internal/random"
	"github.com/CedrosPay/paysim/internal/simulator"
	"github.com/CedrosPay/paysim/internal/storage"
)

// Version is reported in log output.
const Version = "0.1.0"

// App wires the simulator with its store, webhook outbox and instrumentation.
type App struct {
	Config    *config.Config
	Simulator *simulator.Simulator
	Store     storage.TransactionStore
	Outbox    storage.WebhookOutbox
	Notifier  callbacks.Notifier
	Breakers  *circuitbreaker.Manager
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger

	// Registry holds the app's collectors when no registerer was injected.
	// Serve it with promhttp.HandlerFor to expose the metrics.
	Registry *prometheus.Registry

	clock func() time.Time

	resourceManager *lifecycle.Manager
}

// Option configures App construction.
type Option func(*options)

type options struct {
	store      storage.TransactionStore
	outbox     storage.WebhookOutbox
	notifier   callbacks.Notifier
	random     random.Source
	registerer prometheus.Registerer
	logger     *zerolog.Logger
	clock      func() time.Time
	sleeper    simulator.Sleeper
}

// WithStore sets a custom transaction store. The caller keeps ownership of it.
func WithStore(store storage.TransactionStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithOutbox sets the webhook outbox used by the default notifier.
func WithOutbox(outbox storage.WebhookOutbox) Option {
	return func(o *options) {
		o.outbox = outbox
	}
}

// WithNotifier replaces the outbox-backed notifier.
func WithNotifier(notifier callbacks.Notifier) Option {
	return func(o *options) {
		o.notifier = notifier
	}
}

// WithRandom injects the random source, e.g. random.Seeded for reproducible runs.
func WithRandom(src random.Source) Option {
	return func(o *options) {
		o.random = src
	}
}

// WithRegisterer registers metrics on registerer instead of a registry owned by the app.
func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = registerer
	}
}

// WithLogger overrides the logger built from the logging config section.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &log
	}
}

// WithClock overrides time.Now for the simulator and outbox notifier.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// WithSleeper overrides how simulated latency is waited out.
func WithSleeper(sleep simulator.Sleeper) Option {
	return func(o *options) {
		o.sleeper = sleep
	}
}

// New assembles a simulator from cfg.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("paysim: config required")
	}

	optState := options{}
	for _, opt := range opts {
		opt(&optState)
	}

	app := &App{Config: cfg, clock: optState.clock}

	if optState.logger != nil {
		app.Logger = *optState.logger
	} else {
		app.Logger = logger.New(logger.Config{
			Level:       cfg.Logging.Level,
			Format:      cfg.Logging.Format,
			Service:     "paysim",
			Version:     Version,
			Environment: cfg.Logging.Environment,
		})
	}
	app.resourceManager = lifecycle.NewManager(app.Logger)

	if optState.store != nil {
		app.Store = optState.store
	} else {
		app.Store = storage.NewMemoryStore()
		app.resourceManager.Register("transaction-store", app.Store)
	}

	if optState.outbox != nil {
		app.Outbox = optState.outbox
	} else {
		app.Outbox = storage.NewMemoryOutbox().WithClock(optState.clock)
	}

	if cfg.Metrics.Enabled {
		registerer := optState.registerer
		if registerer == nil {
			app.Registry = prometheus.NewRegistry()
			registerer = app.Registry
		}
		app.Metrics = metrics.NewWithNamespace(registerer, cfg.Metrics.Namespace)
	}

	switch {
	case optState.notifier != nil:
		app.Notifier = optState.notifier
	case cfg.Callbacks.Enabled:
		app.Notifier = callbacks.NewOutboxNotifier(callbacks.OutboxNotifierOptions{
			Outbox: app.Outbox,
			Config: cfg.Callbacks,
			Logger: app.Logger,
			Now:    optState.clock,
		})
	default:
		app.Notifier = callbacks.NoopNotifier{}
	}

	app.Breakers = circuitbreaker.NewManagerFromConfig(cfg.Callbacks.Breaker, app.Logger)

	simOpts := []simulator.Option{
		simulator.WithNotifier(app.Notifier),
		simulator.WithLogger(app.Logger),
		simulator.WithRandom(optState.random),
		simulator.WithClock(optState.clock),
		simulator.WithSleeper(optState.sleeper),
	}
	if app.Metrics != nil {
		simOpts = append(simOpts, simulator.WithMetrics(app.Metrics))
	}

	sim, err := simulator.New(app.Store, SimulatorConfig(cfg.Simulator), simOpts...)
	if err != nil {
		_ = app.resourceManager.Close()
		return nil, fmt.Errorf("paysim: %w", err)
	}
	app.Simulator = sim

	return app, nil
}

// SimulatorConfig converts the YAML simulator section into simulator settings.
func SimulatorConfig(cfg config.SimulatorConfig) simulator.Config {
	return simulator.Config{
		BaseURL:         cfg.BaseURL,
		CheckoutPath:    cfg.CheckoutPath,
		DefaultCurrency: cfg.DefaultCurrency,
		SuccessRate:     cfg.SuccessRate,
		SimulateDelay:   cfg.SimulateDelay,
		MinDelay:        cfg.MinDelay.Duration,
		MaxDelay:        cfg.MaxDelay.Duration,
		DuplicatePolicy: simulator.DuplicatePolicy(cfg.DuplicatePolicy),
		TokenBytes:      cfg.TokenBytes,
	}
}

// NewDispatcher returns a dispatcher that drains the app's outbox through
// deliverer, guarded by the per-destination circuit breakers.
// The caller owns the dispatcher; if it is started, Stop it before Close.
func (a *App) NewDispatcher(deliverer callbacks.Deliverer) *callbacks.Dispatcher {
	return callbacks.NewDispatcher(callbacks.DispatcherOptions{
		Outbox:      a.Outbox,
		Deliverer:   callbacks.GuardedDeliverer(deliverer, a.Breakers),
		RetryConfig: callbacks.RetryConfigFrom(a.Config.Callbacks),
		Logger:      a.Logger,
		Now:         a.clock,
	})
}

// Close releases resources owned by the app.
func (a *App) Close() error {
	return a.resourceManager.Close()
}

// Config is an exported alias of the internal configuration struct for embedding use.
type Config = config.Config

// LoadConfig wraps the internal loader for consumers embedding the simulator.
func LoadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *config.Config {
	return config.Default()
}
