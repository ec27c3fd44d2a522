package simulator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	apierrors "github.com/CedrosPay/paysim/internal/errors"
	"github.com/CedrosPay/paysim/internal/logger"
	"github.com/CedrosPay/paysim/internal/metrics"
	"github.com/CedrosPay/paysim/internal/random"
	"github.com/rs/zerolog"
)

// DuplicatePolicy controls what Initiate does with a reference that already exists.
type DuplicatePolicy string

const (
	// DuplicateOverwrite replaces the existing record with a fresh PENDING one.
	DuplicateOverwrite DuplicatePolicy = "overwrite"
	// DuplicateReject fails the initiation and leaves the existing record untouched.
	DuplicateReject DuplicatePolicy = "reject"
)

// Defaults applied by DefaultConfig and by New for zero fields.
const (
	DefaultBaseURL      = "http://localhost:8080"
	DefaultCheckoutPath = "/checkout/"
	DefaultCurrency     = "XOF"
	DefaultSuccessRate  = 0.8
	DefaultMinDelay     = 100 * time.Millisecond
	DefaultMaxDelay     = 500 * time.Millisecond
	DefaultTokenBytes   = 16
	MinTokenBytes       = 16 // smaller TokenBytes values are raised to this
)

// Config holds simulator settings. SuccessRate and the delay fields are only
// initial values; they can be changed at runtime through the setters.
type Config struct {
	BaseURL         string
	CheckoutPath    string
	DefaultCurrency string
	SuccessRate     float64
	SimulateDelay   bool
	MinDelay        time.Duration
	MaxDelay        time.Duration
	DuplicatePolicy DuplicatePolicy
	TokenBytes      int
}

// DefaultConfig returns the settings of a freshly installed gateway sandbox.
func DefaultConfig() Config {
	return Config{
		BaseURL:         DefaultBaseURL,
		CheckoutPath:    DefaultCheckoutPath,
		DefaultCurrency: DefaultCurrency,
		SuccessRate:     DefaultSuccessRate,
		MinDelay:        DefaultMinDelay,
		MaxDelay:        DefaultMaxDelay,
		DuplicatePolicy: DuplicateOverwrite,
		TokenBytes:      DefaultTokenBytes,
	}
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Option customizes a Simulator.
type Option func(*Simulator)

// WithRandom replaces the crypto-backed random source.
func WithRandom(src random.Source) Option {
	return func(s *Simulator) {
		if src != nil {
			s.rng = src
		}
	}
}

// WithNotifier sets the receiver of webhook payloads for resolved transactions.
func WithNotifier(n Notifier) Option {
	return func(s *Simulator) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSleeper overrides how simulated latency is waited out.
func WithSleeper(sleep Sleeper) Option {
	return func(s *Simulator) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Simulator) {
		s.log = log
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Simulator) {
		s.metrics = m
	}
}

// Simulator is an in-process stand-in for a hosted payment gateway.
// All methods are safe for concurrent use.
type Simulator struct {
	store    Store
	rng      random.Source
	notifier Notifier
	now      func() time.Time
	sleep    Sleeper
	log      zerolog.Logger
	metrics  *metrics.Metrics

	baseURL         string
	checkoutPath    string
	defaultCurrency string
	duplicates      DuplicatePolicy
	tokenBytes      int

	mu            sync.RWMutex
	successRate   float64
	simulateDelay bool
	minDelay      time.Duration
	maxDelay      time.Duration
}

// New constructs a simulator that owns store.
func New(store Store, cfg Config, opts ...Option) (*Simulator, error) {
	if store == nil {
		return nil, errors.New("simulator: store is required")
	}

	s := &Simulator{
		store:    store,
		rng:      random.Crypto(),
		notifier: noopNotifier{},
		now:      time.Now,
		sleep:    sleepContext,
		log:      zerolog.Nop(),

		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		checkoutPath:    cfg.CheckoutPath,
		defaultCurrency: strings.ToUpper(strings.TrimSpace(cfg.DefaultCurrency)),
		duplicates:      cfg.DuplicatePolicy,
		tokenBytes:      cfg.TokenBytes,
	}
	if s.baseURL == "" {
		s.baseURL = DefaultBaseURL
	}
	if s.checkoutPath == "" {
		s.checkoutPath = DefaultCheckoutPath
	}
	if s.defaultCurrency == "" {
		s.defaultCurrency = DefaultCurrency
	}
	switch s.duplicates {
	case "":
		s.duplicates = DuplicateOverwrite
	case DuplicateOverwrite, DuplicateReject:
	default:
		return nil, fmt.Errorf("simulator: unknown duplicate policy %q", cfg.DuplicatePolicy)
	}
	if s.tokenBytes < MinTokenBytes {
		s.tokenBytes = MinTokenBytes
	}

	s.SetSuccessRate(cfg.SuccessRate)
	s.SetSimulateDelay(cfg.SimulateDelay)
	s.SetDelayBounds(cfg.MinDelay, cfg.MaxDelay)

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Initiate validates a payment request and stores a new PENDING transaction.
func (s *Simulator) Initiate(ctx context.Context, data PaymentData, successURL, cancelURL, webhookURL string) (InitiationResult, error) {
	const op = "initiate"

	if err := s.delay(ctx, op); err != nil {
		return InitiationResult{}, err
	}

	if !data.Amount.IsPositive() {
		return InitiationResult{}, s.fail(ctx, op, apierrors.Validation(apierrors.ErrCodeInvalidAmount, "invalid amount"))
	}
	reference := strings.TrimSpace(data.ID)
	if reference == "" {
		return InitiationResult{}, s.fail(ctx, op, apierrors.Validation(apierrors.ErrCodeMissingField, "missing transaction id"))
	}

	token, err := random.Token(s.rng, s.tokenBytes)
	if err != nil {
		return InitiationResult{}, s.fail(ctx, op, apierrors.New(apierrors.ErrCodeInternalError, fmt.Sprintf("generate payment token: %v", err), nil))
	}

	currency := strings.ToUpper(strings.TrimSpace(data.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}

	now := s.now().UTC()
	tx := Transaction{
		Reference:   reference,
		Token:       token,
		Amount:      data.Amount,
		Currency:    currency,
		Description: data.Description,
		Customer:    data.Customer,
		SuccessURL:  successURL,
		CancelURL:   cancelURL,
		WebhookURL:  webhookURL,
		CheckoutURL: s.baseURL + s.checkoutPath + token,
		Metadata:    data.Metadata,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}.Clone()

	if err := s.store.Save(ctx, tx, s.duplicates == DuplicateOverwrite); err != nil {
		return InitiationResult{}, s.fail(ctx, op, s.translate(err, reference))
	}

	if s.metrics != nil {
		s.metrics.ObserveInitiation(currency)
		s.recordStored(ctx)
	}
	s.logger(ctx).Info().
		Str("reference", reference).
		Str("token", logger.TruncateToken(token)).
		Str("amount", tx.Amount.String()).
		Str("currency", currency).
		Str("customer_email", logger.RedactEmail(tx.Customer.Email)).
		Msg("simulator.initiated")

	return InitiationResult{
		Reference:   reference,
		CheckoutURL: tx.CheckoutURL,
		Token:       token,
		Status:      "success",
		Transaction: tx.Clone(),
	}, nil
}

// Resolve moves a PENDING transaction to COMPLETED or FAILED.
func (s *Simulator) Resolve(ctx context.Context, reference string, outcome Outcome) (Transaction, error) {
	const op = "resolve"

	mode := "manual"
	switch outcome {
	case OutcomeApprove, OutcomeReject:
	case OutcomeUseConfiguredRate:
		mode = "rate"
	default:
		return Transaction{}, s.fail(ctx, op, apierrors.Validation(apierrors.ErrCodeInvalidOutcome, "invalid outcome"))
	}

	tx, err := s.store.Update(ctx, reference, func(current Transaction) (Transaction, error) {
		if !current.Status.CanTransitionTo(StatusCompleted) {
			return Transaction{}, apierrors.InvalidState(reference, string(current.Status))
		}

		approved := outcome == OutcomeApprove
		if outcome == OutcomeUseConfiguredRate {
			approved = s.rng.Float64() <= s.SuccessRate()
		}

		now := s.now().UTC()
		current.Status = StatusFailed
		if approved {
			current.Status = StatusCompleted
		}
		current.UpdatedAt = now
		current.CompletedAt = &now
		return current, nil
	})
	if err != nil {
		return Transaction{}, s.fail(ctx, op, s.translate(err, reference))
	}

	if s.metrics != nil {
		s.metrics.ObserveResolution(string(tx.Status), mode)
	}
	s.logger(ctx).Info().
		Str("reference", reference).
		Str("status", string(tx.Status)).
		Str("mode", mode).
		Msg("simulator.resolved")

	if tx.WebhookURL != "" {
		payload := s.payloadFor(tx)
		s.notifier.TransactionResolved(ctx, tx.WebhookURL, payload)
		if s.metrics != nil {
			s.metrics.ObserveWebhook(EventTypeFor(tx.Status))
		}
	}

	return tx, nil
}

// Cancel moves a PENDING transaction to CANCELLED. CompletedAt stays unset.
func (s *Simulator) Cancel(ctx context.Context, reference string) (Transaction, error) {
	const op = "cancel"

	tx, err := s.store.Update(ctx, reference, func(current Transaction) (Transaction, error) {
		if !current.Status.CanTransitionTo(StatusCancelled) {
			return Transaction{}, apierrors.InvalidState(reference, string(current.Status))
		}
		current.Status = StatusCancelled
		current.UpdatedAt = s.now().UTC()
		return current, nil
	})
	if err != nil {
		return Transaction{}, s.fail(ctx, op, s.translate(err, reference))
	}

	if s.metrics != nil {
		s.metrics.ObserveCancellation()
	}
	s.logger(ctx).Info().Str("reference", reference).Msg("simulator.cancelled")
	return tx, nil
}

// GetStatus reports the externally visible status of a transaction.
func (s *Simulator) GetStatus(ctx context.Context, reference string) (StatusResult, error) {
	const op = "status"

	if err := s.delay(ctx, op); err != nil {
		return StatusResult{}, err
	}

	tx, err := s.store.Get(ctx, reference)
	if err != nil {
		return StatusResult{}, s.fail(ctx, op, s.translate(err, reference))
	}

	return StatusResult{
		Reference:   tx.Reference,
		Status:      tx.Status.External(),
		Amount:      tx.Amount,
		Currency:    tx.Currency,
		Message:     tx.Status.Message(),
		Transaction: tx,
	}, nil
}

// GetTransaction returns a snapshot of the stored transaction.
func (s *Simulator) GetTransaction(ctx context.Context, reference string) (Transaction, error) {
	tx, err := s.store.Get(ctx, reference)
	if err != nil {
		return Transaction{}, s.fail(ctx, "get", s.translate(err, reference))
	}
	return tx, nil
}

// ListTransactions returns a snapshot of every stored transaction keyed by reference.
func (s *Simulator) ListTransactions(ctx context.Context) (map[string]Transaction, error) {
	txs, err := s.store.List(ctx)
	if err != nil {
		return nil, s.fail(ctx, "list", s.translate(err, ""))
	}
	return txs, nil
}

// Clear removes every transaction.
func (s *Simulator) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return s.fail(ctx, "clear", s.translate(err, ""))
	}
	if s.metrics != nil {
		s.metrics.SetStored(0)
	}
	s.logger(ctx).Info().Msg("simulator.cleared")
	return nil
}

// BuildWebhookPayload describes the current state of a transaction.
// The boolean is false when the reference is unknown.
func (s *Simulator) BuildWebhookPayload(ctx context.Context, reference string) (WebhookPayload, bool) {
	tx, err := s.store.Get(ctx, reference)
	if err != nil {
		return WebhookPayload{}, false
	}
	return s.payloadFor(tx), true
}

func (s *Simulator) payloadFor(tx Transaction) WebhookPayload {
	ts := tx.UpdatedAt
	if tx.CompletedAt != nil {
		ts = *tx.CompletedAt
	}
	if ts.IsZero() {
		ts = s.now().UTC()
	}
	return WebhookPayload{
		Reference: tx.Reference,
		Status:    tx.Status.External(),
		Amount:    tx.Amount,
		Currency:  tx.Currency,
		Message:   tx.Status.Message(),
		Timestamp: ts,
	}
}

// EventTypeFor names the webhook event emitted for a terminal status.
func EventTypeFor(status Status) string {
	return "transaction." + status.External()
}

// SetSuccessRate sets the approval probability used by OutcomeUseConfiguredRate.
// Values are clamped into [0, 1]; NaN becomes 0. A draw approves when it is <= rate,
// so a rate of 0 still approves an exact 0.0 draw (random.NewScripted() with no floats).
func (s *Simulator) SetSuccessRate(rate float64) {
	switch {
	case math.IsNaN(rate), rate < 0:
		rate = 0
	case rate > 1:
		rate = 1
	}
	s.mu.Lock()
	s.successRate = rate
	s.mu.Unlock()
}

// SuccessRate returns the current approval probability.
func (s *Simulator) SuccessRate() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.successRate
}

// SetSimulateDelay toggles latency injection for Initiate and GetStatus.
func (s *Simulator) SetSimulateDelay(enabled bool) {
	s.mu.Lock()
	s.simulateDelay = enabled
	s.mu.Unlock()
}

// SetDelayBounds sets the latency range. Negative values become 0 and a max
// below min is raised to min.
func (s *Simulator) SetDelayBounds(min, max time.Duration) {
	if min < 0 {
		min = 0
	}
	if max < min {
		max = min
	}
	s.mu.Lock()
	s.minDelay = min
	s.maxDelay = max
	s.mu.Unlock()
}

// DelaySettings returns the current latency configuration.
func (s *Simulator) DelaySettings() (enabled bool, min, max time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.simulateDelay, s.minDelay, s.maxDelay
}

// delay waits out simulated latency. It runs before any store access so one
// reference's wait never holds the store lock.
func (s *Simulator) delay(ctx context.Context, op string) error {
	enabled, min, max := s.DelaySettings()
	if !enabled {
		return nil
	}
	d := random.DurationBetween(s.rng, min, max)
	if err := s.sleep(ctx, d); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.ObserveDelay(op, d)
	}
	return nil
}

// translate maps store errors onto the typed errors callers match against.
func (s *Simulator) translate(err error, reference string) error {
	var typed *apierrors.Error
	switch {
	case errors.As(err, &typed):
		return typed
	case errors.Is(err, ErrRecordNotFound):
		return apierrors.NotFound(reference)
	case errors.Is(err, ErrRecordExists):
		return apierrors.Duplicate(reference)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("simulator: store: %w", err)
	}
}

func (s *Simulator) fail(ctx context.Context, op string, err error) error {
	code := apierrors.CodeOf(err)
	if s.metrics != nil {
		s.metrics.ObserveError(op, string(code))
	}
	event := s.logger(ctx).Debug()
	if code.Kind() == apierrors.KindInternal {
		event = s.logger(ctx).Error()
	}
	event.Err(err).Str("operation", op).Str("code", string(code)).Msg("simulator.operation_failed")
	return err
}

func (s *Simulator) recordStored(ctx context.Context) {
	n, err := s.store.Len(ctx)
	if err != nil {
		return
	}
	s.metrics.SetStored(n)
}

func (s *Simulator) logger(ctx context.Context) *zerolog.Logger {
	l := logger.FromContext(ctx, s.log)
	return &l
}
