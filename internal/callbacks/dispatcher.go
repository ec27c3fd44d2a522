package callbacks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/CedrosPay/paysim/internal/config"
	"github.com/CedrosPay/paysim/internal/storage"
	"github.com/rs/zerolog"
)

// RetryConfig holds webhook retry configuration.
type RetryConfig struct {
	MaxAttempts     int           // Maximum delivery attempts (default: 5)
	InitialInterval time.Duration // Initial backoff interval (default: 1s)
	MaxInterval     time.Duration // Maximum backoff interval (default: 5m)
	Multiplier      float64       // Backoff multiplier (default: 2.0)
}

// DefaultRetryConfig returns sensible defaults for webhook retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     5,
		InitialInterval: 1 * time.Second,
		MaxInterval:     5 * time.Minute,
		Multiplier:      2.0,
	}
}

// RetryConfigFrom reads retry settings from the callbacks section, keeping defaults for zero values.
func RetryConfigFrom(cfg config.CallbacksConfig) RetryConfig {
	out := DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		out.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialInterval.Duration > 0 {
		out.InitialInterval = cfg.InitialInterval.Duration
	}
	if cfg.MaxInterval.Duration > 0 {
		out.MaxInterval = cfg.MaxInterval.Duration
	}
	if cfg.Multiplier >= 1 {
		out.Multiplier = cfg.Multiplier
	}
	return out
}

// Deliverer hands one outboxed webhook to its receiver.
type Deliverer interface {
	Deliver(ctx context.Context, webhook storage.PendingWebhook) error
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, webhook storage.PendingWebhook) error

func (f DelivererFunc) Deliver(ctx context.Context, webhook storage.PendingWebhook) error {
	return f(ctx, webhook)
}

// WriterDeliverer writes each webhook as one JSON line to w.
func WriterDeliverer(w io.Writer) Deliverer {
	var mu sync.Mutex
	return DelivererFunc(func(_ context.Context, webhook storage.PendingWebhook) error {
		line, err := json.Marshal(struct {
			ID      string            `json:"id"`
			URL     string            `json:"url"`
			Headers map[string]string `json:"headers"`
			Payload json.RawMessage   `json:"payload"`
		}{webhook.ID, webhook.URL, webhook.Headers, webhook.Payload})
		if err != nil {
			return fmt.Errorf("marshal webhook: %w", err)
		}
		mu.Lock()
		defer mu.Unlock()
		if _, err := w.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write webhook: %w", err)
		}
		return nil
	})
}

// DrainResult summarises one pass over the outbox.
type DrainResult struct {
	Delivered int
	Retrying  int
	Failed    int
}

// Dispatcher drains a WebhookOutbox through a Deliverer, scheduling retries with
// exponential backoff.
type Dispatcher struct {
	outbox       storage.WebhookOutbox
	deliverer    Deliverer
	retryCfg     RetryConfig
	logger       zerolog.Logger
	now          func() time.Time
	batchSize    int
	pollInterval time.Duration
	stopChan     chan struct{}
	doneChan     chan struct{}
}

// DispatcherOptions configures the dispatcher.
type DispatcherOptions struct {
	Outbox       storage.WebhookOutbox
	Deliverer    Deliverer
	RetryConfig  RetryConfig
	Logger       zerolog.Logger
	Now          func() time.Time
	BatchSize    int           // Webhooks claimed per pass (default: 10)
	PollInterval time.Duration // How often Start polls the outbox (default: 5s)
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	if opts.RetryConfig.MaxAttempts == 0 {
		opts.RetryConfig = DefaultRetryConfig()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}

	return &Dispatcher{
		outbox:       opts.Outbox,
		deliverer:    opts.Deliverer,
		retryCfg:     opts.RetryConfig,
		logger:       opts.Logger,
		now:          opts.Now,
		batchSize:    opts.BatchSize,
		pollInterval: opts.PollInterval,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start begins polling the outbox in the background.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.run(ctx)
}

// Stop gracefully stops the polling loop started by Start.
func (d *Dispatcher) Stop() {
	close(d.stopChan)
	<-d.doneChan
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.doneChan)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	d.logger.Info().
		Dur("pollInterval", d.pollInterval).
		Msg("webhook dispatcher started")

	for {
		select {
		case <-d.stopChan:
			d.logger.Info().Msg("webhook dispatcher stopping")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Drain(ctx); err != nil {
				d.logger.Error().Err(err).Msg("failed to drain webhook outbox")
			}
		}
	}
}

// Drain claims every due webhook once and attempts delivery.
func (d *Dispatcher) Drain(ctx context.Context) (DrainResult, error) {
	var result DrainResult
	for {
		webhooks, err := d.outbox.DequeueWebhooks(ctx, d.batchSize)
		if err != nil {
			return result, fmt.Errorf("dequeue webhooks: %w", err)
		}
		if len(webhooks) == 0 {
			return result, nil
		}

		d.logger.Debug().Int("count", len(webhooks)).Msg("processing webhooks from outbox")

		for _, webhook := range webhooks {
			switch d.processWebhook(ctx, webhook) {
			case storage.WebhookStatusDelivered:
				result.Delivered++
			case storage.WebhookStatusFailed:
				result.Failed++
			default:
				result.Retrying++
			}
		}
	}
}

// processWebhook performs one delivery attempt and returns the resulting status.
func (d *Dispatcher) processWebhook(ctx context.Context, webhook storage.PendingWebhook) storage.WebhookStatus {
	err := d.deliverer.Deliver(ctx, webhook)
	if err == nil {
		if markErr := d.outbox.MarkWebhookDelivered(ctx, webhook.ID); markErr != nil {
			d.logger.Error().
				Err(markErr).
				Str("webhookID", webhook.ID).
				Msg("failed to mark webhook as delivered")
		}

		d.logger.Info().
			Str("webhookID", webhook.ID).
			Str("eventType", webhook.EventType).
			Int("attempts", webhook.Attempts).
			Msg("webhook delivered successfully")
		return storage.WebhookStatusDelivered
	}

	return d.handleWebhookFailure(ctx, webhook, err)
}

// handleWebhookFailure schedules a retry or marks the webhook as permanently failed.
func (d *Dispatcher) handleWebhookFailure(ctx context.Context, webhook storage.PendingWebhook, deliveryErr error) storage.WebhookStatus {
	nextAttemptAt := d.now().UTC().Add(d.calculateBackoff(webhook.Attempts))

	if err := d.outbox.MarkWebhookFailed(ctx, webhook.ID, deliveryErr.Error(), nextAttemptAt); err != nil {
		d.logger.Error().
			Err(err).
			Str("webhookID", webhook.ID).
			Msg("failed to mark webhook as failed")
		return storage.WebhookStatusFailed
	}

	if webhook.Attempts >= webhook.MaxAttempts {
		d.logger.Warn().
			Str("webhookID", webhook.ID).
			Str("eventType", webhook.EventType).
			Int("attempts", webhook.Attempts).
			Err(deliveryErr).
			Msg("webhook failed permanently after all retries")
		return storage.WebhookStatusFailed
	}

	d.logger.Warn().
		Str("webhookID", webhook.ID).
		Str("eventType", webhook.EventType).
		Int("attempts", webhook.Attempts).
		Time("nextAttempt", nextAttemptAt).
		Err(deliveryErr).
		Msg("webhook delivery failed, scheduled for retry")
	return storage.WebhookStatusPending
}

// calculateBackoff calculates the backoff duration for the given attempt number.
func (d *Dispatcher) calculateBackoff(attempt int) time.Duration {
	backoff := d.retryCfg.InitialInterval

	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * d.retryCfg.Multiplier)
		if backoff > d.retryCfg.MaxInterval {
			backoff = d.retryCfg.MaxInterval
			break
		}
	}

	return backoff
}
