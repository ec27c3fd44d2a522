package callbacks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/CedrosPay/paysim/internal/config"
	"github.com/CedrosPay/paysim/internal/simulator"
	"github.com/CedrosPay/paysim/internal/storage"
	"github.com/rs/zerolog"
)

// OutboxNotifier serializes webhook events into a WebhookOutbox. Failures are
// logged and never reach the simulator.
type OutboxNotifier struct {
	outbox      storage.WebhookOutbox
	headers     map[string]string
	maxAttempts int
	logger      zerolog.Logger
	now         func() time.Time
}

// OutboxNotifierOptions configures the outbox notifier.
type OutboxNotifierOptions struct {
	Outbox storage.WebhookOutbox
	Config config.CallbacksConfig
	Logger zerolog.Logger
	Now    func() time.Time
}

// NewOutboxNotifier creates a notifier backed by outbox. It returns nil when
// callbacks are disabled or no outbox is given.
func NewOutboxNotifier(opts OutboxNotifierOptions) *OutboxNotifier {
	if !opts.Config.Enabled || opts.Outbox == nil {
		return nil
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	headers := make(map[string]string, len(opts.Config.Headers)+1)
	for k, v := range opts.Config.Headers {
		if k == "" {
			continue
		}
		headers[k] = v
	}
	if headers["Content-Type"] == "" {
		headers["Content-Type"] = "application/json"
	}

	maxAttempts := opts.Config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = storage.DefaultWebhookMaxAttempts
	}

	return &OutboxNotifier{
		outbox:      opts.Outbox,
		headers:     headers,
		maxAttempts: maxAttempts,
		logger:      opts.Logger,
		now:         opts.Now,
	}
}

// TransactionResolved queues the payload for delivery to webhookURL.
func (n *OutboxNotifier) TransactionResolved(ctx context.Context, webhookURL string, payload simulator.WebhookPayload) {
	if n == nil || n.outbox == nil || webhookURL == "" {
		return
	}

	event := NewEvent(webhookURL, payload)
	if _, err := n.Enqueue(ctx, event); err != nil {
		n.logger.Error().
			Err(err).
			Str("eventID", event.EventID).
			Str("reference", payload.Reference).
			Msg("failed to enqueue transaction webhook")
	}
}

// Enqueue adds a prepared event to the outbox and returns the webhook ID.
func (n *OutboxNotifier) Enqueue(ctx context.Context, event Event) (string, error) {
	if n == nil || n.outbox == nil {
		return "", ErrCallbackDisabled
	}

	PrepareEvent(&event)

	body, err := event.Body()
	if err != nil {
		return "", err
	}

	headers := make(map[string]string, len(n.headers)+1)
	for k, v := range n.headers {
		headers[k] = v
	}
	headers["Idempotency-Key"] = event.EventID

	now := n.now().UTC()
	webhookID, err := n.outbox.EnqueueWebhook(ctx, storage.PendingWebhook{
		EventID:       event.EventID,
		URL:           event.WebhookURL,
		Payload:       json.RawMessage(body),
		Headers:       headers,
		EventType:     event.EventType,
		Reference:     event.Payload.Reference,
		Status:        storage.WebhookStatusPending,
		MaxAttempts:   n.maxAttempts,
		NextAttemptAt: now,
		CreatedAt:     now,
	})
	if err != nil {
		return "", err
	}

	n.logger.Debug().
		Str("webhookID", webhookID).
		Str("eventID", event.EventID).
		Str("eventType", event.EventType).
		Msg("transaction webhook enqueued")

	return webhookID, nil
}
