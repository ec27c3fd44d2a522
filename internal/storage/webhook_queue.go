package storage

import (
	"context"
	"encoding/json"
	"time"
)

// WebhookStatus represents the current state of a webhook in the outbox.
type WebhookStatus string

const (
	WebhookStatusPending    WebhookStatus = "pending"    // Waiting for delivery
	WebhookStatusProcessing WebhookStatus = "processing" // Claimed by a delivery worker
	WebhookStatusFailed     WebhookStatus = "failed"     // Failed after all attempts
	WebhookStatusDelivered  WebhookStatus = "delivered"  // Acknowledged by the receiver
)

// PendingWebhook is a serialized webhook event waiting for delivery.
type PendingWebhook struct {
	ID            string            `json:"id"`            // Outbox identifier (webhook_...)
	EventID       string            `json:"eventId"`       // Idempotency key of the carried event
	URL           string            `json:"url"`           // Destination URL registered at initiation
	Payload       json.RawMessage   `json:"payload"`       // JSON body to send
	Headers       map[string]string `json:"headers"`       // HTTP headers to send
	EventType     string            `json:"eventType"`     // "transaction.completed" or "transaction.failed"
	Reference     string            `json:"reference"`     // Transaction reference
	Status        WebhookStatus     `json:"status"`        // Current status
	Attempts      int               `json:"attempts"`      // Delivery attempts so far
	MaxAttempts   int               `json:"maxAttempts"`   // Attempts allowed before giving up
	LastError     string            `json:"lastError"`     // Error from the last attempt
	LastAttemptAt time.Time         `json:"lastAttemptAt"` // When the last attempt was made
	NextAttemptAt time.Time         `json:"nextAttemptAt"` // When the next attempt is due
	CreatedAt     time.Time         `json:"createdAt"`     // When the webhook was enqueued
	CompletedAt   *time.Time        `json:"completedAt"`   // When it was delivered or failed permanently
}

// IsReadyForDelivery reports whether the webhook is due at now.
func (w PendingWebhook) IsReadyForDelivery(now time.Time) bool {
	if w.Status != WebhookStatusPending {
		return false
	}
	return w.NextAttemptAt.IsZero() || !w.NextAttemptAt.After(now)
}

// IsFinallyFailed returns true if the webhook has exhausted all attempts.
func (w PendingWebhook) IsFinallyFailed() bool {
	return w.Attempts >= w.MaxAttempts && w.Status == WebhookStatusFailed
}

func (w PendingWebhook) clone() PendingWebhook {
	out := w
	if w.Payload != nil {
		out.Payload = append(json.RawMessage(nil), w.Payload...)
	}
	if w.Headers != nil {
		out.Headers = make(map[string]string, len(w.Headers))
		for k, v := range w.Headers {
			out.Headers[k] = v
		}
	}
	if w.CompletedAt != nil {
		completed := *w.CompletedAt
		out.CompletedAt = &completed
	}
	return out
}

// WebhookOutbox holds webhook events produced by the simulator until a
// dispatcher drains them.
type WebhookOutbox interface {
	// EnqueueWebhook adds a webhook to the outbox (returns webhook ID)
	EnqueueWebhook(ctx context.Context, webhook PendingWebhook) (string, error)
	// DequeueWebhooks claims webhooks ready for delivery (up to limit, ordered by next attempt time)
	DequeueWebhooks(ctx context.Context, limit int) ([]PendingWebhook, error)
	// MarkWebhookDelivered records a successful delivery
	MarkWebhookDelivered(ctx context.Context, webhookID string) error
	// MarkWebhookFailed records a failed attempt and schedules a retry, or fails it permanently when attempts are exhausted
	MarkWebhookFailed(ctx context.Context, webhookID string, errorMsg string, nextAttemptAt time.Time) error
	// GetWebhook retrieves a webhook by ID
	GetWebhook(ctx context.Context, webhookID string) (PendingWebhook, error)
	// ListWebhooks lists webhooks with optional status filter, newest first
	ListWebhooks(ctx context.Context, status WebhookStatus, limit int) ([]PendingWebhook, error)
	// RetryWebhook resets a webhook to pending for immediate redelivery
	RetryWebhook(ctx context.Context, webhookID string) error
	// DeleteWebhook removes a webhook from the outbox
	DeleteWebhook(ctx context.Context, webhookID string) error
}
