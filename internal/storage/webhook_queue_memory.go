package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryOutbox is an in-memory WebhookOutbox.
type MemoryOutbox struct {
	mu       sync.RWMutex
	webhooks map[string]PendingWebhook // webhookID -> webhook
	now      func() time.Time
	seq      atomic.Uint64
}

var _ WebhookOutbox = (*MemoryOutbox)(nil)

// NewMemoryOutbox constructs an empty outbox.
func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{
		webhooks: make(map[string]PendingWebhook),
		now:      time.Now,
	}
}

// WithClock overrides the time source used for scheduling. A nil clock is ignored.
func (m *MemoryOutbox) WithClock(now func() time.Time) *MemoryOutbox {
	if now == nil {
		return m
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

// EnqueueWebhook adds a webhook to the outbox.
func (m *MemoryOutbox) EnqueueWebhook(_ context.Context, webhook PendingWebhook) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if webhook.ID == "" {
		webhook.ID = m.generateWebhookID()
	}

	now := m.now().UTC()
	if webhook.Status == "" {
		webhook.Status = WebhookStatusPending
	}
	if webhook.CreatedAt.IsZero() {
		webhook.CreatedAt = now
	}
	if webhook.NextAttemptAt.IsZero() {
		webhook.NextAttemptAt = now
	}
	if webhook.MaxAttempts <= 0 {
		webhook.MaxAttempts = DefaultWebhookMaxAttempts
	}

	m.webhooks[webhook.ID] = webhook.clone()
	return webhook.ID, nil
}

// DequeueWebhooks claims ready webhooks, marking them processing and counting the attempt.
func (m *MemoryOutbox) DequeueWebhooks(_ context.Context, limit int) ([]PendingWebhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	var ready []PendingWebhook
	for _, webhook := range m.webhooks {
		if webhook.IsReadyForDelivery(now) {
			ready = append(ready, webhook)
		}
	}

	// Earliest due first; ties broken by ID so the order is stable.
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].NextAttemptAt.Equal(ready[j].NextAttemptAt) {
			return ready[i].ID < ready[j].ID
		}
		return ready[i].NextAttemptAt.Before(ready[j].NextAttemptAt)
	})
	if limit > 0 && len(ready) > limit {
		ready = ready[:limit]
	}

	for i := range ready {
		ready[i].Status = WebhookStatusProcessing
		ready[i].LastAttemptAt = now
		ready[i].Attempts++
		m.webhooks[ready[i].ID] = ready[i]
		ready[i] = ready[i].clone()
	}
	return ready, nil
}

// MarkWebhookDelivered records a successful delivery. Delivered webhooks stay
// listed for inspection until deleted.
func (m *MemoryOutbox) MarkWebhookDelivered(_ context.Context, webhookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	webhook, ok := m.webhooks[webhookID]
	if !ok {
		return ErrNotFound
	}

	now := m.now().UTC()
	webhook.Status = WebhookStatusDelivered
	webhook.LastError = ""
	webhook.CompletedAt = &now
	m.webhooks[webhookID] = webhook
	return nil
}

// MarkWebhookFailed records a failed attempt and schedules a retry, or fails it
// permanently once MaxAttempts is reached.
func (m *MemoryOutbox) MarkWebhookFailed(_ context.Context, webhookID string, errorMsg string, nextAttemptAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	webhook, ok := m.webhooks[webhookID]
	if !ok {
		return ErrNotFound
	}

	now := m.now().UTC()
	webhook.LastError = errorMsg
	webhook.LastAttemptAt = now

	if webhook.Attempts >= webhook.MaxAttempts {
		webhook.Status = WebhookStatusFailed
		webhook.CompletedAt = &now
	} else {
		webhook.Status = WebhookStatusPending
		webhook.NextAttemptAt = nextAttemptAt
	}

	m.webhooks[webhookID] = webhook
	return nil
}

// GetWebhook retrieves a webhook by ID.
func (m *MemoryOutbox) GetWebhook(_ context.Context, webhookID string) (PendingWebhook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	webhook, ok := m.webhooks[webhookID]
	if !ok {
		return PendingWebhook{}, ErrNotFound
	}
	return webhook.clone(), nil
}

// ListWebhooks lists webhooks with optional status filter, newest first.
func (m *MemoryOutbox) ListWebhooks(_ context.Context, status WebhookStatus, limit int) ([]PendingWebhook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var webhooks []PendingWebhook
	for _, webhook := range m.webhooks {
		if status == "" || webhook.Status == status {
			webhooks = append(webhooks, webhook.clone())
		}
	}

	sort.Slice(webhooks, func(i, j int) bool {
		if webhooks[i].CreatedAt.Equal(webhooks[j].CreatedAt) {
			return webhooks[i].ID > webhooks[j].ID
		}
		return webhooks[i].CreatedAt.After(webhooks[j].CreatedAt)
	})
	if limit > 0 && len(webhooks) > limit {
		webhooks = webhooks[:limit]
	}
	return webhooks, nil
}

// RetryWebhook resets a webhook to pending for immediate redelivery.
func (m *MemoryOutbox) RetryWebhook(_ context.Context, webhookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	webhook, ok := m.webhooks[webhookID]
	if !ok {
		return ErrNotFound
	}

	webhook.Status = WebhookStatusPending
	webhook.NextAttemptAt = m.now().UTC()
	webhook.LastError = ""
	webhook.CompletedAt = nil
	m.webhooks[webhookID] = webhook
	return nil
}

// DeleteWebhook removes a webhook from the outbox.
func (m *MemoryOutbox) DeleteWebhook(_ context.Context, webhookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.webhooks[webhookID]; !ok {
		return ErrNotFound
	}
	delete(m.webhooks, webhookID)
	return nil
}

// generateWebhookID creates a unique identifier for webhooks. Callers hold m.mu.
func (m *MemoryOutbox) generateWebhookID() string {
	return fmt.Sprintf("webhook_%d_%d", m.now().UnixNano(), m.seq.Add(1))
}
