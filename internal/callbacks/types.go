package callbacks

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/CedrosPay/paysim/internal/simulator"
)

// Event types emitted for resolved transactions.
const (
	EventTransactionCompleted = "transaction.completed"
	EventTransactionFailed    = "transaction.failed"
)

// Notifier receives webhook payloads for resolved transactions.
type Notifier = simulator.Notifier

// NoopNotifier ignores all events.
type NoopNotifier struct{}

func (NoopNotifier) TransactionResolved(context.Context, string, simulator.WebhookPayload) {}

// Event wraps a webhook payload with delivery metadata.
// IMPORTANT: EventID is the idempotency key - webhook consumers MUST use this to prevent duplicate processing.
type Event struct {
	// Idempotency and event metadata (ALWAYS present)
	EventID        string    `json:"eventId"`        // Unique event identifier for idempotency (e.g., "evt_abc123")
	EventType      string    `json:"eventType"`      // "transaction.completed" or "transaction.failed"
	EventTimestamp time.Time `json:"eventTimestamp"` // When the event was created (UTC)

	// Destination and body
	WebhookURL string                   `json:"-"`
	Payload    simulator.WebhookPayload `json:"data"`
}

// ErrCallbackDisabled is returned when callbacks are not configured.
var ErrCallbackDisabled = errors.New("callbacks: disabled")

// generateEventID creates a unique event identifier for idempotency.
// Format: "evt_" + 24 hex characters (12 random bytes)
// Example: "evt_a1b2c3d4e5f67890abcdef12"
func generateEventID() string {
	randomBytes := make([]byte, 12)
	if _, err := rand.Read(randomBytes); err != nil {
		// Fallback to timestamp-based ID if crypto/rand fails (extremely rare)
		return fmt.Sprintf("evt_%d", time.Now().UnixNano())
	}
	return "evt_" + hex.EncodeToString(randomBytes)
}

// eventTypeFor maps an external payload status onto an event type.
func eventTypeFor(status string) string {
	if status == simulator.StatusCompleted.External() {
		return EventTransactionCompleted
	}
	return EventTransactionFailed
}

// NewEvent builds an Event for a resolved transaction.
func NewEvent(webhookURL string, payload simulator.WebhookPayload) Event {
	event := Event{WebhookURL: webhookURL, Payload: payload}
	PrepareEvent(&event)
	return event
}

// PrepareEvent ensures an Event has required idempotency fields set.
// If EventID is already set, it's preserved (for retries). If not, a new one is generated.
func PrepareEvent(event *Event) {
	if event.EventID == "" {
		event.EventID = generateEventID()
	}
	if event.EventType == "" {
		event.EventType = eventTypeFor(event.Payload.Status)
	}
	if event.EventTimestamp.IsZero() {
		event.EventTimestamp = time.Now().UTC()
	}
}

// Body serializes the event as it would be posted to the webhook URL.
func (e Event) Body() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return body, nil
}

// RecordingNotifier keeps every event in memory.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

// NewRecordingNotifier constructs an empty RecordingNotifier.
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (r *RecordingNotifier) TransactionResolved(_ context.Context, webhookURL string, payload simulator.WebhookPayload) {
	event := NewEvent(webhookURL, payload)
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events in arrival order.
func (r *RecordingNotifier) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Reset forgets all recorded events.
func (r *RecordingNotifier) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
