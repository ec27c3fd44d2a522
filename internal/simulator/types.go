package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a simulated transaction.
type Status string

const (
	// StatusPending is the initial state; the payer has not completed checkout yet.
	StatusPending Status = "PENDING"

	// StatusCompleted indicates the gateway approved the payment.
	StatusCompleted Status = "COMPLETED"

	// StatusFailed indicates the gateway rejected the payment.
	StatusFailed Status = "FAILED"

	// StatusCancelled indicates the payer abandoned checkout.
	StatusCancelled Status = "CANCELLED"
)

// statusView is the external rendering of a status.
type statusView struct {
	external string
	message  string
}

// statusViews is exhaustive over the closed Status enum.
var statusViews = map[Status]statusView{
	StatusPending:   {external: "pending", message: "Payment is pending"},
	StatusCompleted: {external: "completed", message: "Payment completed successfully"},
	StatusFailed:    {external: "failed", message: "Payment failed"},
	StatusCancelled: {external: "cancelled", message: "Payment was cancelled"},
}

var unknownView = statusView{external: "unknown", message: "Unknown status"}

// transitions lists the states reachable from each state.
var transitions = map[Status][]Status{
	StatusPending: {StatusCompleted, StatusFailed, StatusCancelled},
}

// External returns the lower-case status string reported to integrators.
func (s Status) External() string {
	return s.view().external
}

// Message returns the human-readable description of the status.
func (s Status) Message() string {
	return s.view().message
}

func (s Status) view() statusView {
	if v, ok := statusViews[s]; ok {
		return v
	}
	return unknownView
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s Status) CanTransitionTo(next Status) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the four known states.
func (s Status) Valid() bool {
	_, ok := statusViews[s]
	return ok
}

// Outcome selects how Resolve decides the terminal state.
type Outcome int

const (
	// OutcomeUseConfiguredRate approves with probability equal to the configured success rate.
	OutcomeUseConfiguredRate Outcome = iota
	// OutcomeApprove forces COMPLETED.
	OutcomeApprove
	// OutcomeReject forces FAILED.
	OutcomeReject
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApprove:
		return "approve"
	case OutcomeReject:
		return "reject"
	case OutcomeUseConfiguredRate:
		return "rate"
	default:
		return "invalid"
	}
}

// ParseOutcome maps CLI/config spellings onto an Outcome.
func ParseOutcome(s string) (Outcome, bool) {
	switch s {
	case "approve", "approved", "success":
		return OutcomeApprove, true
	case "reject", "rejected", "fail", "failed":
		return OutcomeReject, true
	case "rate", "random", "":
		return OutcomeUseConfiguredRate, true
	default:
		return 0, false
	}
}

// Customer holds the optional payer details forwarded by the integrating application.
type Customer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// PaymentData is the caller's initiation request.
// A zero Amount is treated as absent.
type PaymentData struct {
	ID          string            `json:"id"`
	Amount      decimal.Decimal   `json:"amount"`
	Currency    string            `json:"currency,omitempty"`
	Description string            `json:"description,omitempty"`
	Customer    Customer          `json:"customer"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Transaction is a snapshot of a simulated payment. Values handed out by the
// simulator are copies; mutating them never affects stored state.
type Transaction struct {
	Reference   string            `json:"reference"`
	Token       string            `json:"token"`
	Amount      decimal.Decimal   `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description,omitempty"`
	Customer    Customer          `json:"customer"`
	SuccessURL  string            `json:"successUrl"`
	CancelURL   string            `json:"cancelUrl"`
	WebhookURL  string            `json:"webhookUrl,omitempty"`
	CheckoutURL string            `json:"checkoutUrl"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Status      Status            `json:"status"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}

// Clone returns a deep copy of t.
func (t Transaction) Clone() Transaction {
	out := t
	if t.Metadata != nil {
		out.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		out.CompletedAt = &completed
	}
	return out
}

// InitiationResult is returned by Initiate.
type InitiationResult struct {
	Reference   string      `json:"reference"`
	CheckoutURL string      `json:"checkoutUrl"`
	Token       string      `json:"token"`
	Status      string      `json:"status"` // always "success"
	Transaction Transaction `json:"transaction"`
}

// StatusResult is returned by GetStatus.
type StatusResult struct {
	Reference   string          `json:"reference"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Message     string          `json:"message"`
	Transaction Transaction     `json:"transaction"`
}

// WebhookPayload describes a transaction's state for asynchronous notification.
type WebhookPayload struct {
	Reference string
	Status    string
	Amount    decimal.Decimal
	Currency  string
	Message   string
	Timestamp time.Time
}

// MarshalJSON renders the wire form: amount as a JSON number, timestamp as epoch seconds.
func (p WebhookPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TransactionRef string      `json:"transaction_ref"`
		TransactionID  string      `json:"transaction_id"`
		Status         string      `json:"status"`
		Amount         json.Number `json:"amount"`
		Currency       string      `json:"currency"`
		Message        string      `json:"message"`
		Timestamp      int64       `json:"timestamp"`
	}{
		TransactionRef: p.Reference,
		TransactionID:  p.Reference,
		Status:         p.Status,
		Amount:         json.Number(p.Amount.String()),
		Currency:       p.Currency,
		Message:        p.Message,
		Timestamp:      p.Timestamp.Unix(),
	})
}

// Errors a Store must return so the simulator can translate them.
var (
	ErrRecordNotFound = errors.New("store: transaction not found")
	ErrRecordExists   = errors.New("store: transaction already exists")
)

// Store persists transactions for the lifetime of a simulator.
type Store interface {
	// Save inserts tx. With overwrite=false an existing reference yields ErrRecordExists.
	Save(ctx context.Context, tx Transaction, overwrite bool) error
	// Get returns a copy of the transaction.
	Get(ctx context.Context, reference string) (Transaction, error)
	// Update applies fn to the stored record atomically; fn's error aborts the write.
	Update(ctx context.Context, reference string, fn func(Transaction) (Transaction, error)) (Transaction, error)
	// List returns copies of all transactions keyed by reference.
	List(ctx context.Context) (map[string]Transaction, error)
	// Len returns the number of stored transactions.
	Len(ctx context.Context) (int, error)
	// Clear removes every transaction.
	Clear(ctx context.Context) error
	Close() error
}

// Notifier receives webhook payloads for resolved transactions. Implementations
// own delivery; the simulator never performs network I/O.
type Notifier interface {
	TransactionResolved(ctx context.Context, webhookURL string, payload WebhookPayload)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, webhookURL string, payload WebhookPayload)

func (f NotifierFunc) TransactionResolved(ctx context.Context, webhookURL string, payload WebhookPayload) {
	f(ctx, webhookURL, payload)
}

type noopNotifier struct{}

func (noopNotifier) TransactionResolved(context.Context, string, WebhookPayload) {}
