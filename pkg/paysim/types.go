package paysim

import "github.com/CedrosPay/paysim/internal/simulator"

// Aliases so embedding code can name simulator values without importing internal packages.
type (
	Simulator        = simulator.Simulator
	Transaction      = simulator.Transaction
	PaymentData      = simulator.PaymentData
	Customer         = simulator.Customer
	Status           = simulator.Status
	Outcome          = simulator.Outcome
	InitiationResult = simulator.InitiationResult
	StatusResult     = simulator.StatusResult
	WebhookPayload   = simulator.WebhookPayload
)

const (
	StatusPending   = simulator.StatusPending
	StatusCompleted = simulator.StatusCompleted
	StatusFailed    = simulator.StatusFailed
	StatusCancelled = simulator.StatusCancelled

	OutcomeUseConfiguredRate = simulator.OutcomeUseConfiguredRate
	OutcomeApprove           = simulator.OutcomeApprove
	OutcomeReject            = simulator.OutcomeReject
)
