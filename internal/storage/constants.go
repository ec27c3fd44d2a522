package storage

const (
	// DefaultWebhookMaxAttempts is used when an enqueued webhook does not set MaxAttempts.
	DefaultWebhookMaxAttempts = 5
)
