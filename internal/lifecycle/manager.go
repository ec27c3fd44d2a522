package lifecycle

import (
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// Manager closes registered resources in reverse order and reports the first failure.
type Manager struct {
	mu        sync.Mutex
	logger    zerolog.Logger
	resources []resource
	closed    bool
}

type resource struct {
	name   string
	closer io.Closer
}

// NewManager creates a new resource lifecycle manager.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		logger:    logger,
		resources: make([]resource, 0),
	}
}

// Register adds a resource to be closed when the manager is closed.
// Resources are closed in reverse order of registration (LIFO).
func (m *Manager) Register(name string, closer io.Closer) {
	if closer == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources = append(m.resources, resource{name: name, closer: closer})
}

// RegisterFunc wraps a cleanup function as a Closer for convenience.
func (m *Manager) RegisterFunc(name string, fn func() error) {
	m.Register(name, closerFunc(fn))
}

// Close closes all registered resources in reverse order.
// Every closer runs even if an earlier one fails. Calling Close again is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var firstErr error
	for i := len(m.resources) - 1; i >= 0; i-- {
		res := m.resources[i]
		if err := res.closer.Close(); err != nil {
			m.logger.Error().
				Err(err).
				Str("resource", res.name).
				Msg("lifecycle.close_resource_failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		m.logger.Debug().Str("resource", res.name).Msg("lifecycle.resource_closed")
	}
	m.resources = nil

	return firstErr
}

// closerFunc adapts a function to the io.Closer interface.
type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}
