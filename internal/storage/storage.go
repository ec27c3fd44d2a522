package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/CedrosPay/paysim/internal/simulator"
)

// ErrNotFound is returned when a requested entity is missing from the store.
var ErrNotFound = simulator.ErrRecordNotFound

// ErrAlreadyExists is returned by Save when overwriting is not allowed.
var ErrAlreadyExists = simulator.ErrRecordExists

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("storage: store closed")

// TransactionStore captures the persistence requirements for simulated transactions.
type TransactionStore = simulator.Store

// MemoryStore is an in-memory TransactionStore. A single lock guards the whole
// table; every value crossing the boundary is a deep copy.
type MemoryStore struct {
	mu           sync.RWMutex
	transactions map[string]simulator.Transaction // reference -> transaction
	closed       bool
}

var _ TransactionStore = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string]simulator.Transaction),
	}
}

// Save inserts tx, replacing an existing record only when overwrite is set.
func (m *MemoryStore) Save(_ context.Context, tx simulator.Transaction, overwrite bool) error {
	if tx.Reference == "" {
		return fmt.Errorf("storage: transaction requires reference")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if _, exists := m.transactions[tx.Reference]; exists && !overwrite {
		return ErrAlreadyExists
	}
	m.transactions[tx.Reference] = tx.Clone()
	return nil
}

// Get retrieves a transaction by reference.
func (m *MemoryStore) Get(_ context.Context, reference string) (simulator.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return simulator.Transaction{}, ErrClosed
	}
	tx, ok := m.transactions[reference]
	if !ok {
		return simulator.Transaction{}, ErrNotFound
	}
	return tx.Clone(), nil
}

// Update runs fn on a copy of the stored record and writes the result back,
// all under the write lock. An error from fn leaves the record untouched.
func (m *MemoryStore) Update(_ context.Context, reference string, fn func(simulator.Transaction) (simulator.Transaction, error)) (simulator.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return simulator.Transaction{}, ErrClosed
	}
	current, ok := m.transactions[reference]
	if !ok {
		return simulator.Transaction{}, ErrNotFound
	}

	updated, err := fn(current.Clone())
	if err != nil {
		return simulator.Transaction{}, err
	}
	// The reference is the key and cannot change.
	updated.Reference = reference
	m.transactions[reference] = updated.Clone()
	return updated, nil
}

// List returns copies of every transaction keyed by reference.
func (m *MemoryStore) List(_ context.Context) (map[string]simulator.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	out := make(map[string]simulator.Transaction, len(m.transactions))
	for ref, tx := range m.transactions {
		out[ref] = tx.Clone()
	}
	return out, nil
}

// Len returns the number of stored transactions.
func (m *MemoryStore) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrClosed
	}
	return len(m.transactions), nil
}

// Clear removes every transaction.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.transactions = make(map[string]simulator.Transaction)
	return nil
}

// Close drops all records. Subsequent calls return ErrClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.transactions = nil
	return nil
}
