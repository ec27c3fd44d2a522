// Package random provides the randomness used by the simulator behind a small
// interface so tests can replace it with deterministic sequences.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// Source supplies every random value the simulator consumes.
type Source interface {
	// Float64 returns a uniform value in [0, 1).
	Float64() float64
	// Int64N returns a uniform value in [0, n). n must be > 0.
	Int64N(n int64) int64
	// Read fills p with random bytes.
	Read(p []byte) (int, error)
}

// cryptoSource draws bytes from crypto/rand and numbers from a ChaCha8 stream seeded from it.
type cryptoSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// Crypto returns the production source.
func Crypto() Source {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		binary.LittleEndian.PutUint64(seed[:], uint64(time.Now().UnixNano()))
	}
	return &cryptoSource{rng: rand.New(rand.NewChaCha8(seed))}
}

func (c *cryptoSource) Float64() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Float64()
}

func (c *cryptoSource) Int64N(n int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Int64N(n)
}

func (c *cryptoSource) Read(p []byte) (int, error) {
	return crand.Read(p)
}

// seededSource is a fully deterministic ChaCha8 stream.
type seededSource struct {
	mu     sync.Mutex
	chacha *rand.ChaCha8
	rng    *rand.Rand
}

// Seeded returns a deterministic source; two sources built from the same seed
// produce identical sequences.
func Seeded(seed uint64) Source {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	chacha := rand.NewChaCha8(key)
	return &seededSource{chacha: chacha, rng: rand.New(chacha)}
}

func (s *seededSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *seededSource) Int64N(n int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Int64N(n)
}

func (s *seededSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chacha.Read(p)
}

// Token returns nBytes of randomness from src, hex-encoded.
func Token(src Source, nBytes int) (string, error) {
	if nBytes <= 0 {
		return "", fmt.Errorf("random: token length must be positive, got %d", nBytes)
	}
	buf := make([]byte, nBytes)
	if _, err := src.Read(buf); err != nil {
		return "", fmt.Errorf("random: read token bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// DurationBetween draws a uniform duration in [min, max] at millisecond granularity.
func DurationBetween(src Source, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := int64((max - min) / time.Millisecond)
	if span <= 0 {
		return min
	}
	return min + time.Duration(src.Int64N(span+1))*time.Millisecond
}
