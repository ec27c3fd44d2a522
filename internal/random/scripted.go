package random

import "sync"

// Scripted replays a fixed list of draws. Float64 cycles through the given values,
// Int64N returns the configured value clamped into range, and Read yields a
// counter-based byte pattern so consecutive tokens differ.
type Scripted struct {
	mu      sync.Mutex
	floats  []float64
	next    int
	intDraw int64
	counter byte
}

// NewScripted builds a Scripted source. With no floats it always returns 0.
func NewScripted(floats ...float64) *Scripted {
	return &Scripted{floats: floats}
}

// WithInt sets the value returned by Int64N.
func (s *Scripted) WithInt(v int64) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intDraw = v
	return s
}

func (s *Scripted) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.floats) == 0 {
		return 0
	}
	v := s.floats[s.next%len(s.floats)]
	s.next++
	return v
}

func (s *Scripted) Int64N(n int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.intDraw < 0:
		return 0
	case s.intDraw >= n:
		return n - 1
	default:
		return s.intDraw
	}
}

func (s *Scripted) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	for i := range p {
		p[i] = s.counter + byte(i)
	}
	return len(p), nil
}
