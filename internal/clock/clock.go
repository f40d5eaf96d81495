package clock

import (
	"sync"
	"time"
)

// Clock supplies timestamps to the economic core. Implementations must be
// monotonically non-decreasing: two successive Now calls never go backwards.
type Clock interface {
	Now() time.Time
}

// System is the wall-clock backed Clock. It latches the last observed time so
// a backwards wall-clock step is never surfaced to callers.
type System struct {
	mu   sync.Mutex
	last time.Time
}

func NewSystem() *System {
	return &System{}
}

func (s *System) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if now.Before(s.last) {
		return s.last
	}
	s.last = now
	return now
}

// Manual is a test clock advanced explicitly by the caller.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC()}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d. Negative advances are ignored.
func (m *Manual) Advance(d time.Duration) {
	if d < 0 {
		return
	}
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
