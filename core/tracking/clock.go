package tracking

import (
	"sync"
	"time"
)

// Clock provides the current time to animations.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real monotonic time.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// MockClock is a controllable Clock for tests.
type MockClock struct {
	mu          sync.RWMutex
	currentTime time.Time
}

func NewMockClock(start time.Time) *MockClock {
	return &MockClock{currentTime: start}
}

func (m *MockClock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentTime
}

func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)
}
