package audit

import (
	"context"
	"sync"
)

// MemoryHandler keeps the most recent events in a circular buffer.
type MemoryHandler struct {
	mu         sync.RWMutex
	events     []Event
	bufferSize int
	index      int
	count      int
}

// NewMemoryHandler creates a handler retaining up to bufferSize events.
func NewMemoryHandler(bufferSize int) *MemoryHandler {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &MemoryHandler{
		events:     make([]Event, bufferSize),
		bufferSize: bufferSize,
	}
}

func (m *MemoryHandler) Handle(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[m.index] = event
	m.index = (m.index + 1) % m.bufferSize
	if m.count < m.bufferSize {
		m.count++
	}
	return nil
}

// Events returns stored events oldest first, filtered by f.
func (m *MemoryHandler) Events(f Filter) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Event, 0, m.count)
	for i := 0; i < m.count; i++ {
		idx := (m.index - m.count + i + m.bufferSize) % m.bufferSize
		e := m.events[idx]
		if !f.Match(e) {
			continue
		}
		result = append(result, e)
		if f.Limit > 0 && len(result) == f.Limit {
			break
		}
	}
	return result
}

// Len returns the number of stored events.
func (m *MemoryHandler) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}
