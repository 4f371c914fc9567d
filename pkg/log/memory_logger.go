package log

import "sync"

// MemoryLogger keeps the most recent events in a ring buffer.
// The interactive console and tests read it back with Events.
type MemoryLogger struct {
	mu     sync.Mutex
	events []Event
	next   int
	full   bool
}

// NewMemoryLogger creates a MemoryLogger holding up to capacity events.
func NewMemoryLogger(capacity int) *MemoryLogger {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemoryLogger{events: make([]Event, capacity)}
}

// Log stores the event, overwriting the oldest one when full.
func (m *MemoryLogger) Log(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[m.next] = event
	m.next++
	if m.next == len(m.events) {
		m.next = 0
		m.full = true
	}
}

// Events returns the stored events, oldest first.
func (m *MemoryLogger) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.full {
		out := make([]Event, m.next)
		copy(out, m.events[:m.next])
		return out
	}
	out := make([]Event, 0, len(m.events))
	out = append(out, m.events[m.next:]...)
	out = append(out, m.events[:m.next]...)
	return out
}

// Matching returns the stored events that match the filter.
func (m *MemoryLogger) Matching(f Filter) []Event {
	var out []Event
	for _, e := range m.Events() {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Reset discards all stored events.
func (m *MemoryLogger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next = 0
	m.full = false
}

var _ Logger = (*MemoryLogger)(nil)
