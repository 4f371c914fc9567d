package log

// Logger receives device events.
// Pass nil or NoopLogger to disable logging.
type Logger interface {
	// Log records an event. Implementations must be safe for concurrent use
	// and must not block: it is called on the telegram hot path.
	Log(event Event)
}

// NoopLogger discards all events.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// OrNoop returns l, or NoopLogger when l is nil.
func OrNoop(l Logger) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return l
}

var _ Logger = NoopLogger{}
