package log

import "time"

// Stamper fills in the per-boot fields of an event (timestamp, session,
// variant, tick) before passing it on. Components log bare payloads and
// the device wraps its logger in a Stamper once at boot.
type Stamper struct {
	next      Logger
	sessionID string
	variant   string
	tick      func() uint32
	now       func() time.Time
}

// NewStamper creates a Stamper. tick may be nil.
func NewStamper(next Logger, sessionID, variant string, tick func() uint32) *Stamper {
	return &Stamper{
		next:      OrNoop(next),
		sessionID: sessionID,
		variant:   variant,
		tick:      tick,
		now:       time.Now,
	}
}

// SessionID returns the session stamped on events.
func (s *Stamper) SessionID() string {
	return s.sessionID
}

// Log stamps and forwards the event. Fields already set are kept.
func (s *Stamper) Log(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	if e.SessionID == "" {
		e.SessionID = s.sessionID
	}
	if e.Variant == "" {
		e.Variant = s.variant
	}
	if e.Tick == 0 && s.tick != nil {
		e.Tick = s.tick()
	}
	s.next.Log(e)
}

var _ Logger = (*Stamper)(nil)
