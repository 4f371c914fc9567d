package sim

import (
	"sync"

	"github.com/selfbus/bcu-go/pkg/hal"
	"github.com/selfbus/bcu-go/pkg/telegram"
)

// Bus records sent telegrams and lets tests control idleness.
type Bus struct {
	mu      sync.Mutex
	busy    bool
	sent    []telegram.Telegram
	sendErr error
}

// NewBus creates an idle bus.
func NewBus() *Bus {
	return &Bus{}
}

// Idle reports whether the bus is idle.
func (b *Bus) Idle() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.busy
}

// SetBusy marks the bus busy or idle.
func (b *Bus) SetBusy(busy bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.busy = busy
}

// FailSend makes subsequent sends return err (nil to clear).
func (b *Bus) FailSend(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendErr = err
}

// Send records the telegram.
func (b *Bus) Send(t telegram.Telegram) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	t.Payload = append([]byte(nil), t.Payload...)
	b.sent = append(b.sent, t)
	return nil
}

// Sent returns the telegrams sent so far.
func (b *Bus) Sent() []telegram.Telegram {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]telegram.Telegram, len(b.sent))
	copy(out, b.sent)
	return out
}

// Take returns and clears the sent telegrams.
func (b *Bus) Take() []telegram.Telegram {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.sent
	b.sent = nil
	return out
}

var _ hal.Bus = (*Bus)(nil)
