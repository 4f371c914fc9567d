package sim

import (
	"sync/atomic"
	"time"

	"github.com/selfbus/bcu-go/pkg/hal"
)

// Clock is a manually advanced system tick.
type Clock struct {
	ms atomic.Uint32
}

// NewClock creates a clock at tick 0.
func NewClock() *Clock {
	return &Clock{}
}

// Millis returns the current tick.
func (c *Clock) Millis() uint32 {
	return c.ms.Load()
}

// Advance moves the tick forward by d, rounded down to milliseconds.
func (c *Clock) Advance(d time.Duration) {
	c.ms.Add(uint32(d / time.Millisecond))
}

// WallClock is a system tick driven by the host clock.
type WallClock struct {
	start time.Time
}

// NewWallClock creates a WallClock starting now.
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

// Millis returns milliseconds since the clock was created.
func (w *WallClock) Millis() uint32 {
	return uint32(time.Since(w.start) / time.Millisecond)
}

var (
	_ hal.Clock = (*Clock)(nil)
	_ hal.Clock = (*WallClock)(nil)
)
