// Package hal defines the hardware collaborators a BCU consumes: flash
// storage, the interrupt controller, the system tick and the bus.
//
// Implementations for real microcontrollers live outside this module.
// Package sim provides host implementations used by tests and the
// simulator.
package hal

import (
	"time"

	"github.com/selfbus/bcu-go/pkg/telegram"
)

// FlashTiming documents how long flash operations take.
type FlashTiming struct {
	// Erase is the time to erase one page.
	Erase time.Duration

	// Program is the time to program one page.
	Program time.Duration
}

// Flash is page-organized non-volatile storage.
//
// A page must be erased (all bytes 0xFF) before it is programmed.
// Programming can only clear bits.
type Flash interface {
	// PageSize returns the erase/program granularity in bytes.
	PageSize() int

	// Size returns the total size in bytes.
	Size() int

	// Read copies len(buf) bytes starting at addr.
	Read(addr uint32, buf []byte) error

	// Erase erases the page starting at pageAddr.
	Erase(pageAddr uint32) error

	// Program writes data (at most one page) to the page at pageAddr.
	Program(pageAddr uint32, data []byte) error

	// Timing returns the documented operation times.
	Timing() FlashTiming
}

// Interrupts masks and unmasks interrupt delivery.
// Calls do not nest: every Disable is followed by exactly one Enable.
type Interrupts interface {
	Disable()
	Enable()
}

// Critical runs fn with interrupts masked.
func Critical(irq Interrupts, fn func()) {
	irq.Disable()
	defer irq.Enable()
	fn()
}

// NoInterrupts is an Interrupts that does nothing.
type NoInterrupts struct{}

// Disable does nothing.
func (NoInterrupts) Disable() {}

// Enable does nothing.
func (NoInterrupts) Enable() {}

// Clock is the system tick. It is written only by the timer interrupt
// and read by any component.
type Clock interface {
	// Millis returns milliseconds since boot. It wraps after ~49 days.
	Millis() uint32
}

// Bus is the data-link side of the device.
type Bus interface {
	// Idle reports whether the bus is quiet (no frame in progress or queued).
	Idle() bool

	// Send queues a telegram for transmission.
	Send(t telegram.Telegram) error
}

var (
	_ Interrupts = NoInterrupts{}
)
