package sim

import (
	"sync"
	"sync/atomic"

	"github.com/selfbus/bcu-go/pkg/hal"
)

// Interrupts simulates a single-core interrupt mask. While one goroutine
// holds interrupts disabled, others calling Disable wait, as an interrupt
// handler would be held off.
type Interrupts struct {
	mu       sync.Mutex
	masked   atomic.Bool
	sections atomic.Int64
}

// NewInterrupts creates an unmasked controller.
func NewInterrupts() *Interrupts {
	return &Interrupts{}
}

// Disable masks interrupts.
func (i *Interrupts) Disable() {
	i.mu.Lock()
	i.masked.Store(true)
	i.sections.Add(1)
}

// Enable unmasks interrupts.
func (i *Interrupts) Enable() {
	i.masked.Store(false)
	i.mu.Unlock()
}

// Masked reports whether interrupts are currently masked.
func (i *Interrupts) Masked() bool {
	return i.masked.Load()
}

// Sections returns how many critical sections were entered.
func (i *Interrupts) Sections() int64 {
	return i.sections.Load()
}

var _ hal.Interrupts = (*Interrupts)(nil)
