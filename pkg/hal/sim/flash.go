package sim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/selfbus/bcu-go/pkg/hal"
)

// Flash errors.
var (
	ErrFlashFault = errors.New("flash operation failed")
	ErrAlignment  = errors.New("address not page aligned")
	ErrBounds     = errors.New("address outside flash")
)

// Default simulated geometry: 64 KiB in 256-byte pages.
const (
	DefaultFlashSize = 0x10000
	DefaultPageSize  = 0x100
)

// DefaultTiming is the documented timing of the simulated flash.
var DefaultTiming = hal.FlashTiming{
	Erase:   4 * time.Millisecond,
	Program: 1 * time.Millisecond,
}

// FlashStats counts flash operations.
type FlashStats struct {
	Erases   int
	Programs int
	Faults   int
}

// Flash is an in-memory NOR flash.
type Flash struct {
	mu       sync.Mutex
	data     []byte
	pageSize int
	timing   hal.FlashTiming
	clock    *Clock

	stats       FlashStats
	failErase   int
	failProgram int
	wear        map[uint32]int
}

// NewFlash creates an erased flash of size bytes with the given page size.
func NewFlash(size, pageSize int) *Flash {
	if size <= 0 {
		size = DefaultFlashSize
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	data := make([]byte, size)
	for i := range data {
		data[i] = 0xff
	}
	return &Flash{
		data:     data,
		pageSize: pageSize,
		timing:   DefaultTiming,
		wear:     make(map[uint32]int),
	}
}

// AttachClock makes erase and program advance c by the documented timing.
func (f *Flash) AttachClock(c *Clock) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = c
}

// SetTiming overrides the documented timing.
func (f *Flash) SetTiming(t hal.FlashTiming) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timing = t
}

// PageSize returns the page size.
func (f *Flash) PageSize() int { return f.pageSize }

// Size returns the flash size.
func (f *Flash) Size() int { return len(f.data) }

// Timing returns the documented timing.
func (f *Flash) Timing() hal.FlashTiming {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timing
}

// Read copies flash contents into buf.
func (f *Flash) Read(addr uint32, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if int(addr)+len(buf) > len(f.data) {
		return fmt.Errorf("%w: read 0x%x+%d", ErrBounds, addr, len(buf))
	}
	copy(buf, f.data[addr:])
	return nil
}

// Erase sets the page at pageAddr to 0xFF.
func (f *Flash) Erase(pageAddr uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkPage(pageAddr); err != nil {
		return err
	}
	if f.failErase > 0 {
		f.failErase--
		f.stats.Faults++
		return fmt.Errorf("%w: erase 0x%x", ErrFlashFault, pageAddr)
	}
	page := f.data[pageAddr : int(pageAddr)+f.pageSize]
	for i := range page {
		page[i] = 0xff
	}
	f.stats.Erases++
	f.wear[pageAddr]++
	f.advance(f.timing.Erase)
	return nil
}

// Program clears bits of the page at pageAddr according to data.
func (f *Flash) Program(pageAddr uint32, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkPage(pageAddr); err != nil {
		return err
	}
	if len(data) > f.pageSize {
		return fmt.Errorf("%w: program %d bytes into %d byte page", ErrBounds, len(data), f.pageSize)
	}
	if f.failProgram > 0 {
		f.failProgram--
		f.stats.Faults++
		return fmt.Errorf("%w: program 0x%x", ErrFlashFault, pageAddr)
	}
	for i, b := range data {
		f.data[int(pageAddr)+i] &= b
	}
	f.stats.Programs++
	f.advance(f.timing.Program)
	return nil
}

// FailNextErase makes the next n erase operations fail.
func (f *Flash) FailNextErase(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failErase = n
}

// FailNextProgram makes the next n program operations fail.
func (f *Flash) FailNextProgram(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failProgram = n
}

// Stats returns operation counters.
func (f *Flash) Stats() FlashStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

// Wear returns how often the page at pageAddr was erased.
func (f *Flash) Wear(pageAddr uint32) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wear[pageAddr]
}

// Image returns a copy of the whole flash.
func (f *Flash) Image() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out
}

// LoadImage replaces the flash contents. The image must match the size.
func (f *Flash) LoadImage(img []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(img) != len(f.data) {
		return fmt.Errorf("%w: image is %d bytes, flash is %d", ErrBounds, len(img), len(f.data))
	}
	copy(f.data, img)
	return nil
}

func (f *Flash) checkPage(pageAddr uint32) error {
	if int(pageAddr)%f.pageSize != 0 {
		return fmt.Errorf("%w: 0x%x", ErrAlignment, pageAddr)
	}
	if int(pageAddr)+f.pageSize > len(f.data) {
		return fmt.Errorf("%w: page 0x%x", ErrBounds, pageAddr)
	}
	return nil
}

func (f *Flash) advance(d time.Duration) {
	if f.clock != nil {
		f.clock.Advance(d)
	}
}

var _ hal.Flash = (*Flash)(nil)
