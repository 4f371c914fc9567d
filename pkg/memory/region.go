package memory

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/selfbus/bcu-go/pkg/hal"
	"github.com/selfbus/bcu-go/pkg/log"
)

// DefaultRetries is how often a failed page commit is retried.
const DefaultRetries = 1

// Commit triggers recorded in commit events.
const (
	TriggerFlush    = "flush"
	TriggerPressure = "pressure"
)

// Config fixes the dimensions of a region.
type Config struct {
	// Name identifies the region in errors and events.
	Name string

	// Start is the physical base address.
	Start uint32

	// Size is the window size in bytes.
	Size uint32

	// ShadowSize is the number of dirty pages held in RAM before a
	// write forces a commit.
	ShadowSize uint32
}

// Option configures a Region.
type Option func(*Region)

// WithInterrupts sets the controller masked during page commits.
func WithInterrupts(irq hal.Interrupts) Option {
	return func(r *Region) {
		if irq != nil {
			r.irq = irq
		}
	}
}

// WithLogger sets the event logger.
func WithLogger(l log.Logger) Option {
	return func(r *Region) {
		r.logger = log.OrNoop(l)
	}
}

// WithRetries sets how often a failed page commit is retried.
func WithRetries(n int) Option {
	return func(r *Region) {
		if n >= 0 {
			r.retries = n
		}
	}
}

// Region is an addressable byte window with shadow/commit semantics.
// It is safe for concurrent use.
type Region struct {
	name       string
	start      uint32
	size       uint32
	shadowSize uint32

	flash    hal.Flash
	pageSize uint32
	irq      hal.Interrupts
	logger   log.Logger
	retries  int

	mu      sync.RWMutex
	data    []byte
	dirty   map[uint32]struct{}
	commits int
}

// New creates a region. With a nil flash the region is volatile.
// A persistent region loads its shadow from flash.
func New(cfg Config, flash hal.Flash, opts ...Option) (*Region, error) {
	name := cfg.Name
	if name == "" {
		name = "region"
	}
	if cfg.Size == 0 {
		return nil, fmt.Errorf("%w: %s size is zero", ErrInvalidConfig, name)
	}
	if cfg.ShadowSize > cfg.Size {
		return nil, fmt.Errorf("%w: %s shadow size %d exceeds size %d", ErrInvalidConfig, name, cfg.ShadowSize, cfg.Size)
	}

	r := &Region{
		name:       name,
		start:      cfg.Start,
		size:       cfg.Size,
		shadowSize: cfg.ShadowSize,
		flash:      flash,
		irq:        hal.NoInterrupts{},
		logger:     log.NoopLogger{},
		retries:    DefaultRetries,
		data:       make([]byte, cfg.Size),
		dirty:      make(map[uint32]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	if flash == nil {
		return r, nil
	}
	if cfg.ShadowSize == 0 {
		return nil, fmt.Errorf("%w: %s needs at least one shadow page", ErrInvalidConfig, name)
	}
	if uint64(cfg.Start)+uint64(cfg.Size) > uint64(flash.Size()) {
		return nil, fmt.Errorf("%w: %s 0x%x+0x%x, flash is 0x%x", ErrExceedsFlash, name, cfg.Start, cfg.Size, flash.Size())
	}
	r.pageSize = uint32(flash.PageSize())
	if err := r.Load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Name returns the region name.
func (r *Region) Name() string { return r.name }

// Start returns the physical base address.
func (r *Region) Start() uint32 { return r.start }

// Size returns the window size.
func (r *Region) Size() uint32 { return r.size }

// End returns the last physical address of the window.
func (r *Region) End() uint32 { return r.start + r.size - 1 }

// ShadowSize returns the number of shadow pages.
func (r *Region) ShadowSize() uint32 { return r.shadowSize }

// Persistent reports whether the region is backed by flash.
func (r *Region) Persistent() bool { return r.flash != nil }

// Contains reports whether the physical address lies in the window.
func (r *Region) Contains(phys uint32) bool {
	return phys >= r.start && phys-r.start < r.size
}

// ContainsRange reports whether n bytes from phys lie in the window.
func (r *Region) ContainsRange(phys uint32, n int) bool {
	return r.Contains(phys) && r.check(phys-r.start, n) == nil
}

// Resolve returns the physical address of offset.
func (r *Region) Resolve(offset uint32) (uint32, error) {
	if err := r.check(offset, 1); err != nil {
		return 0, err
	}
	return r.start + offset, nil
}

func (r *Region) check(offset uint32, n int) error {
	if n < 0 || uint64(offset)+uint64(n) > uint64(r.size) {
		return &RangeError{Region: r.name, Offset: offset, Len: n, Size: r.size}
	}
	return nil
}

// Load replaces the shadow with the flash contents and clears all dirty
// pages. It does nothing for a volatile region.
func (r *Region) Load() error {
	if r.flash == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.flash.Read(r.start, r.data); err != nil {
		return fmt.Errorf("%s: loading shadow: %w", r.name, err)
	}
	clear(r.dirty)
	return nil
}

// Clear zeroes the window. For a persistent region every page becomes dirty.
func (r *Region) Clear() error {
	return r.Write(0, make([]byte, r.size))
}

// Read returns a copy of n bytes at offset.
func (r *Region) Read(offset uint32, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := r.ReadInto(offset, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadInto fills buf from offset.
func (r *Region) ReadInto(offset uint32, buf []byte) error {
	if err := r.check(offset, len(buf)); err != nil {
		return err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	copy(buf, r.data[offset:])
	return nil
}

// Byte returns the byte at offset.
func (r *Region) Byte(offset uint32) (byte, error) {
	if err := r.check(offset, 1); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data[offset], nil
}

// SetByte writes one byte.
func (r *Region) SetByte(offset uint32, b byte) error {
	return r.Write(offset, []byte{b})
}

// Uint16 reads a big-endian 16-bit value.
func (r *Region) Uint16(offset uint32) (uint16, error) {
	var b [2]byte
	if err := r.ReadInto(offset, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

// PutUint16 writes a big-endian 16-bit value.
func (r *Region) PutUint16(offset uint32, v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return r.Write(offset, b[:])
}

// Write copies data into the shadow at offset and marks the touched pages
// dirty. When a write reaches a page that is not yet dirty while the shadow
// is full, the shadow is committed first.
func (r *Region) Write(offset uint32, data []byte) error {
	if err := r.check(offset, len(data)); err != nil {
		return err
	}
	r.mu.Lock()
	if r.flash == nil || !r.overflowsLocked(offset, len(data)) {
		r.writeLocked(offset, data)
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	var err error
	hal.Critical(r.irq, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		err = r.writeCommittingLocked(offset, data)
	})
	return err
}

// overflowsLocked reports whether writing n bytes at offset dirties more
// pages than the shadow holds.
func (r *Region) overflowsLocked(offset uint32, n int) bool {
	if n == 0 {
		return false
	}
	phys := r.start + offset
	first := phys - phys%r.pageSize
	last := phys + uint32(n) - 1
	fresh := uint32(0)
	for page := first; page <= last; page += r.pageSize {
		if _, ok := r.dirty[page]; !ok {
			fresh++
		}
	}
	return uint32(len(r.dirty))+fresh > r.shadowSize
}

func (r *Region) writeLocked(offset uint32, data []byte) {
	copy(r.data[offset:], data)
	if r.flash == nil || len(data) == 0 {
		return
	}
	phys := r.start + offset
	last := phys + uint32(len(data))
	for page := phys - phys%r.pageSize; page < last; page += r.pageSize {
		r.dirty[page] = struct{}{}
	}
}

// writeCommittingLocked writes page by page and commits the shadow each
// time a new page does not fit. Interrupts are masked by the caller.
func (r *Region) writeCommittingLocked(offset uint32, data []byte) error {
	for len(data) > 0 {
		phys := r.start + offset
		page := phys - phys%r.pageSize
		n := int(page + r.pageSize - phys)
		if n > len(data) {
			n = len(data)
		}
		if _, ok := r.dirty[page]; !ok && uint32(len(r.dirty)) >= r.shadowSize {
			if err := r.commitLocked(TriggerPressure); err != nil {
				return err
			}
		}
		copy(r.data[offset:], data[:n])
		r.dirty[page] = struct{}{}
		offset += uint32(n)
		data = data[n:]
	}
	return nil
}

// Dirty reports whether the shadow holds uncommitted writes.
func (r *Region) Dirty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dirty) > 0
}

// DirtyPages returns the number of dirty pages.
func (r *Region) DirtyPages() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dirty)
}

// Commits returns the number of commits that wrote or skipped pages.
func (r *Region) Commits() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commits
}

// Snapshot returns a copy of the whole shadow.
func (r *Region) Snapshot() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]byte, len(r.data))
	copy(out, r.data)
	return out
}

// Commit flushes dirty pages to flash.
func (r *Region) Commit() error {
	return r.Flush(TriggerFlush)
}

// Flush flushes dirty pages to flash, recording trigger in the commit event.
// A page that fails is left dirty and the remaining pages are not touched.
// Interrupts stay masked for the whole commit. The mask is taken before the
// region lock, the same order readers in a critical section use.
func (r *Region) Flush(trigger string) error {
	if r.flash == nil {
		return nil
	}
	var err error
	hal.Critical(r.irq, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		err = r.commitLocked(trigger)
	})
	return err
}

func (r *Region) commitLocked(trigger string) error {
	if len(r.dirty) == 0 {
		return nil
	}

	pages := make([]uint32, 0, len(r.dirty))
	for p := range r.dirty {
		pages = append(pages, p)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i] < pages[j] })

	ev := &log.CommitEvent{Region: r.name, Trigger: trigger}
	for _, p := range pages {
		written, attempts, err := r.commitPage(p)
		if attempts > ev.Attempts {
			ev.Attempts = attempts
		}
		if err != nil {
			ev.Failed = true
			r.logCommit(ev)
			return &CommitError{Region: r.name, Page: p, Attempts: attempts, Err: err}
		}
		if written {
			ev.PagesWritten++
		} else {
			ev.PagesSkipped++
		}
		delete(r.dirty, p)
	}
	r.commits++
	r.logCommit(ev)
	return nil
}

// commitPage writes one page. It reports whether flash was changed and how
// many attempts were made.
func (r *Region) commitPage(page uint32) (bool, int, error) {
	end := page + r.pageSize
	if int(end) > r.flash.Size() {
		end = uint32(r.flash.Size())
	}
	current := make([]byte, end-page)
	if err := r.flash.Read(page, current); err != nil {
		return false, 1, err
	}

	img := make([]byte, len(current))
	copy(img, current)
	lo, hi := max(page, r.start), min(end, r.start+r.size)
	copy(img[lo-page:hi-page], r.data[lo-r.start:hi-r.start])

	if bytes.Equal(img, current) {
		return false, 0, nil
	}

	var err error
	for attempt := 1; attempt <= 1+r.retries; attempt++ {
		if err = r.programPage(page, img); err == nil {
			return true, attempt, nil
		}
	}
	return false, 1 + r.retries, err
}

// programPage erases and programs a page, then verifies it. Interrupts are
// masked by the caller.
func (r *Region) programPage(page uint32, img []byte) error {
	if err := r.flash.Erase(page); err != nil {
		return err
	}
	if err := r.flash.Program(page, img); err != nil {
		return err
	}

	check := make([]byte, len(img))
	if err := r.flash.Read(page, check); err != nil {
		return err
	}
	if !bytes.Equal(check, img) {
		return fmt.Errorf("%w: page 0x%x", ErrVerify, page)
	}
	return nil
}

func (r *Region) logCommit(ev *log.CommitEvent) {
	r.logger.Log(log.Event{
		Layer:    log.LayerMemory,
		Category: log.CategoryCommit,
		Commit:   ev,
	})
}
