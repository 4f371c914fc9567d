package bcu

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/selfbus/bcu-go/pkg/comobj"
	"github.com/selfbus/bcu-go/pkg/hal"
	"github.com/selfbus/bcu-go/pkg/layout"
	"github.com/selfbus/bcu-go/pkg/log"
	"github.com/selfbus/bcu-go/pkg/memory"
	"github.com/selfbus/bcu-go/pkg/properties"
	"github.com/selfbus/bcu-go/pkg/tables"
	"github.com/selfbus/bcu-go/pkg/telegram"
	"github.com/selfbus/bcu-go/pkg/usermem"
)

// DefaultPhysicalAddress is assigned to a device booting on erased flash.
const DefaultPhysicalAddress telegram.Address = 0xffff

// Device is one bus coupling unit.
type Device struct {
	cfg      Config
	layout   layout.Layout
	flash    hal.Flash
	bus      hal.Bus
	irq      hal.Interrupts
	clock    hal.Clock
	logger   *log.Stamper
	observer Observer

	ram        *usermem.UserRam
	eeprom     *usermem.UserEeprom
	space      *usermem.Space
	tables     *tables.Tables
	comObjects *comobj.Table
	props      *properties.Table

	// opMu serializes lifecycle operations. Receive does not take it.
	opMu  sync.Mutex
	state atomic.Uint32

	flushPending  bool
	flushAt       uint32
	lastGroupSend uint32

	received atomic.Uint64
	dropped  atomic.Uint64

	haltMu  sync.Mutex
	haltErr error
}

// New builds the device of variant v on flash and bus and loads the
// EEPROM shadow. The device is Initialized; Start makes it Running.
func New(v layout.Variant, flash hal.Flash, bus hal.Bus, opts ...Option) (*Device, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewWithConfig(v, flash, bus, cfg)
}

// NewWithConfig is like New with an explicit Config.
func NewWithConfig(v layout.Variant, flash hal.Flash, bus hal.Bus, cfg Config) (*Device, error) {
	l, err := layout.For(v)
	if err != nil {
		return nil, err
	}
	if err := checkHardware(l, flash); err != nil {
		return nil, err
	}
	if bus == nil {
		return nil, fmt.Errorf("%s: no bus", v)
	}

	d := &Device{
		cfg:      cfg,
		layout:   l,
		flash:    flash,
		bus:      bus,
		irq:      cfg.Interrupts,
		clock:    cfg.Clock,
		observer: cfg.Observer,
	}
	if d.irq == nil {
		d.irq = hal.NoInterrupts{}
	}
	if d.clock == nil {
		d.clock = newWallClock()
	}
	if d.observer == nil {
		d.observer = noopObserver{}
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
		d.cfg.SessionID = cfg.SessionID
	}
	d.logger = log.NewStamper(cfg.Logger, cfg.SessionID, v.String(), d.clock.Millis)

	if err := d.build(); err != nil {
		return nil, err
	}
	d.transition(StateInitialized, 0)
	return d, nil
}

// checkHardware verifies that the variant's footprint fits the flash.
func checkHardware(l layout.Layout, flash hal.Flash) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigurationMismatch, err)
	}
	if flash == nil {
		return &MismatchError{Field: "flash", Want: "a flash device", Got: "none"}
	}
	if flash.PageSize() <= 0 || flash.Size()%flash.PageSize() != 0 {
		return &MismatchError{
			Field: "flash page size",
			Want:  fmt.Sprintf("a divisor of 0x%x", flash.Size()),
			Got:   fmt.Sprintf("0x%x", flash.PageSize()),
		}
	}
	if need := l.EEPROM.End(); uint64(flash.Size()) < uint64(need) {
		return &MismatchError{
			Field: "flash size",
			Want:  fmt.Sprintf(">= 0x%x for %s eeprom %s", need, l.Variant, l.EEPROM),
			Got:   fmt.Sprintf("0x%x", flash.Size()),
		}
	}
	return nil
}

func (d *Device) build() error {
	var err error
	opts := []memory.Option{memory.WithLogger(d.logger), memory.WithRetries(d.cfg.CommitRetries)}

	if d.ram, err = usermem.NewUserRam(d.layout, d.irq, opts...); err != nil {
		return err
	}
	if d.eeprom, err = usermem.NewUserEeprom(d.layout, d.flash, d.irq, opts...); err != nil {
		if errors.Is(err, memory.ErrExceedsFlash) {
			return fmt.Errorf("%w: %v", ErrConfigurationMismatch, err)
		}
		return err
	}
	if err := d.formatIfErased(); err != nil {
		return err
	}
	d.space = usermem.NewSpace(d.ram, d.eeprom, d.irq)
	if d.tables, err = tables.New(d.layout, d.space, d.eeprom); err != nil {
		return err
	}
	if d.comObjects, err = comobj.New(d.layout, d.space, d.eeprom, d.tables); err != nil {
		return err
	}
	if d.layout.Properties {
		if d.props, err = properties.New(d.layout, d.space); err != nil {
			return err
		}
	}
	return nil
}

// formatIfErased zeroes an EEPROM image that reads as erased flash, so a
// fresh device has no tables and no application. The change is committed
// by the first flush.
func (d *Device) formatIfErased() error {
	for _, b := range d.eeprom.Region().Snapshot() {
		if b != 0xff {
			return nil
		}
	}
	if err := d.eeprom.Region().Clear(); err != nil {
		return err
	}
	return d.eeprom.SetWord(d.layout.Eeprom.AddrTab, uint16(DefaultPhysicalAddress))
}

// Layout returns the memory layout of the device.
func (d *Device) Layout() layout.Layout { return d.layout }

// Variant returns the hardware variant.
func (d *Device) Variant() layout.Variant { return d.layout.Variant }

// State returns the lifecycle state.
func (d *Device) State() State { return State(d.state.Load()) }

// SessionID returns the boot session stamped on events.
func (d *Device) SessionID() string { return d.cfg.SessionID }

// Ram returns the user RAM.
func (d *Device) Ram() *usermem.UserRam { return d.ram }

// Eeprom returns the user EEPROM.
func (d *Device) Eeprom() *usermem.UserEeprom { return d.eeprom }

// Space returns the unified address space.
func (d *Device) Space() *usermem.Space { return d.space }

// AddrTables returns the address and association tables.
func (d *Device) AddrTables() *tables.Tables { return d.tables }

// ComObjects returns the communication object table.
func (d *Device) ComObjects() *comobj.Table { return d.comObjects }

// Properties returns the property table. ok is false for BCU1.
func (d *Device) Properties() (t *properties.Table, ok bool) {
	return d.props, d.props != nil
}

// Received returns how many telegrams were processed.
func (d *Device) Received() uint64 { return d.received.Load() }

// Dropped returns how many telegrams were discarded unprocessed.
func (d *Device) Dropped() uint64 { return d.dropped.Load() }

// Err returns the error that halted the device, or nil.
func (d *Device) Err() error {
	d.haltMu.Lock()
	defer d.haltMu.Unlock()
	return d.haltErr
}

// OwnAddress returns the physical address of the device.
func (d *Device) OwnAddress() (telegram.Address, error) {
	if d.State() == StateUninitialized {
		return 0, ErrUninitialized
	}
	a, err := d.eeprom.Word(d.layout.Eeprom.AddrTab)
	return telegram.Address(a), err
}

// SetOwnAddress stores a new physical address in the EEPROM.
func (d *Device) SetOwnAddress(a telegram.Address) error {
	if d.State() == StateUninitialized {
		return ErrUninitialized
	}
	return d.eeprom.SetWord(d.layout.Eeprom.AddrTab, uint16(a))
}

// ProgrammingMode reports whether the programming mode is active.
func (d *Device) ProgrammingMode() bool {
	return d.State() != StateUninitialized && d.ram.ProgrammingMode()
}

// SetProgrammingMode switches the programming mode.
func (d *Device) SetProgrammingMode(on bool) error {
	if d.State() == StateUninitialized {
		return ErrUninitialized
	}
	var err error
	if on {
		_, err = d.ram.UpdateStatus(usermem.StatusProg, 0)
	} else {
		_, err = d.ram.UpdateStatus(0, usermem.StatusProg)
	}
	return err
}

// transition moves to state to. A non-zero reason is delivered to the
// observer first.
func (d *Device) transition(to State, reason Reason) {
	from := d.State()
	if reason != 0 {
		d.observer.Notify(reason)
	}
	d.state.Store(uint32(to))
	d.logLifecycle(from, to, reason)
}

// notify delivers a notification that does not change the state.
func (d *Device) notify(reason Reason) {
	d.observer.Notify(reason)
	s := d.State()
	d.logLifecycle(s, s, reason)
}

// halt stops the device after a fatal error.
func (d *Device) halt(err error) {
	d.haltMu.Lock()
	d.haltErr = err
	d.haltMu.Unlock()

	from := d.State()
	d.state.Store(uint32(StateHalted))
	d.logLifecycle(from, StateHalted, 0)
	d.logError(err, "commit", true)
	d.observer.Halted(err)
}

func (d *Device) logLifecycle(from, to State, reason Reason) {
	ev := &log.LifecycleEvent{NewState: to.String()}
	if from != to {
		ev.OldState = from.String()
	}
	if reason != 0 {
		ev.Notification = reason.String()
	}
	d.logger.Log(log.Event{Layer: log.LayerDevice, Category: log.CategoryLifecycle, Lifecycle: ev})
}

func (d *Device) logTelegram(dir log.Direction, t telegram.Telegram, dropReason string) {
	d.logger.Log(log.Event{
		Direction: dir,
		Layer:     log.LayerDevice,
		Category:  log.CategoryTelegram,
		Telegram: &log.TelegramEvent{
			Source:     uint16(t.Source),
			Dest:       uint16(t.Dest),
			Group:      t.Group,
			APCI:       uint16(t.APCI),
			Payload:    t.Payload,
			Dropped:    dropReason != "",
			DropReason: dropReason,
		},
	})
}

func (d *Device) logMemory(space string, addr uint32, n int, write bool) {
	d.logger.Log(log.Event{
		Layer:    log.LayerDevice,
		Category: log.CategoryMemory,
		Memory:   &log.MemoryEvent{Space: space, Address: addr, Length: n, Write: write},
	})
}

func (d *Device) logError(err error, context string, fatal bool) {
	d.logger.Log(log.Event{
		Layer:    log.LayerDevice,
		Category: log.CategoryError,
		Error:    &log.ErrorEventData{Layer: log.LayerDevice, Message: err.Error(), Fatal: fatal, Context: context},
	})
}

// wallClock is the default system tick.
type wallClock struct {
	start time.Time
}

func newWallClock() *wallClock { return &wallClock{start: time.Now()} }

func (w *wallClock) Millis() uint32 { return uint32(time.Since(w.start) / time.Millisecond) }
