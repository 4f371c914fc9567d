package usermem

import (
	"fmt"

	"github.com/selfbus/bcu-go/pkg/hal"
	"github.com/selfbus/bcu-go/pkg/layout"
	"github.com/selfbus/bcu-go/pkg/memory"
)

// UserEeprom is the persistent user EEPROM. Logical offset i maps to the
// physical address start+i.
type UserEeprom struct {
	region *memory.Region
	fields layout.EepromMap
	irq    hal.Interrupts
}

// NewUserEeprom builds the user EEPROM of a layout on flash and loads its
// shadow. The shadow holds every page the window touches.
func NewUserEeprom(l layout.Layout, flash hal.Flash, irq hal.Interrupts, opts ...memory.Option) (*UserEeprom, error) {
	if flash == nil {
		return nil, fmt.Errorf("user eeprom: %w: no flash", memory.ErrInvalidConfig)
	}
	if irq == nil {
		irq = hal.NoInterrupts{}
	}
	shadow := l.EEPROM.ShadowSize
	if shadow == 0 {
		shadow = pagesSpanned(l.EEPROM, uint32(flash.PageSize()))
	}
	opts = append([]memory.Option{memory.WithInterrupts(irq)}, opts...)
	region, err := memory.New(memory.Config{
		Name:       "eeprom",
		Start:      l.EEPROM.Start,
		Size:       l.EEPROM.Size,
		ShadowSize: min(shadow, l.EEPROM.Size),
	}, flash, opts...)
	if err != nil {
		return nil, fmt.Errorf("user eeprom: %w", err)
	}
	return &UserEeprom{region: region, fields: l.Eeprom, irq: irq}, nil
}

func pagesSpanned(w layout.Window, page uint32) uint32 {
	if page == 0 {
		return 1
	}
	first := w.Start / page
	last := (w.End() - 1) / page
	return last - first + 1
}

// Region returns the EEPROM region.
func (e *UserEeprom) Region() *memory.Region { return e.region }

// Read reads n bytes at offset.
func (e *UserEeprom) Read(offset uint32, n int) ([]byte, error) { return e.region.Read(offset, n) }

// Write writes data at offset into the shadow.
func (e *UserEeprom) Write(offset uint32, data []byte) error { return e.region.Write(offset, data) }

// Modified reports whether the shadow holds uncommitted writes.
func (e *UserEeprom) Modified() bool { return e.region.Dirty() }

// Commit writes the shadow to flash.
func (e *UserEeprom) Commit() error { return e.region.Commit() }

// Byte reads a one byte field. off is a field offset from the layout.
func (e *UserEeprom) Byte(off int) (byte, error) {
	if off == layout.None {
		return 0, ErrNoField
	}
	return e.region.Byte(uint32(off))
}

// SetByte writes a one byte field.
func (e *UserEeprom) SetByte(off int, b byte) error {
	if off == layout.None {
		return ErrNoField
	}
	return e.region.SetByte(uint32(off), b)
}

// Word reads a big-endian u16 field inside a critical section.
func (e *UserEeprom) Word(off int) (uint16, error) {
	if off == layout.None {
		return 0, ErrNoField
	}
	var v uint16
	var err error
	hal.Critical(e.irq, func() {
		v, err = e.region.Uint16(uint32(off))
	})
	return v, err
}

// SetWord writes a big-endian u16 field. The region writes both bytes
// under its lock; it may commit, so this never runs in a critical section.
func (e *UserEeprom) SetWord(off int, v uint16) error {
	if off == layout.None {
		return ErrNoField
	}
	return e.region.PutUint16(uint32(off), v)
}

// Bytes reads an n byte field.
func (e *UserEeprom) Bytes(off, n int) ([]byte, error) {
	if off == layout.None || n <= 0 {
		return nil, ErrNoField
	}
	return e.region.Read(uint32(off), n)
}

// SetBytes writes a field of len(data) bytes.
func (e *UserEeprom) SetBytes(off int, data []byte) error {
	if off == layout.None {
		return ErrNoField
	}
	return e.region.Write(uint32(off), data)
}

// Fields returns the field map of the variant.
func (e *UserEeprom) Fields() layout.EepromMap { return e.fields }

// Manufacturer returns the application manufacturer ID.
func (e *UserEeprom) Manufacturer() (uint16, error) { return e.Word(e.fields.Manufacturer) }

// DeviceType returns the application device type.
func (e *UserEeprom) DeviceType() (uint16, error) { return e.Word(e.fields.DeviceType) }

// Version returns the application version.
func (e *UserEeprom) Version() (byte, error) { return e.Byte(e.fields.Version) }

// AppPeiType returns the PEI type the application requires.
func (e *UserEeprom) AppPeiType() (byte, error) { return e.Byte(e.fields.AppPeiType) }

// RunError returns the runtime error flags.
func (e *UserEeprom) RunError() (byte, error) { return e.Byte(e.fields.RunError) }

// SetApplication writes the application identification fields.
func (e *UserEeprom) SetApplication(manufacturer, deviceType uint16, version, peiType byte) error {
	if err := e.SetWord(e.fields.Manufacturer, manufacturer); err != nil {
		return err
	}
	if err := e.SetWord(e.fields.DeviceType, deviceType); err != nil {
		return err
	}
	if err := e.SetByte(e.fields.Version, version); err != nil {
		return err
	}
	return e.SetByte(e.fields.AppPeiType, peiType)
}

// AddrTabAddr returns the unified address of the address table.
func (e *UserEeprom) AddrTabAddr() (uint16, error) { return e.Word(e.fields.AddrTabAddr) }

// SetAddrTabAddr sets the unified address of the address table.
func (e *UserEeprom) SetAddrTabAddr(a uint16) error { return e.SetWord(e.fields.AddrTabAddr, a) }

// AssocTabAddr returns the unified address of the association table.
func (e *UserEeprom) AssocTabAddr() (uint16, error) { return e.Word(e.fields.AssocTabAddr) }

// SetAssocTabAddr sets the unified address of the association table.
func (e *UserEeprom) SetAssocTabAddr(a uint16) error { return e.SetWord(e.fields.AssocTabAddr, a) }

// CommsTabAddr returns the unified address of the com object table.
func (e *UserEeprom) CommsTabAddr() (uint16, error) { return e.Word(e.fields.CommsTabAddr) }

// SetCommsTabAddr sets the unified address of the com object table.
func (e *UserEeprom) SetCommsTabAddr(a uint16) error { return e.SetWord(e.fields.CommsTabAddr, a) }

// CommsSeg0Addr returns the address of the com object value segment.
func (e *UserEeprom) CommsSeg0Addr() (uint16, error) { return e.Word(e.fields.CommsSeg0Addr) }

// SetCommsSeg0Addr sets the address of the com object value segment.
func (e *UserEeprom) SetCommsSeg0Addr(a uint16) error { return e.SetWord(e.fields.CommsSeg0Addr, a) }

// AssocTabPtr returns the one byte EEPROM offset of the BCU1 association
// table.
func (e *UserEeprom) AssocTabPtr() (byte, error) { return e.Byte(e.fields.AssocTabPtr) }

// CommsTabPtr returns the one byte EEPROM offset of the BCU1 com object
// table.
func (e *UserEeprom) CommsTabPtr() (byte, error) { return e.Byte(e.fields.CommsTabPtr) }

// LoadState returns the load state of an interface object type.
func (e *UserEeprom) LoadState(objectType int) (byte, error) {
	if e.fields.LoadState == layout.None {
		return 0, ErrNoField
	}
	return e.Byte(e.fields.LoadState + objectType)
}

// SetLoadState sets the load state of an interface object type.
func (e *UserEeprom) SetLoadState(objectType int, state byte) error {
	if e.fields.LoadState == layout.None {
		return ErrNoField
	}
	return e.SetByte(e.fields.LoadState+objectType, state)
}

// Serial returns the device serial number.
func (e *UserEeprom) Serial() ([]byte, error) { return e.Bytes(e.fields.Serial, e.fields.SerialSize) }

// Order returns the order info.
func (e *UserEeprom) Order() ([]byte, error) { return e.Bytes(e.fields.Order, e.fields.OrderSize) }
