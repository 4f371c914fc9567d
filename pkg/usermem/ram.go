package usermem

import (
	"fmt"

	"github.com/selfbus/bcu-go/pkg/hal"
	"github.com/selfbus/bcu-go/pkg/layout"
	"github.com/selfbus/bcu-go/pkg/memory"
)

// Status bits of the system status byte.
const (
	StatusProg      byte = 0x01 // programming mode
	StatusLink      byte = 0x02 // link layer enabled
	StatusTransport byte = 0x04 // transport layer enabled
	StatusApp       byte = 0x08 // application layer enabled
	StatusSerialPEI byte = 0x10 // serial PEI enabled
	StatusUserMode  byte = 0x20 // application program running
	StatusDownload  byte = 0x40 // download in progress
	StatusParity    byte = 0x80 // even parity of bits 0-6
)

// Device control bits.
const (
	DeviceControlAppStopped      byte = 0x01
	DeviceControlOwnAddrInUse    byte = 0x02
	DeviceControlMemAutoResponse byte = 0x04
)

// UserRam is the volatile user RAM, plus the high RAM where present.
type UserRam struct {
	region *memory.Region
	high   *memory.Region
	fields layout.RamMap
	irq    hal.Interrupts
}

// NewUserRam builds the user RAM of a layout.
func NewUserRam(l layout.Layout, irq hal.Interrupts, opts ...memory.Option) (*UserRam, error) {
	if irq == nil {
		irq = hal.NoInterrupts{}
	}
	ram, err := memory.New(memory.Config{
		Name:       "ram",
		Start:      l.RAM.Start,
		Size:       l.RAM.Size,
		ShadowSize: l.RAM.ShadowSize,
	}, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("user ram: %w", err)
	}
	u := &UserRam{region: ram, fields: l.Ram, irq: irq}
	if l.HighRAM.Size > 0 {
		u.high, err = memory.New(memory.Config{
			Name:  "highram",
			Start: l.HighRAM.Start,
			Size:  l.HighRAM.Size,
		}, nil, opts...)
		if err != nil {
			return nil, fmt.Errorf("user high ram: %w", err)
		}
	}
	return u, nil
}

// Region returns the RAM region.
func (u *UserRam) Region() *memory.Region { return u.region }

// High returns the high RAM region, or nil.
func (u *UserRam) High() *memory.Region { return u.high }

// Read reads n bytes at offset.
func (u *UserRam) Read(offset uint32, n int) ([]byte, error) { return u.region.Read(offset, n) }

// Write writes data at offset.
func (u *UserRam) Write(offset uint32, data []byte) error { return u.region.Write(offset, data) }

// Reset zeroes the RAM and high RAM.
func (u *UserRam) Reset() error {
	if err := u.region.Clear(); err != nil {
		return err
	}
	if u.high != nil {
		return u.high.Clear()
	}
	return nil
}

// Status returns the system status byte.
func (u *UserRam) Status() byte { return u.byteAt(u.fields.Status) }

// SetStatus sets the system status byte. The parity bit is recomputed.
func (u *UserRam) SetStatus(s byte) error {
	return u.setByteAt(u.fields.Status, withParity(s))
}

// UpdateStatus sets and clears status bits in one critical section.
func (u *UserRam) UpdateStatus(set, clear byte) (byte, error) {
	var s byte
	var err error
	hal.Critical(u.irq, func() {
		s = withParity(u.byteAt(u.fields.Status)&^clear | set)
		err = u.setByteAt(u.fields.Status, s)
	})
	return s, err
}

// ProgrammingMode reports whether the programming mode bit is set.
func (u *UserRam) ProgrammingMode() bool { return u.Status()&StatusProg != 0 }

// RunState returns the application run state.
func (u *UserRam) RunState() byte { return u.byteAt(u.fields.RunState) }

// SetRunState sets the application run state.
func (u *UserRam) SetRunState(s byte) error { return u.setByteAt(u.fields.RunState, s) }

// DeviceControl returns the device control byte.
func (u *UserRam) DeviceControl() byte { return u.byteAt(u.fields.DeviceControl) }

// SetDeviceControl sets the device control byte.
func (u *UserRam) SetDeviceControl(c byte) error { return u.setByteAt(u.fields.DeviceControl, c) }

// PeiType returns the connected PEI type.
func (u *UserRam) PeiType() byte { return u.byteAt(u.fields.PeiType) }

// SetPeiType sets the connected PEI type.
func (u *UserRam) SetPeiType(t byte) error { return u.setByteAt(u.fields.PeiType, t) }

func (u *UserRam) byteAt(off int) byte {
	b, err := u.region.Byte(uint32(off))
	if err != nil {
		return 0
	}
	return b
}

func (u *UserRam) setByteAt(off int, b byte) error {
	return u.region.SetByte(uint32(off), b)
}

// withParity sets bit 7 so that the byte has even parity over bits 0-6.
func withParity(s byte) byte {
	s &^= StatusParity
	p := s
	p ^= p >> 4
	p ^= p >> 2
	p ^= p >> 1
	if p&1 != 0 {
		s |= StatusParity
	}
	return s
}
