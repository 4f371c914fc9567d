package usermem

import (
	"fmt"

	"github.com/selfbus/bcu-go/pkg/hal"
	"github.com/selfbus/bcu-go/pkg/memory"
)

// Space is the unified address space over user EEPROM, user RAM and high
// RAM. Table pointers and com object data pointers hold unified
// addresses; Resolve turns them into a tagged memory.Address.
type Space struct {
	ram    *UserRam
	eeprom *UserEeprom
	irq    hal.Interrupts
}

// NewSpace joins ram and eeprom into one address space.
func NewSpace(ram *UserRam, eeprom *UserEeprom, irq hal.Interrupts) *Space {
	if irq == nil {
		irq = hal.NoInterrupts{}
	}
	return &Space{ram: ram, eeprom: eeprom, irq: irq}
}

// Resolve maps a unified address to a tagged address. The EEPROM window
// takes precedence over RAM.
func (s *Space) Resolve(unified uint32) (memory.Address, error) {
	if r := s.eeprom.Region(); r.Contains(unified) {
		return memory.EepromOffset(unified - r.Start()), nil
	}
	if r := s.ram.Region(); r.Contains(unified) {
		return memory.RamOffset(unified - r.Start()), nil
	}
	if r := s.ram.High(); r != nil && r.Contains(unified) {
		return memory.Address{Space: memory.SpaceHighRAM, Offset: unified - r.Start()}, nil
	}
	return memory.Address{}, &memory.RangeError{Region: "unified", Offset: unified, Len: 1}
}

// Unified returns the unified address of a.
func (s *Space) Unified(a memory.Address) (uint32, error) {
	r, err := s.Region(a.Space)
	if err != nil {
		return 0, err
	}
	return r.Resolve(a.Offset)
}

// Region returns the region backing a space.
func (s *Space) Region(sp memory.Space) (*memory.Region, error) {
	switch sp {
	case memory.SpaceEEPROM:
		return s.eeprom.Region(), nil
	case memory.SpaceRAM:
		return s.ram.Region(), nil
	case memory.SpaceHighRAM:
		if h := s.ram.High(); h != nil {
			return h, nil
		}
	}
	return nil, fmt.Errorf("%w: no %s in this variant", memory.ErrOutOfRange, sp)
}

// Read reads n bytes at a. Multi-byte reads run in a critical section so
// a value is never seen half written.
func (s *Space) Read(a memory.Address, n int) ([]byte, error) {
	r, err := s.Region(a.Space)
	if err != nil {
		return nil, err
	}
	if n <= 1 {
		return r.Read(a.Offset, n)
	}
	var out []byte
	hal.Critical(s.irq, func() {
		out, err = r.Read(a.Offset, n)
	})
	return out, err
}

// Write writes data at a.
func (s *Space) Write(a memory.Address, data []byte) error {
	r, err := s.Region(a.Space)
	if err != nil {
		return err
	}
	return r.Write(a.Offset, data)
}

// ReadUnified reads n bytes at a unified address.
func (s *Space) ReadUnified(unified uint32, n int) ([]byte, error) {
	a, err := s.Resolve(unified)
	if err != nil {
		return nil, err
	}
	return s.Read(a, n)
}

// ReadRange reads n bytes starting at a unified address. A range running
// past the end of one window continues in whichever window holds the next
// address.
func (s *Space) ReadRange(unified uint32, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	err := s.span(unified, n, func(a memory.Address, k int) error {
		b, err := s.Read(a, k)
		if err != nil {
			return err
		}
		out = append(out, b...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WriteRange writes data starting at a unified address, split across
// windows like ReadRange. Nothing is written unless the whole range
// resolves.
func (s *Space) WriteRange(unified uint32, data []byte) error {
	if err := s.span(unified, len(data), func(memory.Address, int) error { return nil }); err != nil {
		return err
	}
	return s.span(unified, len(data), func(a memory.Address, k int) error {
		err := s.Write(a, data[:k])
		data = data[k:]
		return err
	})
}

// span splits n bytes at unified into per-window chunks.
func (s *Space) span(unified uint32, n int, fn func(a memory.Address, k int) error) error {
	for n > 0 {
		a, err := s.Resolve(unified)
		if err != nil {
			return err
		}
		r, err := s.Region(a.Space)
		if err != nil {
			return err
		}
		k := min(n, int(r.Size()-a.Offset))
		if err := fn(a, k); err != nil {
			return err
		}
		unified += uint32(k)
		n -= k
	}
	return nil
}
