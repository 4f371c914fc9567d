package inspect

import (
	"errors"
	"fmt"

	"github.com/selfbus/bcu-go/pkg/bcu"
	"github.com/selfbus/bcu-go/pkg/comobj"
	"github.com/selfbus/bcu-go/pkg/memory"
	"github.com/selfbus/bcu-go/pkg/properties"
	"github.com/selfbus/bcu-go/pkg/tables"
	"github.com/selfbus/bcu-go/pkg/telegram"
)

// Inspector errors.
var (
	ErrNoProperties = errors.New("variant has no interface objects")
	ErrPartialPath  = errors.New("path is partial")
)

// Inspector provides inspection and mutation capabilities for a local device.
type Inspector struct {
	device *bcu.Device
}

// NewInspector creates a new Inspector for the given device.
func NewInspector(device *bcu.Device) *Inspector {
	return &Inspector{device: device}
}

// Device returns the underlying device.
func (i *Inspector) Device() *bcu.Device {
	return i.device
}

// DeviceSummary is the device overview for display.
type DeviceSummary struct {
	Variant        string
	MaskVersion    uint16
	State          bcu.State
	SessionID      string
	OwnAddress     telegram.Address
	ProgMode       bool
	Status         byte
	RunState       byte
	Manufacturer   uint16
	DeviceType     uint16
	Version        byte
	EepromModified bool
	Received       uint64
	Dropped        uint64
	Err            error
}

// ObjectInfo represents a com object for display.
type ObjectInfo struct {
	Number int
	Desc   comobj.Descriptor
	Flags  byte
	Value  []byte
	Group  telegram.Address
	// HasGroup is false when the object is not associated.
	HasGroup bool
}

// GroupInfo represents an address table slot for display.
type GroupInfo struct {
	Slot    int
	Address telegram.Address
	Objects []int
}

// PropertyInfo represents a property for display.
type PropertyInfo struct {
	properties.Description
	// Value is the first element, nil if it could not be read.
	Value []byte
}

// Summary returns the device overview.
func (i *Inspector) Summary() (*DeviceSummary, error) {
	d := i.device
	l := d.Layout()
	s := &DeviceSummary{
		Variant:        l.Variant.String(),
		MaskVersion:    l.MaskVersion,
		State:          d.State(),
		SessionID:      d.SessionID(),
		ProgMode:       d.ProgrammingMode(),
		Status:         d.Ram().Status(),
		RunState:       d.Ram().RunState(),
		EepromModified: d.Eeprom().Modified(),
		Received:       d.Received(),
		Dropped:        d.Dropped(),
		Err:            d.Err(),
	}
	var err error
	if s.OwnAddress, err = d.OwnAddress(); err != nil {
		return nil, err
	}
	e := d.Eeprom()
	if s.Manufacturer, err = e.Manufacturer(); err != nil {
		return nil, err
	}
	if s.DeviceType, err = e.DeviceType(); err != nil {
		return nil, err
	}
	if s.Version, err = e.Version(); err != nil {
		return nil, err
	}
	return s, nil
}

// Objects returns all com objects.
func (i *Inspector) Objects() ([]ObjectInfo, error) {
	n, err := i.device.ComObjects().Count()
	if err != nil {
		return nil, err
	}
	out := make([]ObjectInfo, 0, n)
	for obj := 0; obj < n; obj++ {
		info, err := i.Object(obj)
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	return out, nil
}

// Object returns one com object.
func (i *Inspector) Object(obj int) (*ObjectInfo, error) {
	t := i.device.ComObjects()
	desc, err := t.Descriptor(obj)
	if err != nil {
		return nil, err
	}
	info := &ObjectInfo{Number: obj, Desc: desc}
	if info.Flags, err = t.Flags(obj); err != nil {
		return nil, err
	}
	if info.Value, err = t.Value(obj); err != nil {
		return nil, err
	}
	group, err := i.device.AddrTables().GroupAddressOf(obj)
	switch {
	case err == nil:
		info.Group, info.HasGroup = telegram.Address(group), true
	case !errors.Is(err, tables.ErrNotFound):
		return nil, err
	}
	return info, nil
}

// Groups returns the address table with the objects of each slot.
func (i *Inspector) Groups() ([]GroupInfo, error) {
	t := i.device.AddrTables()
	var out []GroupInfo
	_, err := t.Address.Scan(func(slot int, addr uint16) bool {
		out = append(out, GroupInfo{Slot: slot, Address: telegram.Address(addr)})
		return true
	})
	if err != nil {
		return nil, err
	}
	for k := range out {
		objs, err := t.Association.ObjectsFor(out[k].Slot)
		if err != nil && !errors.Is(err, tables.ErrNotFound) {
			return nil, err
		}
		out[k].Objects = objs
	}
	return out, nil
}

// Properties returns the properties of an interface object.
func (i *Inspector) Properties(obj int) ([]PropertyInfo, error) {
	props, ok := i.device.Properties()
	if !ok {
		return nil, ErrNoProperties
	}
	defs, err := props.Defs(obj)
	if err != nil {
		return nil, err
	}
	out := make([]PropertyInfo, 0, len(defs))
	for _, def := range defs {
		desc, err := props.Describe(obj, def.ID, 0)
		if err != nil {
			return nil, fmt.Errorf("describing %s: %w", def.ID, err)
		}
		info := PropertyInfo{Description: desc}
		if desc.Elements > 0 {
			info.Value, _ = props.Read(obj, def.ID, 1, 1)
		}
		out = append(out, info)
	}
	return out, nil
}

// InterfaceObjects returns the number of interface objects, or 0 for
// variants without properties.
func (i *Inspector) InterfaceObjects() int {
	props, ok := i.device.Properties()
	if !ok {
		return 0
	}
	return props.Objects()
}

// Read reads the bytes a path refers to.
func (i *Inspector) Read(p *Path) ([]byte, error) {
	if p.IsPartial {
		return nil, ErrPartialPath
	}
	switch p.Kind {
	case KindMemory:
		space := i.device.Space()
		if p.Space == 0 {
			return space.ReadRange(p.Offset, p.Count)
		}
		return space.Read(memory.Address{Space: p.Space, Offset: p.Offset}, p.Count)
	case KindObject:
		return i.device.ComObjects().Value(p.Object)
	case KindProperty:
		props, ok := i.device.Properties()
		if !ok {
			return nil, ErrNoProperties
		}
		return props.Read(p.Object, p.PID, 1, 1)
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidPath, p.Raw)
}

// Write writes data to the location a path refers to. Writing a com
// object queues it for transmission. Writing a property returns the value
// read back.
func (i *Inspector) Write(p *Path, data []byte) ([]byte, error) {
	if p.IsPartial {
		return nil, ErrPartialPath
	}
	switch p.Kind {
	case KindMemory:
		space := i.device.Space()
		if p.Space == 0 {
			return nil, space.WriteRange(p.Offset, data)
		}
		return nil, space.Write(memory.Address{Space: p.Space, Offset: p.Offset}, data)
	case KindObject:
		return nil, i.device.ComObjects().WriteBytes(p.Object, data)
	case KindProperty:
		props, ok := i.device.Properties()
		if !ok {
			return nil, ErrNoProperties
		}
		d, err := props.Find(p.Object, p.PID)
		if err != nil {
			return nil, err
		}
		count := 1
		if size := d.Size(); size > 0 && len(data) > size {
			count = len(data) / size
		}
		return props.Write(p.Object, p.PID, count, 1, data)
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidPath, p.Raw)
}
