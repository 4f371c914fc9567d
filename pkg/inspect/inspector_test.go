package inspect

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/selfbus/bcu-go/pkg/bcu"
	"github.com/selfbus/bcu-go/pkg/hal/sim"
	"github.com/selfbus/bcu-go/pkg/image"
	"github.com/selfbus/bcu-go/pkg/layout"
	"github.com/selfbus/bcu-go/pkg/properties"
	"github.com/selfbus/bcu-go/pkg/telegram"
)

const (
	testOwn  telegram.Address = 0x1105
	testPeer telegram.Address = 0x11fe
)

const testImage = `
name: switch
variant: %s
application:
  manufacturer: 0x0083
  device_type: 0x0012
  version: 3
objects:
  - name: switch
    type: 1bit
    flags: [comm, read, write, trans]
    groups: ["1/0/1"]
  - name: value
    type: 2byte
    flags: [comm, write]
    groups: ["1/0/2"]
  - name: spare
    type: 1byte
    flags: [comm]
`

// newTestDevice returns a running device with the switch image applied,
// and the bus it sends on.
func newTestDevice(t *testing.T, v layout.Variant) (*bcu.Device, *sim.Bus) {
	t.Helper()
	bus := sim.NewBus()
	dev, err := bcu.New(v, sim.NewFlash(sim.DefaultFlashSize, sim.DefaultPageSize), bus,
		bcu.WithClock(sim.NewClock()), bcu.WithSessionID("inspect-test"))
	if err != nil {
		t.Fatalf("bcu.New: %v", err)
	}
	if err := dev.SetOwnAddress(testOwn); err != nil {
		t.Fatalf("SetOwnAddress: %v", err)
	}
	img, err := image.Parse([]byte(fmt.Sprintf(testImage, v)))
	if err != nil {
		t.Fatalf("image.Parse: %v", err)
	}
	dl, err := image.Build(img)
	if err != nil {
		t.Fatalf("image.Build: %v", err)
	}
	if err := dl.Apply(dev); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := dev.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	bus.Take()
	return dev, bus
}

func TestInspectorSummary(t *testing.T) {
	dev, _ := newTestDevice(t, layout.MASK0701)
	s, err := NewInspector(dev).Summary()
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if s.Variant != "MASK0701" {
		t.Errorf("Variant = %q, want MASK0701", s.Variant)
	}
	if s.State != bcu.StateRunning {
		t.Errorf("State = %v, want Running", s.State)
	}
	if s.OwnAddress != testOwn {
		t.Errorf("OwnAddress = %s, want %s", s.OwnAddress.Physical(), testOwn.Physical())
	}
	if s.Manufacturer != 0x0083 || s.DeviceType != 0x0012 || s.Version != 3 {
		t.Errorf("application = %04x/%04x/%d, want 0083/0012/3", s.Manufacturer, s.DeviceType, s.Version)
	}
	if s.SessionID != "inspect-test" {
		t.Errorf("SessionID = %q", s.SessionID)
	}
}

func TestInspectorObjects(t *testing.T) {
	for _, v := range layout.Variants() {
		t.Run(v.String(), func(t *testing.T) {
			dev, _ := newTestDevice(t, v)
			objs, err := NewInspector(dev).Objects()
			if err != nil {
				t.Fatalf("Objects: %v", err)
			}
			if len(objs) != 3 {
				t.Fatalf("got %d objects, want 3", len(objs))
			}
			if !objs[0].HasGroup || objs[0].Group != 0x0801 {
				t.Errorf("object 0 group = %v %v, want 1/0/1", objs[0].Group.Group(), objs[0].HasGroup)
			}
			if objs[2].HasGroup {
				t.Errorf("object 2 should not be associated")
			}
			if len(objs[1].Value) != 2 {
				t.Errorf("object 1 value = %x, want two bytes", objs[1].Value)
			}
		})
	}
}

func TestInspectorGroups(t *testing.T) {
	dev, _ := newTestDevice(t, layout.BCU2)
	groups, err := NewInspector(dev).Groups()
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if groups[0].Slot != 1 || groups[0].Address != 0x0801 {
		t.Errorf("slot 1 = %+v", groups[0])
	}
	if len(groups[1].Objects) != 1 || groups[1].Objects[0] != 1 {
		t.Errorf("1/0/2 objects = %v, want [1]", groups[1].Objects)
	}
}

func TestInspectorProperties(t *testing.T) {
	dev, _ := newTestDevice(t, layout.MASK0701)
	i := NewInspector(dev)
	if n := i.InterfaceObjects(); n == 0 {
		t.Fatal("MASK0701 should have interface objects")
	}
	props, err := i.Properties(int(properties.ObjectDevice))
	if err != nil {
		t.Fatalf("Properties: %v", err)
	}
	var found bool
	for _, p := range props {
		if p.ID == properties.PIDManufacturerID {
			found = true
			if !bytes.Equal(p.Value, []byte{0x00, 0x83}) {
				t.Errorf("manufacturer id = %x, want 0083", p.Value)
			}
		}
	}
	if !found {
		t.Error("device object has no manufacturer id")
	}

	bcu1, _ := newTestDevice(t, layout.BCU1)
	if _, err := NewInspector(bcu1).Properties(0); !errors.Is(err, ErrNoProperties) {
		t.Errorf("BCU1 Properties error = %v, want ErrNoProperties", err)
	}
	if n := NewInspector(bcu1).InterfaceObjects(); n != 0 {
		t.Errorf("BCU1 InterfaceObjects = %d, want 0", n)
	}
}

func TestInspectorReadWrite(t *testing.T) {
	dev, _ := newTestDevice(t, layout.MASK0701)
	i := NewInspector(dev)

	t.Run("eeprom", func(t *testing.T) {
		p, _ := ParsePath("eeprom/0x40+2")
		if _, err := i.Write(p, []byte{0xca, 0xfe}); err != nil {
			t.Fatalf("Write: %v", err)
		}
		got, err := i.Read(p)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if !bytes.Equal(got, []byte{0xca, 0xfe}) {
			t.Errorf("Read = %x, want cafe", got)
		}
	})

	t.Run("unified", func(t *testing.T) {
		start := uint32(dev.Layout().EEPROM.Start)
		p, _ := ParsePath(fmt.Sprintf("0x%x+2", start+0x40))
		got, err := i.Read(p)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if !bytes.Equal(got, []byte{0xca, 0xfe}) {
			t.Errorf("Read = %x, want cafe", got)
		}
	})

	t.Run("com object", func(t *testing.T) {
		p, _ := ParsePath("obj/1")
		if _, err := i.Write(p, []byte{0x0c, 0x1a}); err != nil {
			t.Fatalf("Write: %v", err)
		}
		v, err := dev.ComObjects().Read(1)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if v != 0x0c1a {
			t.Errorf("object 1 = %#x, want 0x0c1a", v)
		}
	})

	t.Run("property", func(t *testing.T) {
		p, _ := ParsePath("prop/device/device_control")
		got, err := i.Write(p, []byte{0x04})
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		if !bytes.Equal(got, []byte{0x04}) {
			t.Errorf("Write returned %x, want 04", got)
		}
		if dev.Ram().DeviceControl() != 0x04 {
			t.Errorf("DeviceControl = %#x, want 0x04", dev.Ram().DeviceControl())
		}
	})

	t.Run("partial", func(t *testing.T) {
		p, _ := ParsePath("obj")
		if _, err := i.Read(p); !errors.Is(err, ErrPartialPath) {
			t.Errorf("Read error = %v, want ErrPartialPath", err)
		}
	})
}
