package inspect

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/selfbus/bcu-go/pkg/layout"
	"github.com/selfbus/bcu-go/pkg/properties"
	"github.com/selfbus/bcu-go/pkg/telegram"
)

func newRemote(t *testing.T, v layout.Variant) (*RemoteInspector, *Inspector) {
	t.Helper()
	dev, bus := newTestDevice(t, v)
	return NewRemoteInspector(NewLoopback(dev, bus), testPeer, testOwn), NewInspector(dev)
}

func TestRemoteDeviceDescriptor(t *testing.T) {
	for _, v := range layout.Variants() {
		t.Run(v.String(), func(t *testing.T) {
			r, local := newRemote(t, v)
			mask, err := r.DeviceDescriptor(context.Background())
			if err != nil {
				t.Fatalf("DeviceDescriptor: %v", err)
			}
			if want := local.Device().Layout().MaskVersion; mask != want {
				t.Errorf("mask = %#04x, want %#04x", mask, want)
			}
		})
	}
}

func TestRemoteMemory(t *testing.T) {
	r, local := newRemote(t, layout.BCU2)
	ctx := context.Background()
	start := uint16(local.Device().Layout().EEPROM.Start)

	// Larger than one telegram so the transfer is split.
	data := bytes.Repeat([]byte{0x5a, 0xa5, 0x01}, 10)
	if err := r.WriteMemory(ctx, start+0x200, data); err != nil {
		t.Fatalf("WriteMemory: %v", err)
	}
	got, err := r.ReadMemory(ctx, start+0x200, len(data))
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadMemory = %x, want %x", got, data)
	}

	p, _ := ParsePath("eeprom/0x200+30")
	local2, err := local.Read(p)
	if err != nil {
		t.Fatalf("local Read: %v", err)
	}
	if !bytes.Equal(local2, data) {
		t.Errorf("local view = %x, want %x", local2, data)
	}

	if _, err := r.ReadMemory(ctx, 0xf000, 2); !errors.Is(err, ErrRejected) {
		t.Errorf("unmapped read error = %v, want ErrRejected", err)
	}
}

func TestRemoteProperties(t *testing.T) {
	r, _ := newRemote(t, layout.MASK0705)
	ctx := context.Background()

	got, err := r.ReadProperty(ctx, int(properties.ObjectDevice), properties.PIDManufacturerID, 1, 1)
	if err != nil {
		t.Fatalf("ReadProperty: %v", err)
	}
	if !bytes.Equal(got, []byte{0x00, 0x83}) {
		t.Errorf("manufacturer id = %x, want 0083", got)
	}

	if _, err := r.ReadProperty(ctx, int(properties.ObjectDevice), properties.PIDMcbTable, 1, 1); !errors.Is(err, ErrRejected) {
		t.Errorf("missing property error = %v, want ErrRejected", err)
	}

	_, err = r.WriteProperty(ctx, int(properties.ObjectDevice), properties.PIDSerialNumber, 1, 1, make([]byte, 6))
	if !errors.Is(err, ErrRejected) {
		t.Errorf("read-only write error = %v, want ErrRejected", err)
	}

	got, err = r.WriteProperty(ctx, int(properties.ObjectApplication), properties.PIDLoadStateControl, 1, 1,
		[]byte{byte(properties.LoadStart), 0, 0, 0, 0, 0, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("WriteProperty: %v", err)
	}
	if !bytes.Equal(got, []byte{byte(properties.Loading)}) {
		t.Errorf("load state = %x, want loading", got)
	}
}

func TestRemoteNoResponse(t *testing.T) {
	dev, bus := newTestDevice(t, layout.BCU1)
	r := NewRemoteInspector(NewLoopback(dev, bus), testPeer, telegram.Address(0x1107))
	if _, err := r.DeviceDescriptor(context.Background()); !errors.Is(err, ErrNoResponse) {
		t.Errorf("error = %v, want ErrNoResponse", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLoopback(dev, bus).Request(ctx, telegram.Telegram{}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
