package inspect

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/selfbus/bcu-go/pkg/bcu"
	"github.com/selfbus/bcu-go/pkg/hal/sim"
	"github.com/selfbus/bcu-go/pkg/properties"
	"github.com/selfbus/bcu-go/pkg/telegram"
)

// Remote errors.
var (
	ErrNoResponse = errors.New("no response")
	ErrRejected   = errors.New("request rejected by device")
)

// maxRemoteChunk is the largest memory read or write of one telegram.
const maxRemoteChunk = 12

// Link carries management telegrams to a device and returns its answers.
type Link interface {
	// Request sends t and returns the telegrams the device answered with.
	Request(ctx context.Context, t telegram.Telegram) ([]telegram.Telegram, error)
}

// RemoteInspector reads and writes a device over the bus the way a
// configuration tool does, through memory, property and descriptor
// services.
type RemoteInspector struct {
	link Link
	self telegram.Address
	dest telegram.Address
}

// NewRemoteInspector creates a remote inspector talking from self to dest.
func NewRemoteInspector(link Link, self, dest telegram.Address) *RemoteInspector {
	return &RemoteInspector{link: link, self: self, dest: dest}
}

// Dest returns the address of the inspected device.
func (r *RemoteInspector) Dest() telegram.Address {
	return r.dest
}

func (r *RemoteInspector) request(ctx context.Context, apci telegram.APCI, payload []byte, want telegram.APCI) (telegram.Telegram, error) {
	req := telegram.Telegram{Source: r.self, Dest: r.dest, Priority: telegram.PriorityLow, APCI: apci, Payload: payload}
	answers, err := r.link.Request(ctx, req)
	if err != nil {
		return telegram.Telegram{}, err
	}
	for _, a := range answers {
		if a.APCI == want && a.Dest == r.self {
			return a, nil
		}
	}
	return telegram.Telegram{}, fmt.Errorf("%w to %s", ErrNoResponse, apci)
}

// DeviceDescriptor reads the mask version.
func (r *RemoteInspector) DeviceDescriptor(ctx context.Context) (uint16, error) {
	resp, err := r.request(ctx, telegram.DeviceDescriptorRead, []byte{0}, telegram.DeviceDescriptorResponse)
	if err != nil {
		return 0, err
	}
	if len(resp.Payload) < 3 {
		return 0, fmt.Errorf("%w: short descriptor response", ErrNoResponse)
	}
	return uint16(resp.Payload[1])<<8 | uint16(resp.Payload[2]), nil
}

// ReadMemory reads n bytes at a unified address in chunks.
func (r *RemoteInspector) ReadMemory(ctx context.Context, addr uint16, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		k := min(n-len(out), maxRemoteChunk)
		a := addr + uint16(len(out))
		resp, err := r.request(ctx, telegram.MemoryRead, []byte{byte(k), byte(a >> 8), byte(a)}, telegram.MemoryResponse)
		if err != nil {
			return nil, err
		}
		p := resp.Payload
		if len(p) < 3 || int(p[0]&0x0f) == 0 {
			return nil, fmt.Errorf("%w: memory read at 0x%04x", ErrRejected, a)
		}
		got := int(p[0] & 0x0f)
		if len(p) < 3+got {
			return nil, fmt.Errorf("%w: truncated memory response at 0x%04x", ErrNoResponse, a)
		}
		out = append(out, p[3:3+got]...)
	}
	return out, nil
}

// WriteMemory writes data at a unified address in chunks and reads every
// chunk back.
func (r *RemoteInspector) WriteMemory(ctx context.Context, addr uint16, data []byte) error {
	for off := 0; off < len(data); off += maxRemoteChunk {
		chunk := data[off:min(off+maxRemoteChunk, len(data))]
		a := addr + uint16(off)
		req := telegram.Telegram{Source: r.self, Dest: r.dest, Priority: telegram.PriorityLow,
			APCI: telegram.MemoryWrite, Payload: append([]byte{byte(len(chunk)), byte(a >> 8), byte(a)}, chunk...)}
		if _, err := r.link.Request(ctx, req); err != nil {
			return err
		}
		back, err := r.ReadMemory(ctx, a, len(chunk))
		if err != nil {
			return err
		}
		if string(back) != string(chunk) {
			return fmt.Errorf("%w: verify failed at 0x%04x", ErrRejected, a)
		}
	}
	return nil
}

// ReadProperty reads count elements of a property starting at start.
func (r *RemoteInspector) ReadProperty(ctx context.Context, obj int, id properties.ID, count, start int) ([]byte, error) {
	payload := []byte{byte(obj), byte(id), byte(count<<4) | byte(start>>8)&0x0f, byte(start)}
	resp, err := r.request(ctx, telegram.PropertyValueRead, payload, telegram.PropertyValueResponse)
	if err != nil {
		return nil, err
	}
	return propertyData(resp.Payload)
}

// WriteProperty writes a property and returns the value the device
// answered with.
func (r *RemoteInspector) WriteProperty(ctx context.Context, obj int, id properties.ID, count, start int, data []byte) ([]byte, error) {
	payload := append([]byte{byte(obj), byte(id), byte(count<<4) | byte(start>>8)&0x0f, byte(start)}, data...)
	resp, err := r.request(ctx, telegram.PropertyValueWrite, payload, telegram.PropertyValueResponse)
	if err != nil {
		return nil, err
	}
	return propertyData(resp.Payload)
}

func propertyData(p []byte) ([]byte, error) {
	if len(p) < 4 || p[2]>>4 == 0 {
		return nil, ErrRejected
	}
	return p[4:], nil
}

// Loopback is a Link to a simulated device in the same process. Requests
// are delivered with Receive and the answers collected from the bus.
type Loopback struct {
	mu  sync.Mutex
	dev *bcu.Device
	bus *sim.Bus
}

// NewLoopback creates a Link to dev, which sends on bus.
func NewLoopback(dev *bcu.Device, bus *sim.Bus) *Loopback {
	return &Loopback{dev: dev, bus: bus}
}

// Request implements Link.
func (l *Loopback) Request(ctx context.Context, t telegram.Telegram) ([]telegram.Telegram, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bus.Take()
	if err := l.dev.Receive(t); err != nil {
		return nil, err
	}
	return l.bus.Take(), nil
}
