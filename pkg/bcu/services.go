package bcu

import (
	"errors"
	"fmt"

	"github.com/selfbus/bcu-go/pkg/comobj"
	"github.com/selfbus/bcu-go/pkg/layout"
	"github.com/selfbus/bcu-go/pkg/log"
	"github.com/selfbus/bcu-go/pkg/memory"
	"github.com/selfbus/bcu-go/pkg/properties"
	"github.com/selfbus/bcu-go/pkg/tables"
	"github.com/selfbus/bcu-go/pkg/telegram"
	"github.com/selfbus/bcu-go/pkg/usermem"
)

// Addresses of the deprecated load state machine memory services.
const (
	LoadControlAddr uint32 = 0x0104
	LoadStateAddr   uint32 = 0xb6e9
)

// maxMemoryCount is the largest byte count of one memory service.
const maxMemoryCount = 0x0f

// Space names of memory events.
const (
	spaceMemory   = "MEMORY"
	spaceProperty = "PROPERTY"
)

// Receive processes one telegram from the bus. Telegrams that arrive
// while interrupts are masked, or while the device is not Running, are
// dropped and counted; Receive then returns ErrDropped.
func (d *Device) Receive(t telegram.Telegram) error {
	switch d.State() {
	case StateUninitialized, StateInitialized:
		return ErrUninitialized
	case StateHalted:
		return ErrHalted
	case StateRunning:
	default:
		return d.drop(t, "device "+d.State().String())
	}
	if d.masked() {
		return d.drop(t, "interrupts masked")
	}
	if d.ram.Status()&usermem.StatusTransport == 0 {
		return d.drop(t, "transport layer disabled")
	}

	d.received.Add(1)
	d.logTelegram(log.DirectionIn, t, "")
	err := d.dispatch(t)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, memory.ErrCommitFailure) && !errors.Is(err, ErrHalted):
		// A write that forced an early commit failed.
		d.halt(err)
		return fmt.Errorf("%w: %w", ErrHalted, err)
	}
	d.logError(err, "receive "+t.APCI.String(), false)
	return err
}

func (d *Device) drop(t telegram.Telegram, reason string) error {
	d.dropped.Add(1)
	d.logTelegram(log.DirectionIn, t, reason)
	return ErrDropped
}

// masked reports whether the interrupt controller is inside a critical
// section. Controllers that cannot tell are never masked.
func (d *Device) masked() bool {
	m, ok := d.irq.(interface{ Masked() bool })
	return ok && m.Masked()
}

func (d *Device) dispatch(t telegram.Telegram) error {
	if t.IsBroadcast() {
		return d.broadcast(t)
	}
	if t.Group {
		err := d.comObjects.ProcessGroupTelegram(t, d.sender())
		if errors.Is(err, tables.ErrNotFound) || errors.Is(err, comobj.ErrNoTable) {
			return nil
		}
		return err
	}
	own, err := d.OwnAddress()
	if err != nil {
		return err
	}
	if t.Dest != own {
		return nil
	}

	switch t.APCI {
	case telegram.MemoryRead:
		return d.memoryRead(t)
	case telegram.MemoryWrite:
		return d.memoryWrite(t)
	case telegram.DeviceDescriptorRead:
		return d.deviceDescriptorRead(t)
	case telegram.Restart:
		return d.Restart()
	case telegram.PropertyValueRead:
		return d.propertyRead(t)
	case telegram.PropertyValueWrite:
		return d.propertyWrite(t)
	case telegram.PropertyDescriptionRead:
		return d.propertyDescriptionRead(t)
	}
	return nil
}

// broadcast handles the individual address services, which only a device
// in programming mode answers.
func (d *Device) broadcast(t telegram.Telegram) error {
	if !d.ram.ProgrammingMode() {
		return nil
	}
	switch t.APCI {
	case telegram.IndividualAddressWrite:
		if len(t.Payload) < 2 {
			return nil
		}
		return d.SetOwnAddress(telegram.Address(t.Payload[0])<<8 | telegram.Address(t.Payload[1]))
	case telegram.IndividualAddressRead:
		return d.send(telegram.Telegram{Group: true, Priority: telegram.PrioritySystem, APCI: telegram.IndividualAddressResponse})
	}
	return nil
}

func memoryHeader(p []byte) (count int, addr uint32, ok bool) {
	if len(p) < 3 {
		return 0, 0, false
	}
	return int(p[0] & maxMemoryCount), uint32(p[1])<<8 | uint32(p[2]), true
}

func (d *Device) memoryRead(t telegram.Telegram) error {
	count, addr, ok := memoryHeader(t.Payload)
	if !ok {
		return nil
	}
	return d.memoryResponse(t.Source, count, addr)
}

// memoryResponse answers with count bytes from addr, or with count 0 if
// the range is unreachable.
func (d *Device) memoryResponse(to telegram.Address, count int, addr uint32) error {
	data, err := d.readMemory(addr, count)
	if err != nil {
		count, data = 0, nil
	}
	d.logMemory(spaceMemory, addr, count, false)
	payload := append([]byte{byte(count), byte(addr >> 8), byte(addr)}, data...)
	return d.respond(to, telegram.MemoryResponse, payload)
}

func (d *Device) memoryWrite(t telegram.Telegram) error {
	count, addr, ok := memoryHeader(t.Payload)
	if !ok {
		return nil
	}
	data := t.Payload[3:]
	if len(data) > count {
		data = data[:count]
	}
	if len(data) == 0 {
		return nil
	}
	err := d.writeMemory(addr, data)
	switch {
	case errors.Is(err, memory.ErrOutOfRange), errors.Is(err, properties.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	d.logMemory(spaceMemory, addr, len(data), true)
	if d.layout.Variant != layout.BCU1 && d.ram.DeviceControl()&usermem.DeviceControlMemAutoResponse != 0 {
		return d.memoryResponse(t.Source, len(data), addr)
	}
	return nil
}

func (d *Device) hasLoadMemoryServices() bool {
	switch d.layout.Variant {
	case layout.MASK0701, layout.MASK0705, layout.SYSTEMB:
		return d.props != nil
	}
	return false
}

func (d *Device) readMemory(addr uint32, n int) ([]byte, error) {
	if d.hasLoadMemoryServices() && addr >= LoadStateAddr && addr < LoadStateAddr+uint32(d.props.Objects()) {
		out := make([]byte, 0, n)
		for i := 0; i < n; i++ {
			obj := properties.ObjectType(addr - LoadStateAddr + uint32(i))
			s, err := d.props.LoadState(obj)
			if err != nil {
				return nil, err
			}
			out = append(out, byte(s))
		}
		return out, nil
	}
	return d.space.ReadRange(addr, n)
}

func (d *Device) writeMemory(addr uint32, data []byte) error {
	if d.hasLoadMemoryServices() && addr == LoadControlAddr {
		_, err := d.loadControl(properties.ObjectType(data[0]>>4), data)
		return err
	}
	return d.space.WriteRange(addr, data)
}

// loadControl runs the load state machine of obj. Loading the application
// object is reported to the observer once the state machine accepted the
// record.
func (d *Device) loadControl(obj properties.ObjectType, data []byte) (properties.LoadState, error) {
	if len(data) == 0 {
		return properties.LoadError, fmt.Errorf("%w: empty load control record", properties.ErrLength)
	}
	state, err := d.props.LoadControl(obj, data)
	if err != nil || obj != properties.ObjectApplication {
		return state, err
	}
	switch event := properties.LoadControl(data[0] & 0x07); {
	case event == properties.LoadStart && state == properties.Loading:
		d.notify(ReasonStoreAppDownload)
	case event == properties.LoadCompleted && state == properties.Loaded:
		d.notify(ReasonRecallAppInit)
	}
	return state, nil
}

func (d *Device) deviceDescriptorRead(t telegram.Telegram) error {
	var typ byte
	if len(t.Payload) > 0 {
		typ = t.Payload[0] & 0x3f
	}
	if typ != 0 {
		return nil
	}
	mask := d.layout.MaskVersion
	return d.respond(t.Source, telegram.DeviceDescriptorResponse, []byte{0, byte(mask >> 8), byte(mask)})
}

// propertyHeader decodes object, property id, count and start element.
func propertyHeader(p []byte) (obj int, id properties.ID, count, start int, ok bool) {
	if len(p) < 4 {
		return 0, 0, 0, 0, false
	}
	return int(p[0]), properties.ID(p[1]), int(p[2] >> 4), int(p[2]&0x0f)<<8 | int(p[3]), true
}

func (d *Device) propertyRead(t telegram.Telegram) error {
	if d.props == nil {
		return nil
	}
	obj, id, count, start, ok := propertyHeader(t.Payload)
	if !ok {
		return nil
	}
	data, err := d.props.Read(obj, id, count, start)
	d.logProperty(obj, id, start, len(data), false)
	return d.propertyResponse(t, data, err)
}

func (d *Device) propertyWrite(t telegram.Telegram) error {
	if d.props == nil {
		return nil
	}
	obj, id, count, start, ok := propertyHeader(t.Payload)
	if !ok {
		return nil
	}
	data := t.Payload[4:]

	var (
		value []byte
		err   error
	)
	if id == properties.PIDLoadStateControl {
		var state properties.LoadState
		if state, err = d.loadControl(properties.ObjectType(obj), data); err == nil {
			value = []byte{byte(state)}
		}
	} else {
		value, err = d.props.Write(obj, id, count, start, data)
	}
	if err != nil && !isPropertyRejection(err) {
		return err
	}
	d.logProperty(obj, id, start, len(value), true)
	return d.propertyResponse(t, value, err)
}

// isPropertyRejection reports whether err is answered with a negative
// response rather than treated as a device fault.
func isPropertyRejection(err error) bool {
	return errors.Is(err, properties.ErrNotFound) ||
		errors.Is(err, properties.ErrReadOnly) ||
		errors.Is(err, properties.ErrLength) ||
		errors.Is(err, memory.ErrOutOfRange)
}

// propertyResponse echoes the request header. A failed access is
// answered with count and start cleared.
func (d *Device) propertyResponse(t telegram.Telegram, data []byte, err error) error {
	hdr := append([]byte(nil), t.Payload[:4]...)
	if err != nil {
		hdr[2] = 0
		data = nil
	}
	return d.respond(t.Source, telegram.PropertyValueResponse, append(hdr, data...))
}

func (d *Device) propertyDescriptionRead(t telegram.Telegram) error {
	if d.props == nil || len(t.Payload) < 3 {
		return nil
	}
	obj, id, index := int(t.Payload[0]), properties.ID(t.Payload[1]), int(t.Payload[2])
	desc, err := d.props.Describe(obj, id, index)
	if err != nil {
		return d.respond(t.Source, telegram.PropertyDescriptionResponse, []byte{t.Payload[0], t.Payload[1], t.Payload[2], 0, 0, 0, 0})
	}
	typ := byte(desc.Type)
	if desc.Writable {
		typ |= 0x80
	}
	n := desc.Elements
	return d.respond(t.Source, telegram.PropertyDescriptionResponse, []byte{
		byte(obj), byte(desc.ID), byte(desc.Index), typ, byte(n>>8) & 0x0f, byte(n), desc.Access,
	})
}

func (d *Device) logProperty(obj int, id properties.ID, start, n int, write bool) {
	d.logMemory(spaceProperty, uint32(obj)<<16|uint32(id)<<8|uint32(start&0xff), n, write)
}

// respond sends a point-to-point response.
func (d *Device) respond(to telegram.Address, service telegram.APCI, payload []byte) error {
	return d.send(telegram.Telegram{Dest: to, Priority: telegram.PrioritySystem, APCI: service, Payload: payload})
}

// send stamps the own address as source and logs the telegram.
func (d *Device) send(t telegram.Telegram) error {
	own, err := d.OwnAddress()
	if err != nil {
		return err
	}
	t.Source = own
	d.logTelegram(log.DirectionOut, t, "")
	return d.bus.Send(t)
}

func (d *Device) sender() comobj.Sender {
	return sendFunc(d.send)
}

type sendFunc func(telegram.Telegram) error

func (f sendFunc) Send(t telegram.Telegram) error { return f(t) }
