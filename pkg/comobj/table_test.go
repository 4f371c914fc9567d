package comobj

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfbus/bcu-go/pkg/hal/sim"
	"github.com/selfbus/bcu-go/pkg/layout"
	"github.com/selfbus/bcu-go/pkg/memory"
	"github.com/selfbus/bcu-go/pkg/tables"
	"github.com/selfbus/bcu-go/pkg/telegram"
	"github.com/selfbus/bcu-go/pkg/usermem"
)

type recorder struct {
	sent []telegram.Telegram
	err  error
}

func (r *recorder) Send(t telegram.Telegram) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, t)
	return nil
}

type fixture struct {
	l      layout.Layout
	ram    *usermem.UserRam
	eeprom *usermem.UserEeprom
	space  *usermem.Space
	tabs   *tables.Tables
	objs   *Table
	bus    *recorder
}

func newFixture(t *testing.T, v layout.Variant) *fixture {
	t.Helper()
	l := layout.MustFor(v)
	ram, err := usermem.NewUserRam(l, nil)
	require.NoError(t, err)
	eeprom, err := usermem.NewUserEeprom(l, sim.NewFlash(sim.DefaultFlashSize, sim.DefaultPageSize), nil)
	require.NoError(t, err)
	// Start from a blank EEPROM instead of erased flash.
	require.NoError(t, eeprom.Region().Clear())
	space := usermem.NewSpace(ram, eeprom, nil)
	tabs, err := tables.New(l, space, eeprom)
	require.NoError(t, err)
	objs, err := New(l, space, eeprom, tabs)
	require.NoError(t, err)
	return &fixture{l: l, ram: ram, eeprom: eeprom, space: space, tabs: tabs, objs: objs, bus: &recorder{}}
}

const (
	flagsOff = 0x70
	obj0Off  = 0x80
	obj1Off  = 0x82
	obj2Off  = 0x84
)

// loadBCU2 loads two group addresses, three associations and three
// objects:
//
//	obj 0: 1 bit,  group 0/9/1, read write transmit
//	obj 1: 2 byte, group 0/9/2, write transmit
//	obj 2: 2 byte, group 0/9/2, read only
func (f *fixture) loadBCU2(t *testing.T) {
	t.Helper()
	base := f.l.EEPROM.Start

	require.NoError(t, f.eeprom.Write(0x20, []byte{0, 2, 0x09, 0x01, 0x09, 0x02}))
	require.NoError(t, f.eeprom.SetAddrTabAddr(uint16(base+0x20)))
	require.NoError(t, f.eeprom.Write(0x40, []byte{0, 3, 0, 1, 0, 0, 0, 2, 0, 1, 0, 2, 0, 2}))
	require.NoError(t, f.eeprom.SetAssocTabAddr(uint16(base+0x40)))

	ram := f.l.RAM.Start
	tab := []byte{3, byte((ram + flagsOff) >> 8), byte(ram + flagsOff)}
	tab = append(tab, 0, byte(ram+obj0Off), ConfComm|ConfRead|ConfWrite|ConfTrans, byte(Bit1))
	tab = append(tab, 0, byte(ram+obj1Off), ConfComm|ConfWrite|ConfTrans, byte(Byte2))
	tab = append(tab, 0, byte(ram+obj2Off), ConfComm|ConfRead, byte(Byte2))
	require.NoError(t, f.eeprom.Write(0x80, tab))
	require.NoError(t, f.eeprom.SetCommsTabAddr(uint16(base+0x80)))
}

func TestDescriptors(t *testing.T) {
	f := newFixture(t, layout.BCU2)
	f.loadBCU2(t)

	n, err := f.objs.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	d, err := f.objs.Descriptor(1)
	require.NoError(t, err)
	assert.Equal(t, Descriptor{DataPtr: obj1Off, Config: ConfComm | ConfWrite | ConfTrans, Type: Byte2}, d)
	assert.True(t, d.Has(ConfWriteComm))
	assert.False(t, d.Has(ConfReadComm))

	for obj, want := range []int{1, 2, 2} {
		sz, err := f.objs.Size(obj)
		require.NoError(t, err)
		assert.Equal(t, want, sz)
	}
	ts, err := f.objs.TelegramSize(0)
	require.NoError(t, err)
	assert.Equal(t, 0, ts)

	a, err := f.objs.ValueAddress(2)
	require.NoError(t, err)
	assert.Equal(t, memory.RamOffset(obj2Off), a)

	_, err = f.objs.Descriptor(3)
	assert.ErrorIs(t, err, ErrNoObject)
}

func TestNoTable(t *testing.T) {
	f := newFixture(t, layout.BCU2)
	n, err := f.objs.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	_, err = f.objs.Descriptor(0)
	assert.ErrorIs(t, err, ErrNoTable)

	sent, err := f.objs.SendNext(f.bus)
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestValuesAreStoredLittleEndian(t *testing.T) {
	f := newFixture(t, layout.BCU2)
	f.loadBCU2(t)

	require.NoError(t, f.objs.SetValue(1, []byte{0x12, 0x34}))
	raw, err := f.ram.Read(obj1Off, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x34, 0x12}, raw)

	v, err := f.objs.Read(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1234), v)

	assert.ErrorIs(t, f.objs.SetValue(1, []byte{1}), ErrValueSize)
}

func TestGroupWriteUpdatesWritableObjects(t *testing.T) {
	f := newFixture(t, layout.BCU2)
	f.loadBCU2(t)

	tel := telegram.NewGroupWrite(0x1101, 0x0902, []byte{0xab, 0xcd})
	require.NoError(t, f.objs.ProcessGroupTelegram(tel, f.bus))

	v, err := f.objs.Read(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xabcd), v)
	fl, err := f.objs.Flags(1)
	require.NoError(t, err)
	assert.Equal(t, FlagUpdate, fl)

	// Object 2 has no write flag.
	v, err = f.objs.Read(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v)
	assert.Empty(t, f.bus.sent)

	// Object 1 uses the high nibble of the shared flag byte.
	raw, err := f.ram.Read(flagsOff, 1)
	require.NoError(t, err)
	assert.Equal(t, FlagUpdate<<4, raw[0])

	obj, ok, err := f.objs.NextUpdated()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, obj)
	_, ok, err = f.objs.NextUpdated()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGroupWriteShortValue(t *testing.T) {
	f := newFixture(t, layout.BCU2)
	f.loadBCU2(t)

	tel := telegram.NewGroupWrite(0x1101, 0x0901, []byte{0x01})
	require.NoError(t, f.objs.ProcessGroupTelegram(tel, f.bus))
	v, err := f.objs.Read(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v)
}

func TestGroupReadIsAnswered(t *testing.T) {
	f := newFixture(t, layout.BCU2)
	f.loadBCU2(t)
	require.NoError(t, f.objs.SetValue(2, []byte{0x0c, 0x33}))

	require.NoError(t, f.objs.ProcessGroupTelegram(telegram.NewGroupRead(0x1101, 0x0902), f.bus))

	require.Len(t, f.bus.sent, 1)
	resp := f.bus.sent[0]
	assert.Equal(t, telegram.GroupValueResponse, resp.APCI)
	assert.Equal(t, telegram.Address(0x0902), resp.Dest)
	assert.True(t, resp.Group)
	assert.Equal(t, []byte{0x0c, 0x33}, resp.Payload)

	// The response also reaches object 1 in the same group.
	v, err := f.objs.Read(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0c33), v)
}

func TestUnknownGroupIsNotConfigured(t *testing.T) {
	f := newFixture(t, layout.BCU2)
	f.loadBCU2(t)

	err := f.objs.ProcessGroupTelegram(telegram.NewGroupWrite(0x1101, 0x0a0a, []byte{1}), f.bus)
	assert.ErrorIs(t, err, tables.ErrNotFound)
}

func TestSendNext(t *testing.T) {
	f := newFixture(t, layout.BCU2)
	f.loadBCU2(t)

	require.NoError(t, f.objs.Write(1, 0x4242))
	fl, err := f.objs.Flags(1)
	require.NoError(t, err)
	assert.Equal(t, FlagTransReq, fl)

	sent, err := f.objs.SendNext(f.bus)
	require.NoError(t, err)
	require.True(t, sent)
	require.Len(t, f.bus.sent, 1)
	assert.Equal(t, telegram.GroupValueWrite, f.bus.sent[0].APCI)
	assert.Equal(t, []byte{0x42, 0x42}, f.bus.sent[0].Payload)

	fl, err = f.objs.Flags(1)
	require.NoError(t, err)
	assert.Equal(t, FlagOK, fl)

	// Nothing else pending.
	sent, err = f.objs.SendNext(f.bus)
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestRequestRead(t *testing.T) {
	f := newFixture(t, layout.BCU2)
	f.loadBCU2(t)

	require.NoError(t, f.objs.RequestRead(0))
	sent, err := f.objs.SendNext(f.bus)
	require.NoError(t, err)
	require.True(t, sent)
	require.Len(t, f.bus.sent, 1)
	assert.Equal(t, telegram.GroupValueRead, f.bus.sent[0].APCI)
	assert.Equal(t, telegram.Address(0x0901), f.bus.sent[0].Dest)
}

func TestSendFailureSetsErrorFlag(t *testing.T) {
	f := newFixture(t, layout.BCU2)
	f.loadBCU2(t)
	f.bus.err = errors.New("bus busy")

	require.NoError(t, f.objs.Write(0, 1))
	sent, err := f.objs.SendNext(f.bus)
	assert.True(t, sent)
	assert.Error(t, err)

	fl, err := f.objs.Flags(0)
	require.NoError(t, err)
	assert.Equal(t, FlagError, fl&FlagTransMask)
}

func TestObjectWithoutTransmitFlagIsNotSent(t *testing.T) {
	f := newFixture(t, layout.BCU2)
	f.loadBCU2(t)

	require.NoError(t, f.objs.SetFlags(2, FlagTransReq))
	sent, err := f.objs.SendNext(f.bus)
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestBCU1ValuePlacement(t *testing.T) {
	f := newFixture(t, layout.BCU1)

	// [count][flags ptr] then {dataPtr, config, type}.
	tab := []byte{2, 0x70,
		0x80, ConfComm | ConfWrite, byte(Byte1),
		0x90, ConfComm | ConfWrite | ConfValueInEeprom, byte(Byte1)}
	require.NoError(t, f.eeprom.Write(0x30, tab))
	require.NoError(t, f.eeprom.SetByte(f.l.Eeprom.CommsTabPtr, 0x30))

	a, err := f.objs.ValueAddress(0)
	require.NoError(t, err)
	assert.Equal(t, memory.RamOffset(0x80), a)
	a, err = f.objs.ValueAddress(1)
	require.NoError(t, err)
	assert.Equal(t, memory.EepromOffset(0x90), a)

	require.NoError(t, f.objs.AddFlags(1, FlagUpdate))
	raw, err := f.ram.Read(0x70, 1)
	require.NoError(t, err)
	assert.Equal(t, FlagUpdate<<4, raw[0])
}

func TestSystemBValuesArePacked(t *testing.T) {
	f := newFixture(t, layout.SYSTEMB)
	ram := f.l.RAM.Start + 0x100

	tab := []byte{3, byte(ram >> 8), byte(ram),
		ConfComm, byte(Bit1),
		ConfComm, byte(Byte4),
		ConfComm, byte(Byte2)}
	require.NoError(t, f.eeprom.Write(0x200, tab))
	require.NoError(t, f.eeprom.SetCommsTabAddr(uint16(f.l.EEPROM.Start+0x200)))

	want := []uint32{2, 3, 7}
	for obj, off := range want {
		a, err := f.objs.ValueAddress(obj)
		require.NoError(t, err)
		assert.Equal(t, memory.RamOffset(off), a, "object %d", obj)
	}
}

func TestSizes(t *testing.T) {
	assert.Equal(t, 1, sizeOf(Bit1, false))
	assert.Equal(t, 1, sizeOf(Bit7, false))
	assert.Equal(t, 14, sizeOf(Byte14, false))
	assert.Equal(t, 15, sizeOf(Byte14+1, false))
	assert.Equal(t, 0, sizeOf(Byte14+2, false))

	assert.Equal(t, 5, sizeOf(Byte14+1, true))
	assert.Equal(t, 13, sizeOf(20, true))
	assert.Equal(t, 15, sizeOf(21, true))
	assert.Equal(t, 248, sizeOf(254, true))
	assert.Equal(t, 252, sizeOf(255, true))
}

func TestDPT9(t *testing.T) {
	tests := []struct {
		hundredths int
		raw        uint16
	}{
		{0, 0x0000},
		{2150, 0x0c33},
		{-2048, 0x8000},
		{100, 0x0064},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.raw, FloatToDPT9(tt.hundredths), "%d", tt.hundredths)
		v, ok := DPT9ToFloat(tt.raw)
		require.True(t, ok)
		assert.Equal(t, tt.hundredths, v)
	}
	assert.Equal(t, InvalidDPT9, FloatToDPT9(1<<30))
	_, ok := DPT9ToFloat(InvalidDPT9)
	assert.False(t, ok)
}
