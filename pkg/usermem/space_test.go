package usermem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfbus/bcu-go/pkg/hal/sim"
	"github.com/selfbus/bcu-go/pkg/layout"
	"github.com/selfbus/bcu-go/pkg/memory"
)

func newSpace(t *testing.T, v layout.Variant) (*Space, *UserRam, *UserEeprom) {
	t.Helper()
	l := layout.MustFor(v)
	ram, err := NewUserRam(l, nil)
	require.NoError(t, err)
	eeprom, err := NewUserEeprom(l, sim.NewFlash(sim.DefaultFlashSize, sim.DefaultPageSize), nil)
	require.NoError(t, err)
	require.NoError(t, eeprom.Region().Clear())
	return NewSpace(ram, eeprom, nil), ram, eeprom
}

func TestSpaceResolve(t *testing.T) {
	s, _, _ := newSpace(t, layout.BCU2)

	a, err := s.Resolve(0x0116)
	require.NoError(t, err)
	assert.Equal(t, memory.EepromOffset(0x16), a)

	a, err = s.Resolve(0x0060)
	require.NoError(t, err)
	assert.Equal(t, memory.RamOffset(0x60), a)

	a, err = s.Resolve(0x0905)
	require.NoError(t, err)
	assert.Equal(t, memory.Address{Space: memory.SpaceHighRAM, Offset: 5}, a)

	_, err = s.Resolve(0x2000)
	assert.ErrorIs(t, err, memory.ErrOutOfRange)

	u, err := s.Unified(memory.EepromOffset(0x16))
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0116), u)
}

func TestSpaceSystemBRamIsOffset(t *testing.T) {
	s, _, _ := newSpace(t, layout.SYSTEMB)

	a, err := s.Resolve(0x5fc)
	require.NoError(t, err)
	assert.Equal(t, memory.RamOffset(0), a)

	_, err = s.Resolve(0x100)
	assert.ErrorIs(t, err, memory.ErrOutOfRange)
}

func TestSpaceRangeCrossesWindows(t *testing.T) {
	s, ram, eeprom := newSpace(t, layout.BCU2)

	require.NoError(t, s.WriteRange(0xfe, []byte{1, 2, 3, 4}))

	b, err := ram.Read(0xfe, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, b)
	b, err = eeprom.Read(0, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4}, b)
	assert.True(t, eeprom.Modified())

	b, err = s.ReadRange(0xfe, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, b)
}

func TestSpaceRangeWritesNothingWhenUnresolved(t *testing.T) {
	s, _, eeprom := newSpace(t, layout.BCU2)
	require.NoError(t, eeprom.Commit())

	// The EEPROM ends at 0x4ff and nothing follows it.
	err := s.WriteRange(0x4fe, []byte{1, 2, 3})
	assert.ErrorIs(t, err, memory.ErrOutOfRange)
	assert.False(t, eeprom.Modified())

	_, err = s.ReadRange(0x4fe, 3)
	assert.ErrorIs(t, err, memory.ErrOutOfRange)
}
