package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllLayoutsValidate(t *testing.T) {
	for _, v := range Variants() {
		t.Run(v.String(), func(t *testing.T) {
			l, err := For(v)
			require.NoError(t, err)
			assert.Equal(t, v, l.Variant)
			assert.NoError(t, l.Validate())
		})
	}
}

func TestMask0705SharesMask0701EepromWindow(t *testing.T) {
	a := MustFor(MASK0701)
	b := MustFor(MASK0705)

	assert.Equal(t, uint32(0x3f00), b.EEPROM.Start)
	assert.Equal(t, uint32(3072), b.EEPROM.Size)
	assert.Equal(t, a.EEPROM, b.EEPROM)
	assert.Equal(t, a.Eeprom, b.Eeprom)
}

// The BCU2 user RAM keeps a shadow size of 3 even though the RAM is
// volatile; layouts built from older firmware depend on the value.
func TestBCU2RamShadowSize(t *testing.T) {
	assert.Equal(t, uint32(3), MustFor(BCU2).RAM.ShadowSize)
}

func TestWindows(t *testing.T) {
	tests := []struct {
		v          Variant
		ram        Window
		eeprom     Window
		mask       uint16
		properties bool
	}{
		{BCU1, Window{0x000, 0x100, 3}, Window{0x100, 256, 0}, 0x0012, false},
		{BCU2, Window{0x000, 0x100, 3}, Window{0x100, 1024, 0}, 0x0020, true},
		{MASK0701, Window{0x000, 0x304, 3}, Window{0x3f00, 3072, 0}, 0x0701, true},
		{MASK0705, Window{0x000, 0x304, 3}, Window{0x3f00, 3072, 0}, 0x0705, true},
		{SYSTEMB, Window{0x5fc, 0x304, 3}, Window{0x3300, 3072, 0}, 0x07b0, true},
	}
	for _, tt := range tests {
		t.Run(tt.v.String(), func(t *testing.T) {
			l := MustFor(tt.v)
			assert.Equal(t, tt.ram, l.RAM)
			assert.Equal(t, tt.eeprom, l.EEPROM)
			assert.Equal(t, tt.mask, l.MaskVersion)
			assert.Equal(t, tt.properties, l.Properties)
		})
	}
}

func TestEepromOffsets(t *testing.T) {
	bcu1 := MustFor(BCU1).Eeprom
	assert.Equal(t, 0x16, bcu1.AddrTabSize)
	assert.Equal(t, 0x11, bcu1.AssocTabPtr)
	assert.Equal(t, None, bcu1.AddrTabAddr)

	bcu2 := MustFor(BCU2).Eeprom
	assert.Equal(t, 888, bcu2.AddrTabAddr)
	assert.Equal(t, 890, bcu2.AssocTabAddr)
	assert.Equal(t, 892, bcu2.CommsTabAddr)
	assert.Equal(t, 0x03, bcu2.Manufacturer)

	sysb := MustFor(SYSTEMB).Eeprom
	assert.Equal(t, 33, sysb.AddrTabAddr)
	assert.Equal(t, 35, sysb.AssocTabAddr)
	assert.Equal(t, 109, sysb.CommsSeg0Mcb)
	assert.Equal(t, bcu2.CommsTabAddr, sysb.CommsTabAddr)
}

func TestParseVariant(t *testing.T) {
	tests := map[string]Variant{
		"BCU1":      BCU1,
		"bcu2":      BCU2,
		" mask0701": MASK0701,
		"0x0705":    MASK0705,
		"07b0":      SYSTEMB,
		"SystemB":   SYSTEMB,
		"0012":      BCU1,
	}
	for in, want := range tests {
		got, err := ParseVariant(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseVariant("BCU3")
	assert.ErrorIs(t, err, ErrUnknownVariant)

	_, err = For(Variant(0))
	assert.ErrorIs(t, err, ErrUnknownVariant)
	assert.Panics(t, func() { MustFor(Variant(42)) })
}

func TestVariantText(t *testing.T) {
	b, err := MASK0705.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "MASK0705", string(b))

	var v Variant
	require.NoError(t, v.UnmarshalText([]byte("systemb")))
	assert.Equal(t, SYSTEMB, v)

	_, err = Variant(9).MarshalText()
	assert.Error(t, err)
	assert.Equal(t, "Variant(9)", Variant(9).String())
}
