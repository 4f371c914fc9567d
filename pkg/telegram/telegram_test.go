package telegram

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressFormatting(t *testing.T) {
	assert.Equal(t, "1/1/2", Address(0x0902).Group())
	assert.Equal(t, "31/7/255", Address(0xffff).Group())
	assert.Equal(t, "1.1.1", Address(0x1101).Physical())
	assert.Equal(t, "15.15.255", Address(0xffff).Physical())
}

func TestParseGroup(t *testing.T) {
	tests := []struct {
		in      string
		want    Address
		wantErr bool
	}{
		{"1/1/2", 0x0902, false},
		{"0/0/1", 0x0001, false},
		{"2/300", 0x112c, false},
		{"0x1102", 0x1102, false},
		{"4354", 0x1102, false},
		{"32/0/0", 0, true},
		{"1/8/0", 0, true},
		{"1/1/256", 0, true},
		{"a/b/c", 0, true},
		{"1/2/3/4", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseGroup(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidAddress))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePhysical(t *testing.T) {
	a, err := ParsePhysical("1.1.1")
	require.NoError(t, err)
	assert.Equal(t, Address(0x1101), a)

	_, err = ParsePhysical("16.0.0")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = ParsePhysical("1.1")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestAPCI(t *testing.T) {
	assert.True(t, GroupValueRead.IsGroup())
	assert.True(t, GroupValueResponse.IsGroup())
	assert.True(t, GroupValueWrite.IsGroup())
	assert.False(t, MemoryWrite.IsGroup())
	assert.False(t, PropertyValueRead.IsGroup())

	assert.Equal(t, "MemoryWrite", MemoryWrite.String())
	assert.Equal(t, "APCI(0x3ff)", APCI(0x3ff).String())

	a, ok := ParseAPCI("PropertyValueWrite")
	assert.True(t, ok)
	assert.Equal(t, PropertyValueWrite, a)
	_, ok = ParseAPCI("Bogus")
	assert.False(t, ok)
}

func TestTelegramHelpers(t *testing.T) {
	w := NewGroupWrite(0x1101, 0x0902, []byte{1})
	assert.Equal(t, GroupValueWrite, w.APCI)
	assert.True(t, w.Group)
	assert.Equal(t, "1.1.1 -> 1/1/2 GroupValueWrite [01]", w.String())

	r := NewGroupRead(0x1101, 0)
	assert.True(t, r.IsBroadcast())
	assert.Empty(t, r.Payload)
}

func TestTraceRoundTrip(t *testing.T) {
	records := []Record{
		{Telegram: NewGroupWrite(0x1101, 0x0902, []byte{1})},
		{DelayMs: 50, Telegram: NewGroupRead(0x1102, 0x0903)},
		{DelayMs: 10, Telegram: Telegram{Source: 0x1103, Dest: 0x1101, APCI: MemoryRead,
			Payload: []byte{2, 0x01, 0x16}}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTrace(&buf, records))

	got, err := ReadTrace(&buf)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, uint32(50), got[1].DelayMs)
	assert.Equal(t, Address(0x0903), got[1].Telegram.Dest)
	assert.Equal(t, MemoryRead, got[2].Telegram.APCI)
	assert.Equal(t, []byte{2, 0x01, 0x16}, got[2].Telegram.Payload)
}

func TestReadTraceTruncated(t *testing.T) {
	data, err := Marshal(NewGroupWrite(1, 2, []byte{3}))
	require.NoError(t, err)

	_, err = ReadTrace(bytes.NewReader(data[:len(data)-1]))
	assert.Error(t, err)
}

func TestParseScript(t *testing.T) {
	src := []byte(`
steps:
  - source: "1.1.5"
    dest: "1/1/2"
    group: true
    apci: GroupValueWrite
    payload: [1]
  - delay_ms: 100
    source: "1.1.5"
    dest: "1/1/3"
    group: true
    apci: "0x000"
`)
	s, err := ParseScript(src)
	require.NoError(t, err)
	require.Len(t, s.Steps, 2)

	recs := s.Records()
	assert.Equal(t, Address(0x1105), recs[0].Telegram.Source)
	assert.Equal(t, Address(0x0902), recs[0].Telegram.Dest)
	assert.Equal(t, GroupValueWrite, recs[0].Telegram.APCI)
	assert.Equal(t, []byte{1}, recs[0].Telegram.Payload)
	assert.Equal(t, uint32(100), recs[1].DelayMs)
	assert.Equal(t, GroupValueRead, recs[1].Telegram.APCI)
}

func TestParseScriptErrors(t *testing.T) {
	_, err := ParseScript([]byte("steps:\n  - dest: \"1/9/0\"\n"))
	assert.Error(t, err)

	_, err = ParseScript([]byte("steps:\n  - apci: Nonsense\n"))
	assert.Error(t, err)
}
