package image

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfbus/bcu-go/pkg/bcu"
	"github.com/selfbus/bcu-go/pkg/comobj"
	"github.com/selfbus/bcu-go/pkg/hal/sim"
	"github.com/selfbus/bcu-go/pkg/layout"
	"github.com/selfbus/bcu-go/pkg/properties"
	"github.com/selfbus/bcu-go/pkg/telegram"
)

const (
	own  telegram.Address = 0x1105
	peer telegram.Address = 0x11fe
)

const dimmer = `
name: dimmer
variant: %s
application:
  manufacturer: 0x0083
  device_type: 0x0012
  version: 3
group_addresses: ["0/9/1", "0/9/2"]
objects:
  - name: switch
    type: 1bit
    flags: [comm, read, write, trans]
    groups: ["0/9/1"]
  - name: brightness
    type: 2byte
    flags: [comm, write, trans]
    priority: normal
    groups: ["0/9/2", "0/9/3"]
  - name: status
    type: 2byte
    flags: [comm, read]
    groups: ["0/9/2"]
`

func dimmerImage(t *testing.T, v layout.Variant) *Image {
	t.Helper()
	img, err := Parse([]byte(fmt.Sprintf(dimmer, v)))
	require.NoError(t, err)
	return img
}

func newDevice(t *testing.T, v layout.Variant) *bcu.Device {
	t.Helper()
	clock := sim.NewClock()
	dev, err := bcu.New(v, sim.NewFlash(sim.DefaultFlashSize, sim.DefaultPageSize), sim.NewBus(),
		bcu.WithClock(clock), bcu.WithSessionID("image-test"))
	require.NoError(t, err)
	require.NoError(t, dev.SetOwnAddress(own))
	return dev
}

// checkDimmer verifies the dimmer tables through the device.
func checkDimmer(t *testing.T, dev *bcu.Device) {
	t.Helper()
	addrs, err := dev.AddrTables().Address.Addresses()
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x0901, 0x0902, 0x0903}, addrs)

	objs, err := dev.AddrTables().ObjectsFor(0x0902)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, objs)

	table := dev.ComObjects()
	n, err := table.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	d, err := table.Descriptor(1)
	require.NoError(t, err)
	assert.Equal(t, comobj.Byte2, d.Type)
	assert.Equal(t, byte(telegram.PriorityNormal), d.Priority())
	assert.True(t, d.Has(comobj.ConfWriteComm|comobj.ConfTrans))

	require.NoError(t, dev.Receive(telegram.NewGroupWrite(peer, 0x0903, []byte{0x12, 0x34})))
	v, err := table.Read(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1234), v)
	v, err = table.Read(2)
	require.NoError(t, err)
	assert.Zero(t, v, "status has no write flag")

	m, err := dev.Eeprom().Manufacturer()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0083), m)

	a, err := dev.OwnAddress()
	require.NoError(t, err)
	assert.Equal(t, own, a)
}

func TestApplyToEveryVariant(t *testing.T) {
	for _, v := range layout.Variants() {
		t.Run(v.String(), func(t *testing.T) {
			dl, err := Build(dimmerImage(t, v))
			require.NoError(t, err)

			dev := newDevice(t, v)
			require.NoError(t, dl.Apply(dev))
			require.NoError(t, dev.Start())
			checkDimmer(t, dev)

			if props, ok := dev.Properties(); ok {
				s, err := props.LoadState(properties.ObjectApplication)
				require.NoError(t, err)
				assert.Equal(t, properties.Loaded, s)
			}
		})
	}
}

func TestDownloadOverTheBus(t *testing.T) {
	for _, v := range layout.Variants() {
		t.Run(v.String(), func(t *testing.T) {
			dl, err := Build(dimmerImage(t, v))
			require.NoError(t, err)

			dev := newDevice(t, v)
			require.NoError(t, dev.Start())
			for _, tel := range dl.Telegrams(peer, own) {
				require.LessOrEqual(t, len(tel.Payload), MaxChunk+3)
				require.NoError(t, dev.Receive(tel), "telegram %s", tel)
			}
			checkDimmer(t, dev)

			if props, ok := dev.Properties(); ok {
				for _, obj := range loadedObjects {
					s, err := props.LoadState(obj)
					require.NoError(t, err)
					assert.Equal(t, properties.Loaded, s, "load state of %s", obj)
				}
			}
		})
	}
}

func TestTelegramsFraming(t *testing.T) {
	dl, err := Build(dimmerImage(t, layout.BCU2))
	require.NoError(t, err)
	tels := dl.Telegrams(peer, own)

	require.Greater(t, len(tels), 6)
	for _, tel := range tels[:3] {
		assert.Equal(t, telegram.PropertyValueWrite, tel.APCI)
		assert.Equal(t, byte(properties.LoadStart), tel.Payload[4])
	}
	for _, tel := range tels[len(tels)-3:] {
		assert.Equal(t, telegram.PropertyValueWrite, tel.APCI)
		assert.Equal(t, byte(properties.LoadCompleted), tel.Payload[4])
	}
	total := 0
	for _, tel := range tels[3 : len(tels)-3] {
		assert.Equal(t, telegram.MemoryWrite, tel.APCI)
		assert.Equal(t, own, tel.Dest)
		total += int(tel.Payload[0])
	}
	assert.Equal(t, dl.Size(), total)

	bcu1, err := Build(dimmerImage(t, layout.BCU1))
	require.NoError(t, err)
	for _, tel := range bcu1.Telegrams(peer, own) {
		assert.Equal(t, telegram.MemoryWrite, tel.APCI, "BCU1 has no load state machine")
	}
}

func TestLegacyLayout(t *testing.T) {
	dl, err := Build(dimmerImage(t, layout.BCU1))
	require.NoError(t, err)

	f := dl.Layout.Eeprom
	base := dl.Layout.EEPROM.Start
	var count, groups *Segment
	for i := range dl.Segments {
		switch dl.Segments[i].Address {
		case base + uint32(f.AddrTabSize):
			count = &dl.Segments[i]
		case base + uint32(f.AddrTab) + 2:
			groups = &dl.Segments[i]
		}
		assert.False(t, dl.Segments[i].overlaps(Segment{Address: base + uint32(f.AddrTab), Data: make([]byte, 2)}),
			"segment at 0x%x touches the physical address", dl.Segments[i].Address)
	}
	require.NotNil(t, count)
	require.NotNil(t, groups)
	assert.Equal(t, []byte{3}, count.Data)
	assert.Equal(t, []byte{0x09, 0x01, 0x09, 0x02, 0x09, 0x03}, groups.Data)
}

func TestParameters(t *testing.T) {
	img := dimmerImage(t, layout.BCU2)
	img.Parameters = []Parameter{
		{Address: 0x0400, Data: Bytes{0xde, 0xad}},
		{Address: 0x00c8, Data: Bytes{1, 2, 3}},
	}
	dl, err := Build(img)
	require.NoError(t, err)

	dev := newDevice(t, layout.BCU2)
	require.NoError(t, dl.Apply(dev))
	b, err := dev.Space().ReadRange(0x0400, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad}, b)
	b, err = dev.Ram().Read(0xc8, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, b)
}

func TestParameterErrors(t *testing.T) {
	tests := []struct {
		name  string
		param Parameter
	}{
		{"outside windows", Parameter{Address: 0x2000, Data: Bytes{1}}},
		{"across window end", Parameter{Address: 0x04ff, Data: Bytes{1, 2}}},
		{"over manufacturer", Parameter{Address: 0x0103, Data: Bytes{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := dimmerImage(t, layout.BCU2)
			img.Parameters = []Parameter{tt.param}
			_, err := Build(img)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestApplyVariantMismatch(t *testing.T) {
	dl, err := Build(dimmerImage(t, layout.BCU2))
	require.NoError(t, err)

	err = dl.Apply(newDevice(t, layout.MASK0701))
	assert.ErrorIs(t, err, bcu.ErrConfigurationMismatch)
	var m *bcu.MismatchError
	require.True(t, errors.As(err, &m))
	assert.Equal(t, "image variant", m.Field)
}

func TestTooManyObjects(t *testing.T) {
	img := &Image{Name: "big", Variant: layout.BCU1}
	for i := 0; i < 40; i++ {
		img.Objects = append(img.Objects, Object{Type: ObjectType(comobj.Byte1), Flags: []string{"comm"}})
	}
	_, err := Build(img)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestEmptyImageClearsPointers(t *testing.T) {
	img := &Image{Name: "empty", Variant: layout.BCU2}
	dl, err := Build(img)
	require.NoError(t, err)

	dev := newDevice(t, layout.BCU2)
	require.NoError(t, dev.Eeprom().SetCommsTabAddr(0x0180))
	require.NoError(t, dl.Apply(dev))
	p, err := dev.Eeprom().CommsTabAddr()
	require.NoError(t, err)
	assert.Zero(t, p)
}

func TestParse(t *testing.T) {
	img, err := Parse([]byte(`
name: params
variant: mask0701
parameters:
  - address: 0x3f40
    data: "01 02 ff"
  - address: 0x3f50
    data: [1, 2, 3]
`))
	require.NoError(t, err)
	assert.Equal(t, layout.MASK0701, img.Variant)
	require.Len(t, img.Parameters, 2)
	assert.Equal(t, Bytes{1, 2, 0xff}, img.Parameters[0].Data)
	assert.Equal(t, Bytes{1, 2, 3}, img.Parameters[1].Data)

	bad := []string{
		"name: x\n",
		"name: x\nvariant: BCU2\nobjects: [{type: 9bit}]\n",
		"name: x\nvariant: BCU2\ncolour: red\n",
		"name: x\nvariant: BCU2\nparameters: [{address: 1, data: zz}]\n",
	}
	for _, src := range bad {
		_, err := Parse([]byte(src))
		assert.Error(t, err, src)
	}

	img, err = Parse([]byte("name: x\nvariant: BCU2\nobjects: [{type: 1bit, flags: [bogus]}]\n"))
	require.NoError(t, err)
	_, err = Build(img)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestGroupsAppendsUnlisted(t *testing.T) {
	img := dimmerImage(t, layout.BCU2)
	assert.Equal(t, []telegram.Address{0x0901, 0x0902, 0x0903}, img.Groups())
}
