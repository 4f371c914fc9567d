package image

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/selfbus/bcu-go/pkg/bcu"
	"github.com/selfbus/bcu-go/pkg/comobj"
	"github.com/selfbus/bcu-go/pkg/layout"
	"github.com/selfbus/bcu-go/pkg/properties"
	"github.com/selfbus/bcu-go/pkg/telegram"
	"github.com/selfbus/bcu-go/pkg/usermem"
)

// Placement of the generated tables. RAM offsets are relative to the RAM
// window, EEPROM offsets to the EEPROM window.
const (
	ramFlags     = 0x70
	ramValues    = 0x80
	eepromTables = 0x80
	user2Size    = 10
)

// MaxChunk is the largest number of data bytes in one memory write.
const MaxChunk = 12

// loadedObjects are the interface objects a download fills in.
var loadedObjects = []properties.ObjectType{
	properties.ObjectAddrTable,
	properties.ObjectAssocTable,
	properties.ObjectApplication,
}

// Segment is a block of bytes at a unified address.
type Segment struct {
	Address uint32
	Data    []byte
}

// End returns the first address past the segment.
func (s Segment) End() uint32 { return s.Address + uint32(len(s.Data)) }

func (s Segment) overlaps(o Segment) bool {
	return s.Address < o.End() && o.Address < s.End()
}

// Download is a built image.
type Download struct {
	Layout   layout.Layout
	Segments []Segment
}

// Size returns the number of bytes the download writes.
func (d *Download) Size() int {
	n := 0
	for _, s := range d.Segments {
		n += len(s.Data)
	}
	return n
}

// Build lays out img in the table formats of its variant.
func Build(img *Image) (*Download, error) {
	l, err := layout.For(img.Variant)
	if err != nil {
		return nil, err
	}
	b := &builder{img: img, l: l}
	steps := []func() error{b.identity, b.addressTable, b.associationTable, b.comObjectTable, b.parameters}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, fmt.Errorf("image %q: %w", img.Name, err)
		}
	}
	return &Download{Layout: l, Segments: b.segs}, nil
}

type builder struct {
	img    *Image
	l      layout.Layout
	segs   []Segment
	slots  map[telegram.Address]int
	cursor uint32
	limit  uint32
}

func (b *builder) eeprom(off int, data []byte) {
	b.segs = append(b.segs, Segment{Address: b.l.EEPROM.Start + uint32(off), Data: data})
}

// alloc reserves n bytes of EEPROM for a table.
func (b *builder) alloc(n int) (int, error) {
	if b.cursor+uint32(n) > b.limit {
		return 0, fmt.Errorf("%w: tables need more than 0x%x bytes of EEPROM", ErrInvalid, b.limit)
	}
	off := b.cursor
	b.cursor += uint32(n)
	return int(off), nil
}

func (b *builder) legacy() bool { return b.l.Tables == layout.TablesLegacy }

func (b *builder) identity() error {
	f := b.l.Eeprom
	app := b.img.Application
	b.eeprom(f.Manufacturer, be16(app.Manufacturer))
	b.eeprom(f.DeviceType, be16(app.DeviceType))
	b.eeprom(f.Version, []byte{app.Version})
	b.eeprom(f.AppPeiType, []byte{app.PeiType})
	return nil
}

func (b *builder) addressTable() error {
	groups := b.img.Groups()
	b.slots = make(map[telegram.Address]int, len(groups))
	data := make([]byte, 0, 2*len(groups))
	for i, g := range groups {
		b.slots[g] = i + 1
		data = binary.BigEndian.AppendUint16(data, uint16(g))
	}

	f := b.l.Eeprom
	if b.legacy() {
		if len(groups) > 0xff {
			return fmt.Errorf("%w: %d group addresses, at most 255", ErrInvalid, len(groups))
		}
		// The physical address between count and groups stays untouched.
		b.eeprom(f.AddrTabSize, []byte{byte(len(groups))})
		if len(data) > 0 {
			b.eeprom(f.AddrTab+2, data)
		}
		b.cursor = uint32(f.AddrTab + 2 + len(data))
		b.limit = b.l.EEPROM.Size
		if f.Checksum != layout.None {
			b.limit = uint32(f.Checksum)
		}
		if b.cursor > b.limit {
			return fmt.Errorf("%w: address table overruns the EEPROM", ErrInvalid)
		}
		return nil
	}

	b.cursor = eepromTables
	b.limit = uint32(f.LoadState)
	if len(groups) == 0 {
		b.eeprom(f.AddrTabAddr, be16(0))
		return nil
	}
	off, err := b.alloc(2 + len(data))
	if err != nil {
		return err
	}
	b.eeprom(off, append(be16(uint16(len(groups))), data...))
	b.eeprom(f.AddrTabAddr, be16(uint16(b.l.EEPROM.Start)+uint16(off)))
	return nil
}

func (b *builder) associationTable() error {
	type assoc struct{ slot, obj int }
	var entries []assoc
	for i, o := range b.img.Objects {
		for _, g := range o.Groups {
			entries = append(entries, assoc{b.slots[g], i})
		}
	}

	f := b.l.Eeprom
	if b.legacy() {
		if len(entries) == 0 {
			b.eeprom(f.AssocTabPtr, []byte{0})
			return nil
		}
		if len(entries) > 0xff {
			return fmt.Errorf("%w: %d associations, at most 255", ErrInvalid, len(entries))
		}
		data := []byte{byte(len(entries))}
		for _, e := range entries {
			data = append(data, byte(e.slot), byte(e.obj))
		}
		off, err := b.alloc(len(data))
		if err != nil {
			return err
		}
		b.eeprom(off, data)
		b.eeprom(f.AssocTabPtr, []byte{byte(off)})
		return nil
	}

	if len(entries) == 0 {
		b.eeprom(f.AssocTabAddr, be16(0))
		return nil
	}
	data := be16(uint16(len(entries)))
	for _, e := range entries {
		data = binary.BigEndian.AppendUint16(data, uint16(e.slot))
		data = binary.BigEndian.AppendUint16(data, uint16(e.obj))
	}
	off, err := b.alloc(len(data))
	if err != nil {
		return err
	}
	b.eeprom(off, data)
	b.eeprom(f.AssocTabAddr, be16(uint16(b.l.EEPROM.Start)+uint16(off)))
	return nil
}

func (b *builder) comObjectTable() error {
	objs := b.img.Objects
	f := b.l.Eeprom
	pointer := func(off int) {
		if b.l.ComObjects == layout.ComObjectsBCU1 {
			b.eeprom(f.CommsTabPtr, []byte{byte(off)})
			return
		}
		if off != 0 {
			off += int(b.l.EEPROM.Start)
		}
		b.eeprom(f.CommsTabAddr, be16(uint16(off)))
	}
	if len(objs) == 0 {
		pointer(0)
		return nil
	}
	if len(objs) > 0xff {
		return fmt.Errorf("%w: %d com objects, at most 255", ErrInvalid, len(objs))
	}
	if flagsEnd := ramFlags + (len(objs)+1)/2; flagsEnd > ramValues {
		return fmt.Errorf("%w: %d com objects do not fit the RAM flags area", ErrInvalid, len(objs))
	}

	ramStart := uint16(b.l.RAM.Start)
	var data []byte
	switch b.l.ComObjects {
	case layout.ComObjectsBCU1:
		data = []byte{byte(len(objs)), ramFlags}
	default:
		data = append([]byte{byte(len(objs))}, be16(ramStart+ramFlags)...)
	}

	values := b.valueAllocator()
	systemB := b.l.ComObjects == layout.ComObjectsSystemB
	packed := 2
	for _, o := range objs {
		conf, err := o.config()
		if err != nil {
			return err
		}
		typ := comobj.Type(o.Type)
		size := typ.Size(systemB)
		switch b.l.ComObjects {
		case layout.ComObjectsSystemB:
			packed += size
			if packed > b.l.Ram.Status {
				return fmt.Errorf("%w: com object values overrun the system RAM at 0x%x", ErrInvalid, b.l.Ram.Status)
			}
			data = append(data, conf, byte(typ))
		case layout.ComObjectsBCU1:
			off, err := values(size)
			if err != nil {
				return err
			}
			data = append(data, byte(off), conf, byte(typ))
		default:
			off, err := values(size)
			if err != nil {
				return err
			}
			data = append(data, be16(ramStart+uint16(off))...)
			data = append(data, conf, byte(typ))
		}
	}

	off, err := b.alloc(len(data))
	if err != nil {
		return err
	}
	b.eeprom(off, data)
	pointer(off)
	return nil
}

// valueAllocator hands out RAM offsets for object values, skipping the
// user area at User2.
func (b *builder) valueAllocator() func(n int) (int, error) {
	next := ramValues
	user2 := b.l.Ram.User2
	return func(n int) (int, error) {
		if next < user2+user2Size && next+n > user2 {
			next = user2 + user2Size
		}
		if next+n > int(b.l.RAM.Size) {
			return 0, fmt.Errorf("%w: com object values do not fit in RAM", ErrInvalid)
		}
		off := next
		next += n
		return off, nil
	}
}

func (b *builder) parameters() error {
	generated := len(b.segs)
	for _, p := range b.img.Parameters {
		if len(p.Data) == 0 {
			continue
		}
		s := Segment{Address: uint32(p.Address), Data: append([]byte(nil), p.Data...)}
		if !b.inWindow(s) {
			return fmt.Errorf("%w: parameter at 0x%04x+%d is outside the memory windows", ErrInvalid, p.Address, len(p.Data))
		}
		for _, g := range b.segs[:generated] {
			if s.overlaps(g) {
				return fmt.Errorf("%w: parameter at 0x%04x overlaps table data at 0x%04x", ErrInvalid, p.Address, g.Address)
			}
		}
		b.segs = append(b.segs, s)
	}
	return nil
}

func (b *builder) inWindow(s Segment) bool {
	for _, w := range []layout.Window{b.l.RAM, b.l.HighRAM, b.l.EEPROM} {
		if w.Contains(s.Address) && s.End() <= w.End() {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Target is a device a download can be applied to.
type Target interface {
	Layout() layout.Layout
	Space() *usermem.Space
	Eeprom() *usermem.UserEeprom
}

// Apply writes the download into dev's memory and marks the address,
// association and application objects loaded. The caller flushes.
func (d *Download) Apply(dev Target) error {
	if v := dev.Layout().Variant; v != d.Layout.Variant {
		return &bcu.MismatchError{Field: "image variant", Want: v.String(), Got: d.Layout.Variant.String()}
	}
	space := dev.Space()
	for _, s := range d.Segments {
		if err := space.WriteRange(s.Address, s.Data); err != nil {
			return fmt.Errorf("writing 0x%04x+%d: %w", s.Address, len(s.Data), err)
		}
	}
	if !d.Layout.Properties {
		return nil
	}
	for _, obj := range loadedObjects {
		if err := dev.Eeprom().SetLoadState(int(obj), byte(properties.Loaded)); err != nil {
			return fmt.Errorf("load state of %s: %w", obj, err)
		}
	}
	return nil
}

// Telegrams returns the download as a telegram sequence from src to dest.
// Variants with interface objects get the memory writes framed by load
// start and load completed events on the loaded objects.
func (d *Download) Telegrams(src, dest telegram.Address) []telegram.Telegram {
	direct := func(apci telegram.APCI, payload []byte) telegram.Telegram {
		return telegram.Telegram{Source: src, Dest: dest, Priority: telegram.PriorityLow, APCI: apci, Payload: payload}
	}
	loadEvent := func(obj properties.ObjectType, ev properties.LoadControl) telegram.Telegram {
		p := []byte{byte(obj), byte(properties.PIDLoadStateControl), 0x10, 0x01, byte(ev)}
		return direct(telegram.PropertyValueWrite, append(p, make([]byte, 9)...))
	}

	var out []telegram.Telegram
	if d.Layout.Properties {
		for _, obj := range loadedObjects {
			out = append(out, loadEvent(obj, properties.LoadStart))
		}
	}
	for _, s := range d.sorted() {
		for i := 0; i < len(s.Data); i += MaxChunk {
			chunk := s.Data[i:min(i+MaxChunk, len(s.Data))]
			addr := s.Address + uint32(i)
			p := append([]byte{byte(len(chunk)), byte(addr >> 8), byte(addr)}, chunk...)
			out = append(out, direct(telegram.MemoryWrite, p))
		}
	}
	if d.Layout.Properties {
		for _, obj := range loadedObjects {
			out = append(out, loadEvent(obj, properties.LoadCompleted))
		}
	}
	return out
}

// sorted returns the segments in address order.
func (d *Download) sorted() []Segment {
	out := append([]Segment(nil), d.Segments...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

func be16(v uint16) []byte { return []byte{byte(v >> 8), byte(v)} }
