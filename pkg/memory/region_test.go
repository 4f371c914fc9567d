package memory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfbus/bcu-go/pkg/hal/sim"
	"github.com/selfbus/bcu-go/pkg/log"
)

func newFlash(t *testing.T) *sim.Flash {
	t.Helper()
	return sim.NewFlash(0x1000, 0x100)
}

func newRegion(t *testing.T, cfg Config, f *sim.Flash, opts ...Option) *Region {
	t.Helper()
	r, err := New(cfg, f, opts...)
	require.NoError(t, err)
	return r
}

func TestNewValidatesConfig(t *testing.T) {
	f := newFlash(t)
	tests := []struct {
		name    string
		cfg     Config
		flash   *sim.Flash
		wantErr error
	}{
		{"zero size", Config{Size: 0}, nil, ErrInvalidConfig},
		{"shadow larger than size", Config{Size: 2, ShadowSize: 3}, nil, ErrInvalidConfig},
		{"persistent without shadow", Config{Start: 0x100, Size: 0x100}, f, ErrInvalidConfig},
		{"exceeds flash", Config{Start: 0xf00, Size: 0x200, ShadowSize: 1}, f, ErrExceedsFlash},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.flash != nil {
				_, err = New(tt.cfg, tt.flash)
			} else {
				_, err = New(tt.cfg, nil)
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReadYourWritesBeforeCommit(t *testing.T) {
	f := newFlash(t)
	r := newRegion(t, Config{Name: "eeprom", Start: 0x100, Size: 0x300, ShadowSize: 3}, f)

	for i := uint32(0); i < r.Size(); i++ {
		v := byte(i*7 + 3)
		require.NoError(t, r.SetByte(i, v))
		got, err := r.Byte(i)
		require.NoError(t, err)
		require.Equal(t, v, got, "offset 0x%x", i)
	}
	assert.True(t, r.Dirty())
	assert.Equal(t, 3, r.DirtyPages())

	// Nothing reached flash yet.
	buf := make([]byte, 0x300)
	require.NoError(t, f.Read(0x100, buf))
	for _, b := range buf {
		require.Equal(t, byte(0xff), b)
	}
}

func TestCommitIsIdempotent(t *testing.T) {
	f := newFlash(t)
	r := newRegion(t, Config{Start: 0x200, Size: 0x200, ShadowSize: 2}, f)

	require.NoError(t, r.Write(0x10, []byte{1, 2, 3}))
	require.NoError(t, r.Write(0x110, []byte{4, 5, 6}))
	require.NoError(t, r.Commit())
	first := f.Image()
	erases := f.Stats().Erases

	require.NoError(t, r.Commit())
	assert.Equal(t, first, f.Image())
	assert.Equal(t, erases, f.Stats().Erases, "second commit must not touch flash")
	assert.False(t, r.Dirty())
}

func TestCommitSkipsUnchangedPages(t *testing.T) {
	f := newFlash(t)
	mem := log.NewMemoryLogger(8)
	r := newRegion(t, Config{Name: "eeprom", Start: 0, Size: 0x200, ShadowSize: 2}, f, WithLogger(mem))

	require.NoError(t, r.Write(0, []byte{0xff, 0xff})) // same as erased flash
	require.NoError(t, r.Commit())

	assert.Equal(t, 0, f.Stats().Erases)
	events := mem.Events()
	require.Len(t, events, 1)
	assert.Equal(t, 0, events[0].Commit.PagesWritten)
	assert.Equal(t, 1, events[0].Commit.PagesSkipped)
	assert.Equal(t, TriggerFlush, events[0].Commit.Trigger)
}

func TestOneByteCommitPreservesRestOfPage(t *testing.T) {
	f := newFlash(t)

	// Fill two pages with a pattern, including bytes outside the region.
	img := f.Image()
	for i := 0x100; i < 0x300; i++ {
		img[i] = byte(i ^ 0x5a)
	}
	require.NoError(t, f.LoadImage(img))

	// The region starts mid-page so page 0x100 is shared with foreign data.
	r := newRegion(t, Config{Start: 0x180, Size: 0x100, ShadowSize: 3}, f)
	require.NoError(t, r.SetByte(5, 0x00))
	require.NoError(t, r.Commit())

	after := f.Image()
	for addr := 0x100; addr < 0x200; addr++ {
		if addr == 0x185 {
			assert.Equal(t, byte(0x00), after[addr])
			continue
		}
		require.Equal(t, img[addr], after[addr], "byte 0x%x changed", addr)
	}
	// The untouched second page was never erased.
	assert.Equal(t, 0, f.Wear(0x200))
	assert.Equal(t, 1, f.Wear(0x100))
}

func TestLoadReadsFlashAtBoot(t *testing.T) {
	f := newFlash(t)
	img := f.Image()
	copy(img[0x300:], []byte{0xde, 0xad, 0xbe, 0xef})
	require.NoError(t, f.LoadImage(img))

	r := newRegion(t, Config{Start: 0x300, Size: 0x10, ShadowSize: 1}, f)
	v, err := r.Uint16(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xdead), v)
	assert.False(t, r.Dirty())

	require.NoError(t, r.PutUint16(2, 0x1234))
	b, err := r.Read(2, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12, 0x34}, b)

	// Load discards uncommitted writes.
	require.NoError(t, r.Load())
	v, err = r.Uint16(2)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xbeef), v)
}

func TestShadowPressureCommitsEarly(t *testing.T) {
	f := newFlash(t)
	mem := log.NewMemoryLogger(8)
	r := newRegion(t, Config{Start: 0, Size: 0x300, ShadowSize: 1}, f, WithLogger(mem))

	require.NoError(t, r.SetByte(0x10, 0x11))
	require.NoError(t, r.SetByte(0x20, 0x22)) // same page, no commit
	assert.Equal(t, 0, f.Stats().Erases)

	require.NoError(t, r.SetByte(0x110, 0x33)) // second page forces a commit
	assert.Equal(t, 1, f.Stats().Erases)
	assert.Equal(t, 1, r.DirtyPages())

	buf := make([]byte, 1)
	require.NoError(t, f.Read(0x10, buf))
	assert.Equal(t, byte(0x11), buf[0])

	events := mem.Events()
	require.Len(t, events, 1)
	assert.Equal(t, TriggerPressure, events[0].Commit.Trigger)
}

func TestWriteSpanningMorePagesThanShadow(t *testing.T) {
	f := newFlash(t)
	r := newRegion(t, Config{Start: 0, Size: 0x400, ShadowSize: 1}, f)

	data := make([]byte, 0x300)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, r.Write(0x80, data))
	require.NoError(t, r.Commit())

	buf := make([]byte, len(data))
	require.NoError(t, f.Read(0x80, buf))
	assert.Equal(t, data, buf)
}

func TestCommitRetriesOnce(t *testing.T) {
	f := newFlash(t)
	r := newRegion(t, Config{Start: 0, Size: 0x100, ShadowSize: 1}, f)

	require.NoError(t, r.SetByte(0, 0x42))
	f.FailNextErase(1)
	require.NoError(t, r.Commit())
	assert.Equal(t, 1, f.Stats().Faults)
	assert.False(t, r.Dirty())
}

func TestCommitFailureAfterRetry(t *testing.T) {
	f := newFlash(t)
	mem := log.NewMemoryLogger(8)
	r := newRegion(t, Config{Name: "eeprom", Start: 0, Size: 0x100, ShadowSize: 1}, f, WithLogger(mem))

	require.NoError(t, r.SetByte(0, 0x42))
	f.FailNextProgram(2)

	err := r.Commit()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCommitFailure))
	assert.True(t, errors.Is(err, sim.ErrFlashFault))

	var ce *CommitError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, uint32(0), ce.Page)
	assert.Equal(t, 2, ce.Attempts)
	assert.True(t, r.Dirty(), "failed page stays dirty")

	events := mem.Events()
	require.Len(t, events, 1)
	assert.True(t, events[0].Commit.Failed)

	// The next commit succeeds and the value survives.
	require.NoError(t, r.Commit())
	buf := make([]byte, 1)
	require.NoError(t, f.Read(0, buf))
	assert.Equal(t, byte(0x42), buf[0])
}

func TestWithRetriesZero(t *testing.T) {
	f := newFlash(t)
	r := newRegion(t, Config{Start: 0, Size: 0x100, ShadowSize: 1}, f, WithRetries(0))
	require.NoError(t, r.SetByte(0, 1))
	f.FailNextErase(1)
	assert.ErrorIs(t, r.Commit(), ErrCommitFailure)
}

// maskCheckingFlash records flash operations issued with interrupts unmasked.
type maskCheckingFlash struct {
	*sim.Flash
	irq      *sim.Interrupts
	unmasked int
}

func (m *maskCheckingFlash) Erase(p uint32) error {
	if !m.irq.Masked() {
		m.unmasked++
	}
	return m.Flash.Erase(p)
}

func (m *maskCheckingFlash) Program(p uint32, d []byte) error {
	if !m.irq.Masked() {
		m.unmasked++
	}
	return m.Flash.Program(p, d)
}

func TestCommitMasksInterrupts(t *testing.T) {
	irq := sim.NewInterrupts()
	f := &maskCheckingFlash{Flash: newFlash(t), irq: irq}

	r, err := New(Config{Start: 0, Size: 0x200, ShadowSize: 2}, f, WithInterrupts(irq))
	require.NoError(t, err)

	require.NoError(t, r.SetByte(0x00, 1))
	require.NoError(t, r.SetByte(0x100, 2))
	require.NoError(t, r.Commit())

	assert.Equal(t, 0, f.unmasked)
	assert.Equal(t, int64(1), irq.Sections(), "one critical section per commit")
	assert.False(t, irq.Masked())
}

func TestRangeErrors(t *testing.T) {
	r := newRegion(t, Config{Name: "ram", Start: 0, Size: 0x10}, nil)

	_, err := r.Read(0x0f, 2)
	var re *RangeError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "ram", re.Region)
	assert.ErrorIs(t, err, ErrOutOfRange)

	assert.ErrorIs(t, r.Write(0x10, []byte{1}), ErrOutOfRange)
	_, err = r.Byte(0x10)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = r.Resolve(0x10)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = r.Uint16(0x0f)
	assert.ErrorIs(t, err, ErrOutOfRange)

	// Boundary accesses succeed.
	require.NoError(t, r.Write(0x0e, []byte{1, 2}))
	_, err = r.Read(0, 0x10)
	assert.NoError(t, err)
}

func TestVolatileRegion(t *testing.T) {
	r := newRegion(t, Config{Name: "ram", Start: 0x5fc, Size: 0x304, ShadowSize: 3}, nil)

	assert.False(t, r.Persistent())
	require.NoError(t, r.SetByte(0, 9))
	assert.False(t, r.Dirty())
	assert.NoError(t, r.Commit())

	require.NoError(t, r.Clear())
	b, err := r.Byte(0)
	require.NoError(t, err)
	assert.Equal(t, byte(0), b)
}

func TestGeometry(t *testing.T) {
	r := newRegion(t, Config{Start: 0x3f00, Size: 3072, ShadowSize: 3}, nil)

	assert.Equal(t, uint32(0x3f00), r.Start())
	assert.Equal(t, uint32(0x3f00+3072-1), r.End())
	assert.Equal(t, uint32(3), r.ShadowSize())
	assert.True(t, r.Contains(0x3f00))
	assert.True(t, r.Contains(0x3f00+3071))
	assert.False(t, r.Contains(0x3eff))
	assert.False(t, r.Contains(0x3f00+3072))
	assert.True(t, r.ContainsRange(0x3f00+3070, 2))
	assert.False(t, r.ContainsRange(0x3f00+3070, 3))

	p, err := r.Resolve(0x10)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x3f10), p)
}

func TestAddress(t *testing.T) {
	a := EepromOffset(0x16)
	assert.Equal(t, "EEPROM+0x0016", a.String())
	assert.Equal(t, RamOffset(0x12), RamOffset(0x10).Add(2))
	assert.True(t, Address{}.IsZero())
	assert.False(t, a.IsZero())
	assert.Equal(t, "UNKNOWN", Space(0).String())
}
