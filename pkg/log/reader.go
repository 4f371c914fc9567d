package log

import (
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events. Zero fields do not constrain.
type Filter struct {
	SessionID string
	Variant   string
	Direction *Direction
	Layer     *Layer
	Category  *Category

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time

	// GroupAddress keeps group telegrams sent to this destination.
	GroupAddress *uint16
}

func (f *Filter) matches(e Event) bool {
	switch {
	case f.SessionID != "" && e.SessionID != f.SessionID,
		f.Variant != "" && e.Variant != f.Variant,
		f.Layer != nil && e.Layer != *f.Layer,
		f.Category != nil && e.Category != *f.Category,
		f.TimeStart != nil && e.Timestamp.Before(*f.TimeStart),
		f.TimeEnd != nil && !e.Timestamp.Before(*f.TimeEnd):
		return false
	}
	if f.Direction == nil && f.GroupAddress == nil {
		return true
	}
	tg := e.Telegram
	if tg == nil {
		return false
	}
	if f.Direction != nil && e.Direction != *f.Direction {
		return false
	}
	return f.GroupAddress == nil || (tg.Group && tg.Dest == *f.GroupAddress)
}

// Reader streams events out of an event log, one CBOR item at a time.
type Reader struct {
	src     io.Reader
	dec     *cbor.Decoder
	filter  Filter
	skipped int
}

// NewReader opens the event log at path.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens the event log at path and yields only events
// that match filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewStreamReader(f, filter), nil
}

// NewStreamReader reads events from r. Close closes r when it is an
// io.Closer.
func NewStreamReader(r io.Reader, filter Filter) *Reader {
	return &Reader{src: r, dec: NewDecoder(r), filter: filter}
}

// Next returns the next matching event, or io.EOF at the end of the log.
func (r *Reader) Next() (Event, error) {
	for {
		var e Event
		if err := r.dec.Decode(&e); err != nil {
			return Event{}, err
		}
		if r.filter.matches(e) {
			return e, nil
		}
		r.skipped++
	}
}

// Skipped returns the number of events the filter has passed over.
func (r *Reader) Skipped() int { return r.skipped }

// Close releases the underlying file.
func (r *Reader) Close() error {
	if c, ok := r.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
