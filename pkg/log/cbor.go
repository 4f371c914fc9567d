package log

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Event files are a plain sequence of CBOR items, one per event, with
// integer map keys. Timestamps keep nanoseconds so events of one tick
// stay ordered.
var (
	eventEnc = mustEncMode(cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	})

	// Unknown keys are skipped so older readers open newer logs.
	eventDec = mustDecMode(cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	})
)

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	m, err := opts.EncMode()
	if err != nil {
		panic("log: event encoder options: " + err.Error())
	}
	return m
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	m, err := opts.DecMode()
	if err != nil {
		panic("log: event decoder options: " + err.Error())
	}
	return m
}

// EncodeEvent encodes one event.
func EncodeEvent(event Event) ([]byte, error) {
	return eventEnc.Marshal(event)
}

// DecodeEvent decodes one event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	err := eventDec.Unmarshal(data, &event)
	return event, err
}

// NewEncoder returns an event stream encoder writing to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return eventEnc.NewEncoder(w)
}

// NewDecoder returns an event stream decoder reading from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return eventDec.NewDecoder(r)
}
