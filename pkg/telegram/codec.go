package telegram

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder mode for trace records.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for trace records.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Record is one entry of a telegram trace.
type Record struct {
	// DelayMs is the bus time elapsed since the previous record.
	DelayMs uint32 `cbor:"1,keyasint,omitempty"`

	// Telegram is the recorded telegram.
	Telegram Telegram `cbor:"2,keyasint"`
}

// Marshal encodes a telegram to CBOR bytes.
func Marshal(t Telegram) ([]byte, error) {
	return encMode.Marshal(t)
}

// Unmarshal decodes CBOR bytes into a telegram.
func Unmarshal(data []byte) (Telegram, error) {
	var t Telegram
	if err := decMode.Unmarshal(data, &t); err != nil {
		return Telegram{}, err
	}
	return t, nil
}

// WriteTrace writes records to w as a CBOR sequence.
func WriteTrace(w io.Writer, records []Record) error {
	enc := encMode.NewEncoder(w)
	for i, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
	}
	return nil
}

// TraceReader streams records from a CBOR sequence.
type TraceReader struct {
	dec *cbor.Decoder
}

// NewTraceReader creates a TraceReader on r.
func NewTraceReader(r io.Reader) *TraceReader {
	return &TraceReader{dec: decMode.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end.
func (r *TraceReader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, err
	}
	return rec, nil
}

// ReadTrace reads all records from r.
func ReadTrace(r io.Reader) ([]Record, error) {
	tr := NewTraceReader(r)
	var out []Record
	for {
		rec, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("reading record %d: %w", len(out), err)
		}
		out = append(out, rec)
	}
}
