package mixer

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Packed little-endian add-simple record layout:
//
//	header:  control_count u8, output scaler 5 x f32
//	control: control_group u8, control_index u8, scaler 5 x f32
const (
	scalerRecordSize      = 5 * 4
	SimpleHeaderSize      = 1 + scalerRecordSize
	SimpleControlSize     = 2 + scalerRecordSize
	MaxSimpleRecordLength = SimpleHeaderSize + MaxSimpleInputs*SimpleControlSize
)

// RecordSize returns the length of an add-simple record with n controls.
func RecordSize(n int) int {
	return SimpleHeaderSize + n*SimpleControlSize
}

// DecodeSimple builds a simple mixer from an add-simple record. The embedded
// control count is checked against MaxSimpleInputs and the record length
// before any control is read.
func DecodeSimple(rec []byte) (SimpleMixer, error) {
	if len(rec) < SimpleHeaderSize {
		return SimpleMixer{}, &ParseError{Msg: fmt.Sprintf("record is %d bytes, header needs %d", len(rec), SimpleHeaderSize)}
	}
	count := int(rec[0])
	if count == 0 || count > MaxSimpleInputs {
		return SimpleMixer{}, configErrorf("record control count %d outside 1..%d", count, MaxSimpleInputs)
	}
	if want := RecordSize(count); len(rec) != want {
		return SimpleMixer{}, &ParseError{Msg: fmt.Sprintf("record is %d bytes, %d controls need %d", len(rec), count, want)}
	}

	output := decodeScaler(rec[1:SimpleHeaderSize])
	var inputs [MaxSimpleInputs]Input
	off := SimpleHeaderSize
	for i := 0; i < count; i++ {
		inputs[i] = Input{
			Control: ControlRef{Group: rec[off], Index: rec[off+1]},
			Scaler:  decodeScaler(rec[off+2 : off+SimpleControlSize]),
		}
		off += SimpleControlSize
	}
	return NewSimple(inputs[:count], output)
}

// EncodeSimple serialises m as an add-simple record.
func EncodeSimple(m SimpleMixer) []byte {
	rec := make([]byte, RecordSize(int(m.count)))
	rec[0] = m.count
	encodeScaler(rec[1:SimpleHeaderSize], m.output)
	off := SimpleHeaderSize
	for i := 0; i < int(m.count); i++ {
		in := m.inputs[i]
		rec[off] = in.Control.Group
		rec[off+1] = in.Control.Index
		encodeScaler(rec[off+2:off+SimpleControlSize], in.Scaler)
		off += SimpleControlSize
	}
	return rec
}

func decodeScaler(b []byte) Scaler {
	f := func(i int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return Scaler{
		NegativeScale: f(0),
		PositiveScale: f(1),
		Offset:        f(2),
		MinOutput:     f(3),
		MaxOutput:     f(4),
	}
}

func encodeScaler(b []byte, s Scaler) {
	fields := [...]float32{s.NegativeScale, s.PositiveScale, s.Offset, s.MinOutput, s.MaxOutput}
	for i, v := range fields {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
}
