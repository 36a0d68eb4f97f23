package mixer

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestRecordRoundTrip(t *testing.T) {
	odd := Scaler{
		NegativeScale: math.Float32frombits(0x3eaaaaab), // 1/3
		PositiveScale: math.SmallestNonzeroFloat32,
		Offset:        -0.0,
		MinOutput:     -0.9999999,
		MaxOutput:     0.1 + 0.2,
	}
	inputs := []Input{
		{Control: ControlRef{Group: 3, Index: 7}, Scaler: odd},
		{Control: ControlRef{Group: 0, Index: 0}, Scaler: IdentityScaler()},
		{Control: ControlRef{Group: 1, Index: 5}, Scaler: Scaler{NegativeScale: -2.5, PositiveScale: 0.75, Offset: 0.125, MinOutput: -1, MaxOutput: 1}},
	}
	m, err := NewSimple(inputs, odd)
	if err != nil {
		t.Fatalf("NewSimple failed: %v", err)
	}

	rec := EncodeSimple(m)
	if len(rec) != RecordSize(3) {
		t.Fatalf("Expected %d bytes, got %d", RecordSize(3), len(rec))
	}

	back, err := DecodeSimple(rec)
	if err != nil {
		t.Fatalf("DecodeSimple failed: %v", err)
	}
	if !bytes.Equal(EncodeSimple(back), rec) {
		t.Error("Re-encoded record differs from original")
	}

	got := back.Inputs()
	for i := range inputs {
		if got[i].Control != inputs[i].Control {
			t.Errorf("input %d: control %+v, want %+v", i, got[i].Control, inputs[i].Control)
		}
		if !sameBits(got[i].Scaler, inputs[i].Scaler) {
			t.Errorf("input %d: scaler %+v, want %+v", i, got[i].Scaler, inputs[i].Scaler)
		}
	}
	if !sameBits(back.OutputScaler(), odd) {
		t.Errorf("output scaler %+v, want %+v", back.OutputScaler(), odd)
	}
}

func sameBits(a, b Scaler) bool {
	fa := [...]float32{a.NegativeScale, a.PositiveScale, a.Offset, a.MinOutput, a.MaxOutput}
	fb := [...]float32{b.NegativeScale, b.PositiveScale, b.Offset, b.MinOutput, b.MaxOutput}
	for i := range fa {
		if math.Float32bits(fa[i]) != math.Float32bits(fb[i]) {
			return false
		}
	}
	return true
}

func TestDecodeSimpleRejectsBadRecords(t *testing.T) {
	m := twoInputMixer(t)
	good := EncodeSimple(m)

	zeroCount := append([]byte(nil), good[:SimpleHeaderSize]...)
	zeroCount[0] = 0

	lying := append([]byte(nil), good...)
	lying[0] = 5 // claims more controls than present

	excess := append([]byte(nil), good...)
	excess[0] = MaxSimpleInputs + 1

	badBounds := append([]byte(nil), good...)
	encodeScaler(badBounds[1:SimpleHeaderSize], Scaler{MinOutput: 1, MaxOutput: -1})

	tests := []struct {
		name string
		rec  []byte
		want error
	}{
		{"empty", nil, ErrParse},
		{"short header", good[:SimpleHeaderSize-1], ErrParse},
		{"zero controls", zeroCount, ErrConfig},
		{"count exceeds max", excess, ErrConfig},
		{"count exceeds buffer", lying, ErrParse},
		{"truncated control", good[:len(good)-1], ErrParse},
		{"trailing bytes", append(append([]byte(nil), good...), 0), ErrParse},
		{"inverted output bounds", badBounds, ErrConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSimple(tt.rec)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}
