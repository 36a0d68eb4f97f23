package mixer

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Scaler is an affine transform with separate slopes either side of zero,
// an offset and an output clamp.
type Scaler struct {
	NegativeScale float32 `json:"negativeScale"`
	PositiveScale float32 `json:"positiveScale"`
	Offset        float32 `json:"offset"`
	MinOutput     float32 `json:"minOutput"`
	MaxOutput     float32 `json:"maxOutput"`
}

// IdentityScaler passes inputs through unchanged within [-1, 1].
func IdentityScaler() Scaler {
	return Scaler{NegativeScale: 1, PositiveScale: 1, Offset: 0, MinOutput: -1, MaxOutput: 1}
}

// Apply scales x and clamps the result to [MinOutput, MaxOutput].
// x is expected to be finite; the resolver filters non-finite inputs.
func (s Scaler) Apply(x float32) float32 {
	var out float32
	if x < 0 {
		out = s.Offset + x*s.NegativeScale
	} else {
		out = s.Offset + x*s.PositiveScale
	}
	return constrain(out, s.MinOutput, s.MaxOutput)
}

// Validate rejects non-finite fields and inverted output bounds.
func (s Scaler) Validate() error {
	fields := [...]float32{s.NegativeScale, s.PositiveScale, s.Offset, s.MinOutput, s.MaxOutput}
	for _, f := range fields {
		if !finite(f) {
			return configErrorf("scaler has non-finite field")
		}
	}
	if s.MinOutput > s.MaxOutput {
		return configErrorf("scaler min output %g exceeds max output %g", s.MinOutput, s.MaxOutput)
	}
	return nil
}

func constrain[T constraints.Float](value, min, max T) T {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func finite(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}
