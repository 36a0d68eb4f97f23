package mixer

// MaxSimpleInputs bounds the inputs of a single simple mixer.
const MaxSimpleInputs = 8

// Input is one weighted control contribution to a simple mixer.
type Input struct {
	Control ControlRef `json:"control"`
	Scaler  Scaler     `json:"scaler"`
}

// SimpleMixer sums scaled control inputs into one output and applies an
// output scaler. Inputs live in a fixed array so copying a SimpleMixer copies
// its whole configuration.
type SimpleMixer struct {
	inputs [MaxSimpleInputs]Input
	count  uint8
	output Scaler
}

// NewSimple validates inputs and the output scaler and returns a mixer that
// owns a copy of inputs.
func NewSimple(inputs []Input, output Scaler) (SimpleMixer, error) {
	var m SimpleMixer
	if err := output.Validate(); err != nil {
		return m, err
	}
	m.output = output
	if err := m.ReplaceInputs(inputs); err != nil {
		return SimpleMixer{}, err
	}
	return m, nil
}

// ReplaceInputs swaps the whole input set. On error the mixer is unchanged.
func (m *SimpleMixer) ReplaceInputs(inputs []Input) error {
	if len(inputs) == 0 {
		return configErrorf("simple mixer needs at least one input")
	}
	if len(inputs) > MaxSimpleInputs {
		return configErrorf("simple mixer has %d inputs, max %d", len(inputs), MaxSimpleInputs)
	}
	for i, in := range inputs {
		if err := in.Scaler.Validate(); err != nil {
			return configErrorf("input %d: %v", i, err)
		}
	}
	var next [MaxSimpleInputs]Input
	copy(next[:], inputs)
	m.inputs = next
	m.count = uint8(len(inputs))
	return nil
}

// Mix returns the mixed output. If any input is unavailable the mixer
// returns the output scaler's MinOutput and false.
func (m *SimpleMixer) Mix(r Resolver) (float32, bool) {
	var sum float32
	for i := uint8(0); i < m.count; i++ {
		in := &m.inputs[i]
		v, ok := r.Fetch(in.Control.Group, in.Control.Index)
		if !ok {
			return m.output.MinOutput, false
		}
		sum += in.Scaler.Apply(v)
	}
	return m.output.Apply(sum), true
}

// Failsafe is the value produced when an input is unavailable.
func (m *SimpleMixer) Failsafe() float32 {
	return m.output.MinOutput
}

// InputCount returns the number of configured inputs.
func (m *SimpleMixer) InputCount() int {
	return int(m.count)
}

// Inputs returns a copy of the configured inputs in order.
func (m *SimpleMixer) Inputs() []Input {
	out := make([]Input, m.count)
	copy(out, m.inputs[:m.count])
	return out
}

// OutputScaler returns the output stage scaler.
func (m *SimpleMixer) OutputScaler() Scaler {
	return m.output
}
