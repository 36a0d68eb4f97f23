package mixer

// Control table shape.
const (
	MaxControlGroups    = 4
	MaxControlsPerGroup = 8
)

// ControlRef addresses one upstream control channel.
type ControlRef struct {
	Group uint8 `json:"group"`
	Index uint8 `json:"index"`
}

// Resolver supplies control input values to mixers. Fetch reports false
// instead of failing when the value is out of range, stale or missing.
type Resolver interface {
	Fetch(group, index uint8) (float32, bool)
}

// ControlFrame is a fixed-size snapshot of the control inputs for one tick.
// The zero value has every group unavailable.
type ControlFrame struct {
	values [MaxControlGroups][MaxControlsPerGroup]float32
	counts [MaxControlGroups]uint8
	fresh  [MaxControlGroups]bool
}

// Fetch implements Resolver.
func (f *ControlFrame) Fetch(group, index uint8) (float32, bool) {
	if int(group) >= MaxControlGroups {
		return 0, false
	}
	if !f.fresh[group] || index >= f.counts[group] {
		return 0, false
	}
	v := f.values[group][index]
	if !finite(v) {
		return 0, false
	}
	return v, true
}

// SetGroup copies values into group and marks it fresh. Values past
// MaxControlsPerGroup are dropped. Returns false for an invalid group.
func (f *ControlFrame) SetGroup(group uint8, values []float32) bool {
	if int(group) >= MaxControlGroups {
		return false
	}
	n := copy(f.values[group][:], values)
	f.counts[group] = uint8(n)
	f.fresh[group] = true
	return true
}

// MarkStale makes every control in group unavailable.
func (f *ControlFrame) MarkStale(group uint8) {
	if int(group) < MaxControlGroups {
		f.fresh[group] = false
	}
}

// Clear marks every group unavailable.
func (f *ControlFrame) Clear() {
	f.fresh = [MaxControlGroups]bool{}
}
