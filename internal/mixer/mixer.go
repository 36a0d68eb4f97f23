package mixer

import "fmt"

// Kind tags the mixer variants a Group can hold.
type Kind uint8

const (
	// KindNull reserves one output slot and always writes zero.
	KindNull Kind = iota
	// KindSimple is a SimpleMixer.
	KindSimple
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindSimple:
		return "simple"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Mixer is a closed tagged union over the known mixer kinds. Only the payload
// matching kind is meaningful.
type Mixer struct {
	kind   Kind
	simple SimpleMixer
}

// Null returns a null mixer.
func Null() Mixer {
	return Mixer{kind: KindNull}
}

// Simple wraps a validated simple mixer.
func Simple(s SimpleMixer) Mixer {
	return Mixer{kind: KindSimple, simple: s}
}

// Kind returns the variant tag.
func (m *Mixer) Kind() Kind {
	return m.kind
}

// AsSimple returns the simple payload when m is a simple mixer.
func (m *Mixer) AsSimple() (SimpleMixer, bool) {
	if m.kind != KindSimple {
		return SimpleMixer{}, false
	}
	return m.simple, true
}

// OutputCount returns how many output slots the mixer fills.
func (m *Mixer) OutputCount() int {
	switch m.kind {
	case KindNull, KindSimple:
		return 1
	default:
		return 0
	}
}

// Mix writes OutputCount values into out, which must be at least that long.
// It returns false when the mixer substituted its failsafe value.
func (m *Mixer) Mix(r Resolver, out []float32) bool {
	switch m.kind {
	case KindSimple:
		v, ok := m.simple.Mix(r)
		out[0] = v
		return ok
	case KindNull:
		out[0] = 0
		return true
	default:
		return false
	}
}
