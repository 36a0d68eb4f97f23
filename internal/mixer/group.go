package mixer

// Default group limits.
const (
	DefaultMaxMixers  = 16
	DefaultMaxOutputs = 16
)

// Limits caps the size of a Group.
type Limits struct {
	MaxMixers  int
	MaxOutputs int
}

// DefaultLimits returns the default group limits.
func DefaultLimits() Limits {
	return Limits{MaxMixers: DefaultMaxMixers, MaxOutputs: DefaultMaxOutputs}
}

// MixResult reports what one Group.Mix call did.
type MixResult struct {
	Attempted int // total outputs of all members
	Written   int // slots actually written
	Failsafe  int // written slots holding a failsafe value
}

// Truncated reports whether some outputs did not fit in the caller's buffer.
func (r MixResult) Truncated() bool {
	return r.Written < r.Attempted
}

// Group is an ordered, appendable collection of mixers. Storage is allocated
// once at construction.
type Group struct {
	limits  Limits
	mixers  []Mixer
	outputs int
}

// NewGroup creates an empty group. Non-positive limits fall back to defaults.
func NewGroup(limits Limits) *Group {
	if limits.MaxMixers <= 0 {
		limits.MaxMixers = DefaultMaxMixers
	}
	if limits.MaxOutputs <= 0 {
		limits.MaxOutputs = DefaultMaxOutputs
	}
	return &Group{
		limits: limits,
		mixers: make([]Mixer, 0, limits.MaxMixers),
	}
}

// Limits returns the group limits.
func (g *Group) Limits() Limits {
	return g.limits
}

// Append adds m after the existing members.
func (g *Group) Append(m Mixer) error {
	if err := g.checkCapacity(1, m.OutputCount()); err != nil {
		return err
	}
	g.mixers = append(g.mixers, m)
	g.outputs += m.OutputCount()
	return nil
}

// AppendAll adds every mixer in ms or none of them.
func (g *Group) AppendAll(ms []Mixer) error {
	outputs := 0
	for i := range ms {
		outputs += ms[i].OutputCount()
	}
	if err := g.checkCapacity(len(ms), outputs); err != nil {
		return err
	}
	g.mixers = append(g.mixers, ms...)
	g.outputs += outputs
	return nil
}

func (g *Group) checkCapacity(mixers, outputs int) error {
	if len(g.mixers)+mixers > g.limits.MaxMixers {
		return capacityErrorf("group holds %d mixers, adding %d exceeds max %d",
			len(g.mixers), mixers, g.limits.MaxMixers)
	}
	if g.outputs+outputs > g.limits.MaxOutputs {
		return capacityErrorf("group has %d outputs, adding %d exceeds max %d",
			g.outputs, outputs, g.limits.MaxOutputs)
	}
	return nil
}

// Reset removes every mixer. Backing storage is kept for reuse.
func (g *Group) Reset() {
	clear(g.mixers)
	g.mixers = g.mixers[:0]
	g.outputs = 0
}

// Len returns the number of mixers.
func (g *Group) Len() int {
	return len(g.mixers)
}

// OutputCount returns the sum of all members' output counts.
func (g *Group) OutputCount() int {
	return g.outputs
}

// Mixers returns a copy of the members in addition order.
func (g *Group) Mixers() []Mixer {
	out := make([]Mixer, len(g.mixers))
	copy(out, g.mixers)
	return out
}

// Mix runs every member in order, writing its outputs into the next slots.
// It never writes past min(maxOutputs, len(outputs)); a member that does
// not fit stops the pass. Slots past Written are left for the caller.
func (g *Group) Mix(r Resolver, outputs []float32, maxOutputs int) MixResult {
	res := MixResult{Attempted: g.outputs}
	limit := maxOutputs
	if limit > len(outputs) {
		limit = len(outputs)
	}
	for i := range g.mixers {
		m := &g.mixers[i]
		n := m.OutputCount()
		if res.Written+n > limit {
			break
		}
		if !m.Mix(r, outputs[res.Written:res.Written+n]) {
			res.Failsafe += n
		}
		res.Written += n
	}
	return res
}
