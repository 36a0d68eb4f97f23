package mixer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ScaleUnit is the text protocol's fixed-point unit: 10000 means 1.0.
const ScaleUnit = 10000

// LoadPolicy selects what Load does with a malformed definition.
type LoadPolicy int

const (
	// PolicyAbort rejects the whole buffer and leaves the group unchanged.
	PolicyAbort LoadPolicy = iota
	// PolicySkip drops bad definitions, loads the rest and reports them.
	PolicySkip
)

func (p LoadPolicy) String() string {
	if p == PolicySkip {
		return "skip"
	}
	return "abort"
}

// ParsePolicy converts "abort" or "skip" into a LoadPolicy.
func ParsePolicy(s string) (LoadPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort":
		return PolicyAbort, nil
	case "skip":
		return PolicySkip, nil
	default:
		return PolicyAbort, fmt.Errorf("unknown load policy %q, must be abort or skip", s)
	}
}

// LoadReport summarises a load.
type LoadReport struct {
	Loaded  int
	Skipped int
	Errors  []error
}

// Load parses buf and appends every mixer to g under PolicyAbort. On error
// g is left exactly as it was. An empty buffer loads nothing.
func Load(buf []byte, g *Group) (int, error) {
	rep, err := LoadWith(buf, g, PolicyAbort)
	return rep.Loaded, err
}

// LoadWith parses buf under policy and appends the result to g. A capacity
// overflow aborts under either policy.
func LoadWith(buf []byte, g *Group, policy LoadPolicy) (LoadReport, error) {
	ms, rep, err := ParseWith(buf, policy)
	if err != nil {
		return rep, err
	}
	if err := g.AppendAll(ms); err != nil {
		return rep, err
	}
	rep.Loaded = len(ms)
	return rep, nil
}

// ParseWith decodes buf under policy without touching a group. Under
// PolicySkip bad definitions are dropped and counted in the report; Loaded
// is left for the caller to set once the mixers are appended.
func ParseWith(buf []byte, policy LoadPolicy) ([]Mixer, LoadReport, error) {
	var rep LoadReport
	if policy == PolicyAbort {
		ms, err := Parse(buf)
		return ms, rep, err
	}
	var ms []Mixer
	p := &parser{r: lineReader{buf: buf}}
	for {
		m, err := p.definition()
		if err == errEOF {
			return ms, rep, nil
		}
		if err != nil {
			rep.Skipped++
			rep.Errors = append(rep.Errors, err)
			p.resync()
			continue
		}
		ms = append(ms, m)
	}
}

// Parse decodes every definition in buf without touching a group.
func Parse(buf []byte) ([]Mixer, error) {
	p := &parser{r: lineReader{buf: buf}}
	var ms []Mixer
	for {
		m, err := p.definition()
		if err == errEOF {
			return ms, nil
		}
		if err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}
}

var errEOF = errors.New("end of buffer")

type tagLine struct {
	tag    byte
	fields []string
	line   int
}

// lineReader walks buf one line at a time and yields only tag lines
// ("X: ..."). The cursor never moves past len(buf).
type lineReader struct {
	buf    []byte
	pos    int
	line   int
	peeked *tagLine
}

func (r *lineReader) next() (tagLine, bool) {
	if r.peeked != nil {
		t := *r.peeked
		r.peeked = nil
		return t, true
	}
	for r.pos < len(r.buf) {
		start := r.pos
		end := start
		for end < len(r.buf) && r.buf[end] != '\n' {
			end++
		}
		r.pos = end
		if r.pos < len(r.buf) {
			r.pos++ // newline
		}
		r.line++
		text := strings.TrimLeft(strings.TrimRight(string(r.buf[start:end]), "\r"), " \t")
		if len(text) < 2 || text[0] < 'A' || text[0] > 'Z' || text[1] != ':' {
			continue
		}
		return tagLine{tag: text[0], fields: strings.Fields(text[2:]), line: r.line}, true
	}
	return tagLine{}, false
}

func (r *lineReader) peek() (tagLine, bool) {
	if r.peeked != nil {
		return *r.peeked, true
	}
	t, ok := r.next()
	if ok {
		r.peeked = &t
	}
	return t, ok
}

type parser struct {
	r lineReader
}

// definition parses the next mixer. It returns errEOF when no tag lines
// remain.
func (p *parser) definition() (Mixer, error) {
	t, ok := p.r.next()
	if !ok {
		return Mixer{}, errEOF
	}
	switch t.tag {
	case 'Z':
		if len(t.fields) != 0 {
			return Mixer{}, &ParseError{Line: t.line, Msg: "null mixer takes no fields"}
		}
		return Null(), nil
	case 'M':
		return p.simple(t)
	default:
		return Mixer{}, &ParseError{Line: t.line, Msg: fmt.Sprintf("unexpected %q line, want a mixer definition", string(t.tag))}
	}
}

func (p *parser) simple(head tagLine) (Mixer, error) {
	if len(head.fields) != 1 {
		return Mixer{}, &ParseError{Line: head.line, Msg: "M: takes exactly one field"}
	}
	count, err := strconv.Atoi(head.fields[0])
	if err != nil {
		return Mixer{}, &ParseError{Line: head.line, Msg: fmt.Sprintf("bad control count %q", head.fields[0])}
	}
	if count < 1 || count > MaxSimpleInputs {
		return Mixer{}, &LineError{Line: head.line, Err: configErrorf("control count %d outside 1..%d", count, MaxSimpleInputs)}
	}

	o, err := p.expect('O', head.line)
	if err != nil {
		return Mixer{}, err
	}
	vals, err := ints(o, 5)
	if err != nil {
		return Mixer{}, err
	}
	output := scalerFromUnits(vals)

	inputs := make([]Input, 0, count)
	for i := 0; i < count; i++ {
		s, err := p.expect('S', head.line)
		if err != nil {
			return Mixer{}, err
		}
		vals, err := ints(s, 7)
		if err != nil {
			return Mixer{}, err
		}
		if vals[0] < 0 || vals[0] > 255 || vals[1] < 0 || vals[1] > 255 {
			return Mixer{}, &ParseError{Line: s.line, Msg: "control group and index must be 0..255"}
		}
		inputs = append(inputs, Input{
			Control: ControlRef{Group: uint8(vals[0]), Index: uint8(vals[1])},
			Scaler:  scalerFromUnits(vals[2:]),
		})
	}

	sm, err := NewSimple(inputs, output)
	if err != nil {
		return Mixer{}, &LineError{Line: head.line, Err: err}
	}
	return Simple(sm), nil
}

func (p *parser) expect(tag byte, defLine int) (tagLine, error) {
	t, ok := p.r.peek()
	if !ok {
		return tagLine{}, &ParseError{Line: defLine, Msg: fmt.Sprintf("definition truncated, missing %c: line", tag)}
	}
	if t.tag != tag {
		return tagLine{}, &ParseError{Line: t.line, Msg: fmt.Sprintf("got %c: line, want %c:", t.tag, tag)}
	}
	p.r.next()
	return t, nil
}

// resync drops the remaining body lines of a rejected definition.
func (p *parser) resync() {
	for {
		t, ok := p.r.peek()
		if !ok || (t.tag != 'O' && t.tag != 'S') {
			return
		}
		p.r.next()
	}
}

func ints(t tagLine, n int) ([]int64, error) {
	if len(t.fields) != n {
		return nil, &ParseError{Line: t.line, Msg: fmt.Sprintf("%c: needs %d fields, got %d", t.tag, n, len(t.fields))}
	}
	out := make([]int64, n)
	for i, f := range t.fields {
		v, err := strconv.ParseInt(f, 10, 32)
		if err != nil {
			return nil, &ParseError{Line: t.line, Msg: fmt.Sprintf("field %d: bad integer %q", i+1, f)}
		}
		out[i] = v
	}
	return out, nil
}

func scalerFromUnits(v []int64) Scaler {
	u := func(x int64) float32 { return float32(x) / ScaleUnit }
	return Scaler{
		NegativeScale: u(v[0]),
		PositiveScale: u(v[1]),
		Offset:        u(v[2]),
		MinOutput:     u(v[3]),
		MaxOutput:     u(v[4]),
	}
}
