package mixer

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Format writes ms in the text protocol accepted by Parse. Scaler values are
// rounded to the nearest 1/ScaleUnit. A value that does not fit the
// protocol's 32-bit fields is an ErrConfig and nothing is written.
func Format(w io.Writer, ms []Mixer) error {
	var buf bytes.Buffer
	for i := range ms {
		m := &ms[i]
		switch m.Kind() {
		case KindNull:
			buf.WriteString("Z:\n")
		case KindSimple:
			s := m.simple
			out, err := unitFields(s.output)
			if err != nil {
				return fmt.Errorf("mixer %d output scaler: %w", i, err)
			}
			fmt.Fprintf(&buf, "M: %d\n", s.count)
			fmt.Fprintf(&buf, "O: %s\n", out)
			for j := 0; j < int(s.count); j++ {
				in := s.inputs[j]
				fields, err := unitFields(in.Scaler)
				if err != nil {
					return fmt.Errorf("mixer %d input %d: %w", i, j, err)
				}
				fmt.Fprintf(&buf, "S: %d %d %s\n", in.Control.Group, in.Control.Index, fields)
			}
		default:
			return fmt.Errorf("cannot format %s mixer", m.Kind())
		}
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func unitFields(s Scaler) (string, error) {
	vals := [...]float32{s.NegativeScale, s.PositiveScale, s.Offset, s.MinOutput, s.MaxOutput}
	fields := make([]string, len(vals))
	for i, f := range vals {
		u := math.Round(float64(f) * ScaleUnit)
		if u > math.MaxInt32 || u < math.MinInt32 {
			return "", configErrorf("scaler value %g does not fit the text protocol", f)
		}
		fields[i] = strconv.FormatInt(int64(u), 10)
	}
	return strings.Join(fields, " "), nil
}
