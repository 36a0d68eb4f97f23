package cli

import (
	"fmt"
	"strings"

	"github.com/flight-control/mixerd/internal/mixer"
)

// MixerRow is one output of a mixer group as shown by check.
type MixerRow struct {
	Output int
	Kind   string
	Inputs string
	Offset string
	Range  string
}

// MixerRows describes ms, one row per output.
func MixerRows(ms []mixer.Mixer) []MixerRow {
	rows := make([]MixerRow, 0, len(ms))
	for i := range ms {
		m := &ms[i]
		row := MixerRow{Output: len(rows), Kind: m.Kind().String(), Inputs: "-", Offset: "-", Range: "0"}
		if s, ok := m.AsSimple(); ok {
			inputs := s.Inputs()
			refs := make([]string, len(inputs))
			for j, in := range inputs {
				refs[j] = fmt.Sprintf("%d.%d", in.Control.Group, in.Control.Index)
			}
			out := s.OutputScaler()
			row.Inputs = strings.Join(refs, " ")
			row.Offset = fmt.Sprintf("%+.4g", out.Offset)
			row.Range = fmt.Sprintf("[%.4g, %.4g]", out.MinOutput, out.MaxOutput)
		}
		rows = append(rows, row)
	}
	return rows
}

// RenderMixerTable renders rows with aligned columns. Missing values show
// as "-".
func RenderMixerTable(rows []MixerRow) string {
	if len(rows) == 0 {
		return ""
	}
	headers := []string{"Out", "Kind", "Inputs", "Offset", "Range"}
	cells := make([][]string, len(rows))
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for r, row := range rows {
		cells[r] = []string{fmt.Sprint(row.Output), row.Kind, row.Inputs, row.Offset, row.Range}
		for i, c := range cells[r] {
			widths[i] = max(widths[i], len(c))
		}
	}

	var sb strings.Builder
	for i, h := range headers {
		sb.WriteString(KeyStyle.Render(fmt.Sprintf("%-*s", widths[i], h)))
		if i < len(headers)-1 {
			sb.WriteString("  ")
		}
	}
	sb.WriteString("\n")
	for _, row := range cells {
		for i, c := range row {
			if i == 0 {
				sb.WriteString(fmt.Sprintf("%*s", widths[i], c))
			} else {
				sb.WriteString(fmt.Sprintf("%-*s", widths[i], c))
			}
			if i < len(row)-1 {
				sb.WriteString("  ")
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
