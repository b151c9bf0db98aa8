package export

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/school-system/portal/internal/grading"
)

func WriteText(w io.Writer, title string, m *grading.Matrix) error {
	if title != "" {
		if _, err := fmt.Fprintf(w, "%s\n", title); err != nil {
			return err
		}
	}

	h := header(m)
	align := make([]tw.Align, len(h))
	for i := range align {
		align[i] = tw.AlignRight
	}
	align[1], align[2] = tw.AlignLeft, tw.AlignLeft

	table := tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{PerColumn: align},
		},
	}))
	table.Header(toAny(h)...)
	for _, row := range rows(m) {
		if err := table.Append(toAny(row)...); err != nil {
			return err
		}
	}
	table.Footer(toAny(averages(m))...)
	if err := table.Render(); err != nil {
		return err
	}

	if m.SevenSubjects {
		if _, err := fmt.Fprintln(w, "* not counted in the 7-subject points total"); err != nil {
			return err
		}
	}
	return writeMovers(w, m)
}

func writeMovers(w io.Writer, m *grading.Matrix) error {
	for _, d := range m.MostImproved {
		if _, err := fmt.Fprintf(w, "Most improved: %s (+%s)\n", d.FullName, formatMarks(d.Delta)); err != nil {
			return err
		}
	}
	for _, d := range m.MostDropped {
		if _, err := fmt.Fprintf(w, "Most dropped: %s (%s)\n", d.FullName, formatMarks(d.Delta)); err != nil {
			return err
		}
	}
	if s := m.MostImprovedSubject; s != nil {
		if _, err := fmt.Fprintf(w, "Most improved subject: %s (%s)\n", s.Label, formatMarks(s.TotalDelta)); err != nil {
			return err
		}
	}
	if s := m.NeedsAttention; s != nil {
		if _, err := fmt.Fprintf(w, "Needs attention: %s (%s)\n", s.Label, formatMarks(s.TotalDelta)); err != nil {
			return err
		}
	}
	return nil
}

func toAny(row []string) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}
