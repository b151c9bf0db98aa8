// Package export renders a results matrix as CSV, a text table or a PDF.
package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/school-system/portal/internal/grading"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatText Format = "txt"
	FormatPDF  Format = "pdf"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatText, FormatPDF:
		return f, nil
	case "", "text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Filename is a download name for the matrix of title.
func (f Format) Filename(title string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		}
		return -1
	}, title)
	if name == "" {
		name = "results"
	}
	return name + "." + string(f)
}

// Write renders m in format f.
func Write(w io.Writer, f Format, title string, m *grading.Matrix) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, m)
	case FormatPDF:
		return WritePDF(w, title, m)
	default:
		return WriteText(w, title, m)
	}
}

func header(m *grading.Matrix) []string {
	h := []string{"Pos", "Adm No", "Name"}
	h = append(h, m.Subjects...)
	return append(h, "Total", "Mean", "Grade", "Points", "Overall")
}

// cell renders "<marks> <grade>", marking subjects left out of the points total.
func cell(c *grading.Cell) string {
	if c == nil {
		return "-"
	}
	s := formatMarks(c.Marks) + " " + c.Grade
	if c.Dropped {
		s += "*"
	}
	return s
}

func rows(m *grading.Matrix) [][]string {
	out := make([][]string, 0, len(m.Standings))
	for _, st := range m.Standings {
		row := []string{strconv.Itoa(st.Position), st.Student.AdmissionNumber, st.Student.FullName}
		for _, c := range st.Cells {
			row = append(row, cell(c))
		}
		row = append(row,
			formatMarks(st.TotalMarks),
			formatMarks(st.MeanMarks),
			st.MeanGrade,
			strconv.Itoa(st.TotalPoints),
			st.OverallGrade,
		)
		out = append(out, row)
	}
	return out
}

func averages(m *grading.Matrix) []string {
	row := []string{"", "", "Subject mean"}
	for _, a := range m.SubjectAverages {
		if a.Count == 0 {
			row = append(row, "-")
			continue
		}
		row = append(row, formatMarks(a.Average)+" "+a.Grade)
	}
	return append(row, "", "", "", "", "")
}

func formatMarks(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
