package export

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
	"github.com/school-system/portal/internal/grading"
)

const (
	pageWidth   = 277.0 // A4 landscape minus 10mm margins
	nameWidth   = 42.0
	posWidth    = 10.0
	admWidth    = 20.0
	summaryCols = 5
)

func WritePDF(w io.Writer, title string, m *grading.Matrix) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 8, title)
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 9)
	subtitle := fmt.Sprintf("Class: %s", m.ClassName)
	if m.SevenSubjects {
		subtitle += "    Points: best 7 subjects (* not counted)"
	}
	pdf.Cell(0, 5, subtitle)
	pdf.Ln(8)

	h := header(m)
	widths := columnWidths(len(m.Subjects))

	pdf.SetFont("Arial", "B", 7)
	pdf.SetFillColor(40, 145, 108)
	pdf.SetTextColor(255, 255, 255)
	for i, col := range h {
		pdf.CellFormat(widths[i], 7, col, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 7)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFillColor(245, 245, 245)
	for n, row := range rows(m) {
		fill := n%2 == 1
		for i, v := range row {
			align := "C"
			if i == 2 {
				align = "L"
			}
			pdf.CellFormat(widths[i], 6, v, "1", 0, align, fill, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.SetFont("Arial", "B", 7)
	for i, v := range averages(m) {
		pdf.CellFormat(widths[i], 6, v, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 8)
	for _, d := range m.MostImproved {
		pdf.Cell(0, 5, fmt.Sprintf("Most improved: %s (+%s)", d.FullName, formatMarks(d.Delta)))
		pdf.Ln(5)
	}
	for _, d := range m.MostDropped {
		pdf.Cell(0, 5, fmt.Sprintf("Most dropped: %s (%s)", d.FullName, formatMarks(d.Delta)))
		pdf.Ln(5)
	}

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}

func columnWidths(subjects int) []float64 {
	widths := []float64{posWidth, admWidth, nameWidth}
	rest := pageWidth - posWidth - admWidth - nameWidth
	each := rest / float64(subjects+summaryCols)
	for i := 0; i < subjects+summaryCols; i++ {
		widths = append(widths, each)
	}
	return widths
}
