package export

import (
	"encoding/csv"
	"io"

	"github.com/school-system/portal/internal/grading"
)

func WriteCSV(w io.Writer, m *grading.Matrix) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header(m)); err != nil {
		return err
	}
	if err := cw.WriteAll(rows(m)); err != nil {
		return err
	}
	if err := cw.Write(averages(m)); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
