package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/lexcodex/attackmetrics/taxonomy"
)

// Delimiter separates CSV fields.
const Delimiter = ';'

// Header is the first record of every metrics file.
var Header = []string{"generation", "compound_id", "cyclomatic complexity", "cognitive complexity"}

// FileName returns the CSV file name for kind.
func FileName(kind taxonomy.Kind) string {
	return string(kind) + ".csv"
}

// EncodeCSV writes the header followed by one record per row.
func EncodeCSV(w io.Writer, rows []taxonomy.Row) error {
	cw := csv.NewWriter(w)
	cw.Comma = Delimiter
	cw.UseCRLF = true
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.Generation,
			row.CompoundID,
			row.Complexity,
			row.CognitiveComplexity,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %s/%s: %w", row.Generation, row.CompoundID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalCSV renders rows into a byte slice.
func MarshalCSV(rows []taxonomy.Row) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeCSV(&buf, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeCSV reads a metrics file back into rows.
func DecodeCSV(r io.Reader) ([]taxonomy.Row, error) {
	cr := csv.NewReader(r)
	cr.Comma = Delimiter
	cr.FieldsPerRecord = len(Header)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("missing header")
	}
	rows := make([]taxonomy.Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		if !taxonomy.IsDigits(rec[0]) {
			return nil, fmt.Errorf("record %d: generation %q is not a number", i+1, rec[0])
		}
		if !taxonomy.IsDigits(rec[1]) {
			return nil, fmt.Errorf("record %d: compound_id %q is not a number", i+1, rec[1])
		}
		rows = append(rows, taxonomy.Row{
			Generation:          rec[0],
			CompoundID:          rec[1],
			Complexity:          rec[2],
			CognitiveComplexity: rec[3],
		})
	}
	return rows, nil
}
