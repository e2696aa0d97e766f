// Package csvsource is a tabular initial-conditions source: it implements
// the injected row -> (S,I,R) mapping that the distribution stage
// requires from a coordinator-supplied source. It sits outside the core
// simulation packages, but the CLI needs a concrete implementation to be
// runnable end to end.
package csvsource

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Source reads a CSV file of per-cell rows and derives (S,I,R) from the
// first three numeric columns of each row. Row 0 (after an optional
// header) is cell id 0, row 1 is cell id 1, and so on: rows are
// numbered by cell id.
type Source struct {
	rows [][3]float64
}

// Load reads path as CSV. If the first row's first cell doesn't parse as
// a float, it is treated as a header and skipped.
func Load(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csvsource: opening %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads CSV rows from r. Exported separately from Load so tests
// and other callers can feed an in-memory reader.
func Parse(r io.Reader) (*Source, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csvsource: reading CSV: %w", err)
	}
	if len(records) == 0 {
		return &Source{}, nil
	}
	if _, err := strconv.ParseFloat(records[0][0], 64); err != nil {
		records = records[1:] // header row, skip
	}

	rows := make([][3]float64, 0, len(records))
	for i, rec := range records {
		if len(rec) < 3 {
			return nil, fmt.Errorf("csvsource: row %d has %d columns, need at least 3", i, len(rec))
		}
		var triple [3]float64
		for j := 0; j < 3; j++ {
			v, err := strconv.ParseFloat(rec[j], 64)
			if err != nil {
				return nil, fmt.Errorf("csvsource: row %d column %d: %w", i, j, err)
			}
			triple[j] = v
		}
		rows = append(rows, triple)
	}
	return &Source{rows: rows}, nil
}

// RowCount implements distribute.InitialConditionSource.
func (s *Source) RowCount() int { return len(s.rows) }

// Row implements distribute.InitialConditionSource: the mapping is the
// identity — column 0 is S, column 1 is I, column 2 is R.
func (s *Source) Row(id int) (sVal, iVal, rVal float64, err error) {
	if id < 0 || id >= len(s.rows) {
		return 0, 0, 0, fmt.Errorf("csvsource: row %d out of range [0,%d)", id, len(s.rows))
	}
	row := s.rows[id]
	return row[0], row[1], row[2], nil
}
