// Package dataset defines the in-memory tabular value that flows between
// analysis steps: ordered named columns over rows of string cells, with
// numeric access helpers. A dataset is immutable once produced by a step;
// engines build new datasets rather than mutating their input.
package dataset

import (
	"fmt"
	"math"
	"strconv"
)

// Dataset is a wide-format table: one row per entity, one named column per
// metric or attribute. Cells are stored as their text form; Float parses
// numeric cells on demand.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

// New creates an empty dataset with the given column order.
func New(columns ...string) *Dataset {
	return &Dataset{Columns: columns}
}

// ColumnIndex returns the index of a named column, or -1 if absent.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether a named column exists.
func (d *Dataset) HasColumn(name string) bool {
	return d.ColumnIndex(name) >= 0
}

// Shape returns (rows, columns).
func (d *Dataset) Shape() (int, int) {
	return len(d.Rows), len(d.Columns)
}

// Cell returns the raw text of a cell. Out-of-range access returns "".
func (d *Dataset) Cell(row, col int) string {
	if row < 0 || row >= len(d.Rows) || col < 0 || col >= len(d.Rows[row]) {
		return ""
	}
	return d.Rows[row][col]
}

// Value returns the raw text of a cell addressed by column name.
func (d *Dataset) Value(row int, column string) string {
	return d.Cell(row, d.ColumnIndex(column))
}

// Float parses a cell as a number. The second return is false when the
// cell is empty or not numeric.
func (d *Dataset) Float(row, col int) (float64, bool) {
	raw := d.Cell(row, col)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// AppendRow adds a row. The row must match the column count.
func (d *Dataset) AppendRow(row []string) error {
	if len(row) != len(d.Columns) {
		return fmt.Errorf("row has %d cells, dataset has %d columns", len(row), len(d.Columns))
	}
	d.Rows = append(d.Rows, row)
	return nil
}

// Select returns a new dataset with the same columns and only the rows at
// the given indices, in the given order. Shared cells are not copied; the
// result must be treated as immutable like its parent.
func (d *Dataset) Select(rows []int) *Dataset {
	out := &Dataset{Columns: append([]string(nil), d.Columns...)}
	out.Rows = make([][]string, 0, len(rows))
	for _, r := range rows {
		if r >= 0 && r < len(d.Rows) {
			out.Rows = append(out.Rows, d.Rows[r])
		}
	}
	return out
}

// Clone deep-copies the dataset, cells included.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{Columns: append([]string(nil), d.Columns...)}
	out.Rows = make([][]string, len(d.Rows))
	for i, row := range d.Rows {
		out.Rows[i] = append([]string(nil), row...)
	}
	return out
}

// FormatNumber renders a computed value as cell text. NaN — the defined
// division-by-zero sentinel — serializes as "NaN" and round-trips through
// Float via strconv.
func FormatNumber(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
