package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
)

// ReadCSV parses a dataset from CSV. The first record is the header; cell
// text is preserved verbatim so a write/read cycle is lossless.
func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	ds := &Dataset{Columns: header}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("csv row has %d cells, header has %d columns", len(record), len(header))
		}
		ds.Rows = append(ds.Rows, record)
	}
	return ds, nil
}

// WriteCSV serializes the dataset as CSV, header first, preserving column
// order and cell text.
func (d *Dataset) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(d.Columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for i, row := range d.Rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
