package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
)

// ReadCSV parses CSV input into a table. The first record is the header.
func ReadCSV(r io.Reader) (Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return Table{}, fmt.Errorf("csv input is empty")
	}
	if err != nil {
		return Table{}, fmt.Errorf("error reading csv header: %w", err)
	}

	t := New(header)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("error reading csv record: %w", err)
		}
		row := make([]string, len(header))
		copy(row, record)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// WriteCSV writes the table as CSV with a header record.
func (t Table) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Columns); err != nil {
		return fmt.Errorf("error writing csv header: %w", err)
	}
	for _, row := range t.Rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("error writing csv record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
