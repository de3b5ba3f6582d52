package dataset

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Table is an ordered, in-memory tabular value. Every cell is a string; the
// processing core never interprets cell contents. Tables are the unit carried
// in task payloads and result blobs, so the wire encoding is part of the
// contract between orchestrator and workers.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

func New(columns []string) Table {
	return Table{Columns: append([]string(nil), columns...)}
}

func (t Table) NumRows() int {
	return len(t.Rows)
}

func (t Table) NumColumns() int {
	return len(t.Columns)
}

func (t Table) ColumnIndex(name string) int {
	for i, col := range t.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

func (t Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Cell returns the value at (row, column name), or "" if the column does not
// exist.
func (t Table) Cell(row int, column string) string {
	idx := t.ColumnIndex(column)
	if idx < 0 || row < 0 || row >= len(t.Rows) {
		return ""
	}
	return t.Rows[row][idx]
}

func (t *Table) SetCell(row int, column, value string) error {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return fmt.Errorf("table has no column %q", column)
	}
	if row < 0 || row >= len(t.Rows) {
		return fmt.Errorf("row %d out of range [0, %d)", row, len(t.Rows))
	}
	t.Rows[row][idx] = value
	return nil
}

// Clone returns a deep copy. Chunk processing mutates its copy, never the
// table it was sliced from.
func (t Table) Clone() Table {
	out := Table{Columns: append([]string(nil), t.Columns...)}
	out.Rows = make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		out.Rows[i] = append([]string(nil), row...)
	}
	return out
}

// EnsureColumn adds a column if absent. When added, cells are seeded from
// seedColumn, or left empty if seedColumn is "" or missing.
func (t *Table) EnsureColumn(name, seedColumn string) {
	if t.HasColumn(name) {
		return
	}
	seedIdx := -1
	if seedColumn != "" {
		seedIdx = t.ColumnIndex(seedColumn)
	}
	t.Columns = append(t.Columns, name)
	for i, row := range t.Rows {
		seed := ""
		if seedIdx >= 0 {
			seed = row[seedIdx]
		}
		t.Rows[i] = append(row, seed)
	}
}

// Slice returns the contiguous row range [start, end) as a new table sharing
// no row storage with the receiver.
func (t Table) Slice(start, end int) Table {
	out := Table{Columns: append([]string(nil), t.Columns...)}
	if start < 0 {
		start = 0
	}
	if end > len(t.Rows) {
		end = len(t.Rows)
	}
	for i := start; i < end; i++ {
		out.Rows = append(out.Rows, append([]string(nil), t.Rows[i]...))
	}
	return out
}

// Select returns a new table containing the given rows, in the given order.
func (t Table) Select(rows []int) Table {
	out := Table{Columns: append([]string(nil), t.Columns...)}
	for _, idx := range rows {
		if idx < 0 || idx >= len(t.Rows) {
			continue
		}
		out.Rows = append(out.Rows, append([]string(nil), t.Rows[idx]...))
	}
	return out
}

// SearchText concatenates a row's values for the named columns, used to build
// the per-row text handed to the row filter.
func (t Table) SearchText(row int, columns []string) string {
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		parts = append(parts, t.Cell(row, col))
	}
	return strings.Join(parts, " ")
}

// Record returns a row projected onto the given columns as a field map.
func (t Table) Record(row int, columns []string) map[string]string {
	record := make(map[string]string, len(columns))
	for _, col := range columns {
		record[col] = t.Cell(row, col)
	}
	return record
}

// Concat appends the rows of each table in order. Column layout follows the
// first non-empty table; rows from tables with a different column count are
// padded or truncated to fit.
func Concat(tables ...Table) Table {
	var out Table
	for _, t := range tables {
		if len(out.Columns) == 0 {
			out.Columns = append([]string(nil), t.Columns...)
		}
		for _, row := range t.Rows {
			r := append([]string(nil), row...)
			for len(r) < len(out.Columns) {
				r = append(r, "")
			}
			out.Rows = append(out.Rows, r[:len(out.Columns)])
		}
	}
	return out
}

// Marshal encodes the table into its wire form.
func (t Table) Marshal() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("error encoding table: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a table from its wire form.
func Unmarshal(data []byte) (Table, error) {
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("error decoding table: %w", err)
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return Table{}, fmt.Errorf("row %d has %d cells, expected %d", i, len(row), len(t.Columns))
		}
	}
	return t, nil
}
