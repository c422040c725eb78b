package types

import (
	"strings"
)

// The flat columns and rows that comprise one query result. Column order is the
// order the query-execution collaborator read them in and row values are
// parallel to Columns.
type TabularResult struct {
	// The columns of the result, in read order.
	Columns []Column

	// The rows in the result. Each row holds one raw value per column.
	Rows [][]any

	// Optional name of the table the result was read from.
	TableName string
}

// Information about one column of a tabular result.
type Column struct {

	// The name of the column. Matching against model properties is case-insensitive.
	//
	// This member is required.
	Name string

	// The semantic type tag of the column, e.g. integer, varchar, timestamp.
	Type string
}

// NewTabularResult builds a result from parallel column names and types.
// Missing types are left empty.
func NewTabularResult(names []string, columnTypes []string, rows ...[]any) TabularResult {
	cols := make([]Column, len(names))
	for i, name := range names {
		cols[i].Name = name
		if i < len(columnTypes) {
			cols[i].Type = columnTypes[i]
		}
	}
	if rows == nil {
		rows = make([][]any, 0)
	}
	return TabularResult{Columns: cols, Rows: rows}
}

// ColumnNames returns the column names in read order.
func (r TabularResult) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the ordinal of the first column matching name
// case-insensitively, or -1.
func (r TabularResult) ColumnIndex(name string) int {
	for i, c := range r.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// Signature returns a stable string for the ordered (name, type) pairs of the result.
func (r TabularResult) Signature() string {
	if len(r.Columns) == 0 {
		return ""
	}
	const sep = "\x1f"
	var b strings.Builder
	for i, c := range r.Columns {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(c.Name)
		b.WriteByte(':')
		b.WriteString(c.Type)
	}
	return b.String()
}
