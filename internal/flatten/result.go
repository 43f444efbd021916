package flatten

import "fmt"

// Field types reported in fields.csv.
const (
	TypeText    = "text"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
)

// Field describes one column of a table.
type Field struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Title string `json:"title"`
	Count int    `json:"count"`
}

// Table is one flattened table. Rows hold one value per field, in field
// order; a missing value is the empty string.
type Table struct {
	Name   string     `json:"name"`
	Title  string     `json:"title"`
	Fields []Field    `json:"fields"`
	Rows   [][]string `json:"rows"`
}

// Result is the full output of a flatten run.
type Result struct {
	Tables []*Table `json:"tables"`
}

// Validate reports a result that breaks the table shape: a nil table or a
// row whose width differs from the table's field count.
func (r *Result) Validate() error {
	for n, t := range r.Tables {
		if t == nil {
			return fmt.Errorf("table %d is missing", n)
		}
		for i, row := range t.Rows {
			if len(row) != len(t.Fields) {
				return fmt.Errorf("table %q row %d has %d values for %d fields", t.Name, i, len(row), len(t.Fields))
			}
		}
	}
	return nil
}

// Table looks a table up by name.
func (r *Result) Table(name string) (*Table, bool) {
	for _, t := range r.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// FieldIndex returns the column index of name, or -1.
func (t *Table) FieldIndex(name string) int {
	for i, f := range t.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Value returns the cell for row i and field name.
func (t *Table) Value(i int, name string) string {
	col := t.FieldIndex(name)
	if col < 0 || i < 0 || i >= len(t.Rows) || col >= len(t.Rows[i]) {
		return ""
	}
	return t.Rows[i][col]
}
