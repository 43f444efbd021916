package flatten

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

type fieldOverride struct {
	table, name, typ, title string
}

type tableOverride struct {
	name, title string
}

func readCSVRecords(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	var out []map[string]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		m := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				m[h] = rec[i]
			}
		}
		out = append(out, m)
	}
}

func readFieldOverrides(path string) ([]fieldOverride, error) {
	recs, err := readCSVRecords(path)
	if err != nil {
		return nil, fmt.Errorf("read fields file: %w", err)
	}
	out := make([]fieldOverride, 0, len(recs))
	for _, rec := range recs {
		if rec["table_name"] == "" || rec["field_name"] == "" {
			return nil, errors.New("fields file needs table_name and field_name columns")
		}
		out = append(out, fieldOverride{
			table: rec["table_name"],
			name:  rec["field_name"],
			typ:   rec["field_type"],
			title: rec["field_title"],
		})
	}
	return out, nil
}

func readTableOverrides(path string) ([]tableOverride, error) {
	recs, err := readCSVRecords(path)
	if err != nil {
		return nil, fmt.Errorf("read tables file: %w", err)
	}
	out := make([]tableOverride, 0, len(recs))
	for _, rec := range recs {
		if rec["table_name"] == "" {
			return nil, errors.New("tables file needs a table_name column")
		}
		out = append(out, tableOverride{name: rec["table_name"], title: rec["table_title"]})
	}
	return out, nil
}

// applyOverrides applies fields.csv and tables.csv customisations: titles,
// field order and, with the only flags, filtering.
func applyOverrides(res *Result, opts Options) error {
	if opts.FieldsCSV != "" {
		overrides, err := readFieldOverrides(opts.FieldsCSV)
		if err != nil {
			return err
		}
		byTable := make(map[string][]fieldOverride)
		for _, o := range overrides {
			byTable[o.table] = append(byTable[o.table], o)
		}
		for _, t := range res.Tables {
			reorderFields(t, byTable[t.Name], opts.OnlyFields)
		}
	}

	if opts.TablesCSV != "" {
		overrides, err := readTableOverrides(opts.TablesCSV)
		if err != nil {
			return err
		}
		titles := make(map[string]string, len(overrides))
		for _, o := range overrides {
			titles[o.name] = o.title
		}
		kept := res.Tables[:0]
		for _, t := range res.Tables {
			title, ok := titles[t.Name]
			if !ok && opts.OnlyTables {
				continue
			}
			if title != "" {
				t.Title = title
			}
			kept = append(kept, t)
		}
		res.Tables = kept
	}
	return nil
}

func reorderFields(t *Table, overrides []fieldOverride, only bool) {
	if len(overrides) == 0 && !only {
		return
	}
	var order []int
	used := make(map[int]bool)
	for _, o := range overrides {
		idx := t.FieldIndex(o.name)
		if idx < 0 || used[idx] {
			continue
		}
		used[idx] = true
		order = append(order, idx)
		if o.title != "" {
			t.Fields[idx].Title = o.title
		}
		if o.typ != "" {
			t.Fields[idx].Type = o.typ
		}
	}
	if !only {
		for i := range t.Fields {
			if !used[i] {
				order = append(order, i)
			}
		}
	}

	fields := make([]Field, len(order))
	for i, idx := range order {
		fields[i] = t.Fields[idx]
	}
	for r, values := range t.Rows {
		next := make([]string, len(order))
		for i, idx := range order {
			next[i] = values[idx]
		}
		t.Rows[r] = next
	}
	t.Fields = fields
}
