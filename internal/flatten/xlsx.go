package flatten

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

const maxSheetName = 31

// WriteXLSX writes one sheet per table to path.
func WriteXLSX(path string, res *Result) error {
	f := excelize.NewFile()
	defer f.Close()

	used := make(map[string]bool)
	for i, t := range res.Tables {
		name := sheetName(t.Title, used)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return fmt.Errorf("name sheet %s: %w", name, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
		if err := writeSheet(f, name, t); err != nil {
			return err
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save xlsx: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, t *Table) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("stream sheet %s: %w", sheet, err)
	}
	header := make([]interface{}, len(t.Fields))
	for i, field := range t.Fields {
		header[i] = field.Title
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header %s: %w", sheet, err)
	}
	for r, values := range t.Rows {
		cells := make([]interface{}, len(values))
		for c, v := range values {
			cells[c] = typedCell(t.Fields[c].Type, v)
		}
		axis, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(axis, cells); err != nil {
			return fmt.Errorf("write row %d of %s: %w", r, sheet, err)
		}
	}
	return sw.Flush()
}

func typedCell(typ, v string) interface{} {
	if v == "" {
		return nil
	}
	switch typ {
	case TypeNumber:
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	case TypeBoolean:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return v
}

var sheetReplacer = strings.NewReplacer(":", "_", "\\", "_", "/", "_", "?", "_", "*", "_", "[", "_", "]", "_")

func sheetName(title string, used map[string]bool) string {
	base := sheetReplacer.Replace(title)
	if base == "" {
		base = "table"
	}
	if r := []rune(base); len(r) > maxSheetName {
		base = string(r[:maxSheetName])
	}
	name := base
	for n := 1; used[strings.ToLower(name)]; n++ {
		suffix := "_" + strconv.Itoa(n)
		r := []rune(base)
		if len(r)+len(suffix) > maxSheetName {
			r = r[:maxSheetName-len(suffix)]
		}
		name = string(r) + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}
