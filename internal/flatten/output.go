package flatten

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// Output file names inside an output directory.
const (
	FieldsFile = "fields.csv"
	TablesFile = "tables.csv"
	CSVDir     = "csv"
	XLSXFile   = "output.xlsx"
	SQLiteFile = "sqlite.db"
)

// Formats selects which outputs Write produces. fields.csv and tables.csv
// are always written.
type Formats struct {
	CSV    bool
	XLSX   bool
	SQLite bool
}

// AllFormats enables every output.
func AllFormats() Formats {
	return Formats{CSV: true, XLSX: true, SQLite: true}
}

// Write renders res into dir, creating it when missing.
func Write(ctx context.Context, dir string, res *Result, formats Formats) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := writeFile(filepath.Join(dir, FieldsFile), func(w io.Writer) error {
		return WriteFields(w, res)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, TablesFile), func(w io.Writer) error {
		return WriteTables(w, res)
	}); err != nil {
		return err
	}
	if formats.CSV {
		if err := WriteCSVDir(filepath.Join(dir, CSVDir), res); err != nil {
			return err
		}
	}
	if formats.XLSX {
		if err := WriteXLSX(filepath.Join(dir, XLSXFile), res); err != nil {
			return err
		}
	}
	if formats.SQLite {
		if err := WriteSQLite(ctx, filepath.Join(dir, SQLiteFile), res); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// WriteFields writes the fields.csv listing.
func WriteFields(w io.Writer, res *Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"table_name", "field_name", "field_type", "field_title", "count"}); err != nil {
		return err
	}
	for _, t := range res.Tables {
		for _, f := range t.Fields {
			if err := cw.Write([]string{t.Name, f.Name, f.Type, f.Title, strconv.Itoa(f.Count)}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTables writes the tables.csv listing.
func WriteTables(w io.Writer, res *Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"table_name", "table_title"}); err != nil {
		return err
	}
	for _, t := range res.Tables {
		if err := cw.Write([]string{t.Name, t.Title}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTableCSV writes one table with a header of field titles.
func WriteTableCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	header := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		header[i] = f.Title
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteCSVDir writes csv/<title>.csv for every table.
func WriteCSVDir(dir string, res *Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create csv dir: %w", err)
	}
	for _, t := range res.Tables {
		table := t
		if err := writeFile(filepath.Join(dir, table.Title+".csv"), func(w io.Writer) error {
			return WriteTableCSV(w, table)
		}); err != nil {
			return err
		}
	}
	return nil
}
