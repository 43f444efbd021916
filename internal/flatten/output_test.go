package flatten

import (
	"context"
	"database/sql"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestWriteAllFormats(t *testing.T) {
	res := mustFlatten(t, `[{"id": 1, "name": "a", "ok": true, "items": [{"sku": "s1"}, {"sku": "s2"}]}]`, Options{})
	dir := filepath.Join(t.TempDir(), "output")
	if err := Write(context.Background(), dir, res, AllFormats()); err != nil {
		t.Fatalf("write: %v", err)
	}

	fields, err := os.ReadFile(filepath.Join(dir, FieldsFile))
	if err != nil {
		t.Fatalf("read fields: %v", err)
	}
	if !strings.HasPrefix(string(fields), "table_name,field_name,field_type,field_title,count\n") {
		t.Fatalf("unexpected fields header: %s", fields)
	}
	if !strings.Contains(string(fields), "main,id,number,id,1\n") {
		t.Fatalf("expected id field row, got %s", fields)
	}

	tables, err := os.ReadFile(filepath.Join(dir, TablesFile))
	if err != nil {
		t.Fatalf("read tables: %v", err)
	}
	if string(tables) != "table_name,table_title\nmain,main\nitems,items\n" {
		t.Fatalf("unexpected tables.csv: %q", tables)
	}

	f, err := os.Open(filepath.Join(dir, CSVDir, "items.csv"))
	if err != nil {
		t.Fatalf("open items csv: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read items csv: %v", err)
	}
	if len(records) != 3 || strings.Join(records[0], ",") != "_link,_link_main,sku" || records[2][2] != "s2" {
		t.Fatalf("unexpected items csv %v", records)
	}

	xf, err := excelize.OpenFile(filepath.Join(dir, XLSXFile))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer xf.Close()
	if got := strings.Join(xf.GetSheetList(), ","); got != "main,items" {
		t.Fatalf("expected sheets main,items, got %s", got)
	}
	rows, err := xf.GetRows("items")
	if err != nil {
		t.Fatalf("get rows: %v", err)
	}
	if len(rows) != 3 || rows[1][2] != "s1" {
		t.Fatalf("unexpected xlsx rows %v", rows)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, SQLiteFile))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM "items"`).Scan(&count); err != nil {
		t.Fatalf("count items: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 sqlite rows, got %d", count)
	}
	var name string
	var id int
	if err := db.QueryRow(`SELECT "name", "id" FROM "main"`).Scan(&name, &id); err != nil {
		t.Fatalf("select main: %v", err)
	}
	if name != "a" || id != 1 {
		t.Fatalf("expected a/1, got %s/%d", name, id)
	}
}

func TestWriteCSVOnly(t *testing.T) {
	res := mustFlatten(t, `[{"a": 1}]`, Options{TablePrefix: "x_"})
	dir := t.TempDir()
	if err := Write(context.Background(), dir, res, Formats{CSV: true}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, CSVDir, "x_main.csv")); err != nil {
		t.Fatalf("expected prefixed csv file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, XLSXFile)); !os.IsNotExist(err) {
		t.Fatalf("expected no xlsx output, got %v", err)
	}
}

func TestSheetNameLimits(t *testing.T) {
	used := map[string]bool{}
	long := strings.Repeat("a", 40)
	first := sheetName(long, used)
	second := sheetName(long, used)
	if len(first) != maxSheetName || len(second) != maxSheetName || first == second {
		t.Fatalf("expected distinct 31 char names, got %q %q", first, second)
	}
	if got := sheetName("a/b:c", used); got != "a_b_c" {
		t.Fatalf("expected sanitised name, got %q", got)
	}
}
