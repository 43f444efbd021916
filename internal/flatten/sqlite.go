package flatten

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

// WriteSQLite writes every table into a fresh SQLite database at path.
func WriteSQLite(ctx context.Context, path string, res *Result) error {
	cleanPath := filepath.Clean(path)
	if err := os.Remove(cleanPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove old sqlite db: %w", err)
	}
	db, err := sql.Open("sqlite", cleanPath)
	if err != nil {
		return fmt.Errorf("open sqlite db: %w", err)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sqlite tx: %w", err)
	}
	defer tx.Rollback()

	for _, t := range res.Tables {
		if err := writeSQLiteTable(ctx, tx, t); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sqlite tx: %w", err)
	}
	return nil
}

func writeSQLiteTable(ctx context.Context, tx *sql.Tx, t *Table) error {
	cols := make([]string, len(t.Fields))
	marks := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		cols[i] = quoteIdent(f.Title) + " " + sqliteType(f.Type)
		marks[i] = "?"
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(t.Title), strings.Join(cols, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create table %s: %w", t.Title, err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(t.Title), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", t.Title, err)
	}
	defer stmt.Close()

	args := make([]any, len(t.Fields))
	for _, values := range t.Rows {
		for i, v := range values {
			args[i] = sqliteValue(t.Fields[i].Type, v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert into %s: %w", t.Title, err)
		}
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sqliteType(typ string) string {
	switch typ {
	case TypeNumber:
		return "NUMERIC"
	case TypeBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func sqliteValue(typ, v string) any {
	if v == "" {
		return nil
	}
	switch typ {
	case TypeNumber:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	case TypeBoolean:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return v
}
