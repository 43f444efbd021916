// Package flatten turns nested JSON documents into flat, linked tables.
package flatten

import (
	"context"
	"io"
)

// Options control how a document is flattened.
type Options struct {
	MainTableName  string   `json:"main_table_name"`
	TablePrefix    string   `json:"table_prefix"`
	PathSeparator  string   `json:"path_separator"`
	InlineOneToOne bool     `json:"inline_one_to_one"`
	JSONStream     bool     `json:"json_stream"`
	Path           []string `json:"path,omitempty"`
	Preview        int      `json:"preview,omitempty"`
	Pushdown       []string `json:"pushdown,omitempty"`
	FieldsCSV      string   `json:"fields_csv,omitempty"`
	OnlyFields     bool     `json:"only_fields"`
	TablesCSV      string   `json:"tables_csv,omitempty"`
	OnlyTables     bool     `json:"only_tables"`
}

// DefaultOptions returns the options used when a caller sets nothing.
func DefaultOptions() Options {
	return Options{MainTableName: "main", PathSeparator: "_"}
}

func (o Options) withDefaults() Options {
	if o.MainTableName == "" {
		o.MainTableName = "main"
	}
	if o.PathSeparator == "" {
		o.PathSeparator = "_"
	}
	return o
}

// Flattener converts a JSON document into tables.
type Flattener interface {
	Flatten(ctx context.Context, r io.Reader, opts Options) (*Result, error)
}

// FlattenerFunc adapts a function to Flattener.
type FlattenerFunc func(ctx context.Context, r io.Reader, opts Options) (*Result, error)

func (f FlattenerFunc) Flatten(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	return f(ctx, r, opts)
}
