package convert

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Output formats accepted by output_format.
const (
	FormatZip     = "zip"
	FormatCSV     = "csv"
	FormatXLSX    = "xlsx"
	FormatSQLite  = "sqlite"
	FormatFields  = "fields"
	FormatTables  = "tables"
	FormatPreview = "preview"
)

var formats = map[string]bool{
	FormatZip: true, FormatCSV: true, FormatXLSX: true, FormatSQLite: true,
	FormatFields: true, FormatTables: true, FormatPreview: true,
}

// Request is the parsed query of a convert call. PathSeparator is read
// from the path_seperator parameter.
type Request struct {
	ID             string
	OutputFormat   string
	FileURL        string
	ArrayKey       string
	JSONLines      bool
	MainTableName  string
	InlineOneToOne bool
	JSONSchema     string
	TablePrefix    string
	PathSeparator  string
	SchemaTitles   string
	FieldsOnly     bool
	TablesOnly     bool
	Pushdown       string
}

// ParseRequest reads a Request from query parameters.
func ParseRequest(q url.Values) (Request, error) {
	req := Request{
		ID:            strings.TrimSpace(q.Get("id")),
		OutputFormat:  q.Get("output_format"),
		FileURL:       strings.TrimSpace(q.Get("file_url")),
		ArrayKey:      q.Get("array_key"),
		MainTableName: q.Get("main_table_name"),
		JSONSchema:    q.Get("json_schema"),
		TablePrefix:   q.Get("table_prefix"),
		PathSeparator: q.Get("path_seperator"),
		SchemaTitles:  q.Get("schema_titles"),
		Pushdown:      q.Get("pushdown"),
	}
	if err := ApplyFlags(&req, q); err != nil {
		return Request{}, err
	}
	if req.OutputFormat == "" {
		req.OutputFormat = FormatZip
	}
	if !formats[req.OutputFormat] {
		return Request{}, fmt.Errorf("unknown output_format %q", req.OutputFormat)
	}
	if req.JSONSchema != "" || req.SchemaTitles != "" {
		return Request{}, fmt.Errorf("json_schema and schema_titles are not supported")
	}
	return req, nil
}

// ApplyFlags parses the boolean parameters present in values into req.
func ApplyFlags(req *Request, values url.Values) error {
	flags := []struct {
		name string
		dst  *bool
	}{
		{"json_lines", &req.JSONLines},
		{"inline_one_to_one", &req.InlineOneToOne},
		{"fields_only", &req.FieldsOnly},
		{"tables_only", &req.TablesOnly},
	}
	for _, f := range flags {
		raw := strings.TrimSpace(values.Get(f.name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %q", f.name, raw)
		}
		*f.dst = v
	}
	return nil
}

// ApplyForm copies the text options of an HTML form upload into req.
func ApplyForm(req *Request, values url.Values) error {
	if v := strings.TrimSpace(values.Get("array_key")); v != "" {
		req.ArrayKey = v
	}
	if v := strings.TrimSpace(values.Get("file_url")); v != "" {
		req.FileURL = v
	}
	return ApplyFlags(req, values)
}
