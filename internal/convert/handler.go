package convert

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/flatterer/web/internal/flatten"
)

// ServeHTTP handles GET, POST and PUT /api/convert.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := ParseRequest(r.URL.Query())
	if err != nil {
		writeError(w, &Error{Err: err})
		return
	}

	conv, err := s.Convert(w, r, req)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.Respond(w, r, conv); err != nil {
		s.logf("convert %s: respond %s: %v", conv.ID, req.OutputFormat, err)
	}
}

// Convert resolves the workspace for req (existing id or new upload) and
// runs the flattener over it.
func (s *Service) Convert(w http.ResponseWriter, r *http.Request, req Request) (*Conversion, error) {
	ctx := r.Context()
	var ws *Workspace
	if req.ID != "" {
		existing, err := s.Workspace(req.ID)
		if err != nil {
			return nil, &Error{Err: err}
		}
		ws = existing
	} else {
		up, err := s.Receive(ctx, w, r, req)
		if err != nil {
			if up != nil && up.Workspace != nil {
				_ = os.RemoveAll(up.Workspace.Dir)
			}
			return nil, &Error{Err: err}
		}
		if err := ApplyForm(&req, up.Values); err != nil {
			return nil, &Error{Err: err}
		}
		ws = up.Workspace
	}
	s.logf("convert %s: output_format=%s", ws.ID, req.OutputFormat)
	return s.Run(ctx, ws, req)
}

func writeError(w http.ResponseWriter, err error) {
	var convErr *Error
	if !errors.As(err, &convErr) {
		convErr = &Error{Err: err}
	}
	writeJSON(w, http.StatusBadRequest, convErr.Body())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// PreviewResponse is the JSON document returned for output_format=preview.
type PreviewResponse struct {
	ID        string         `json:"id"`
	Preview   []PreviewTable `json:"preview"`
	Start     string         `json:"start"`
	GuessText string         `json:"guess_text"`
}

// PreviewTable lists the fields of one table; each field carries its first
// rows under "row N" keys.
type PreviewTable struct {
	TableName string              `json:"table_name"`
	Fields    []map[string]string `json:"fields"`
}

// Preview builds the preview document for conv.
func Preview(conv *Conversion) PreviewResponse {
	resp := PreviewResponse{ID: conv.ID, Start: conv.Start, GuessText: conv.GuessText, Preview: []PreviewTable{}}
	for _, t := range conv.Result.Tables {
		pt := PreviewTable{TableName: t.Title}
		for col, f := range t.Fields {
			field := map[string]string{
				"table_name":  t.Name,
				"field_name":  f.Name,
				"field_type":  f.Type,
				"field_title": f.Title,
				"count":       strconv.Itoa(f.Count),
			}
			for i, row := range t.Rows {
				if col < len(row) {
					field["row "+strconv.Itoa(i)] = row[col]
				}
			}
			pt.Fields = append(pt.Fields, field)
		}
		resp.Preview = append(resp.Preview, pt)
	}
	return resp
}

// Respond writes conv in its requested output format.
func (s *Service) Respond(w http.ResponseWriter, r *http.Request, conv *Conversion) error {
	format := conv.Request.OutputFormat
	switch format {
	case FormatPreview:
		writeJSON(w, http.StatusOK, Preview(conv))
		return nil
	case FormatFields:
		setDownload(w, "text/csv", flatten.FieldsFile)
		return flatten.WriteFields(w, conv.Result)
	case FormatTables:
		setDownload(w, "text/csv", flatten.TablesFile)
		return flatten.WriteTables(w, conv.Result)
	case FormatCSV:
		main, ok := conv.Result.Table(conv.Options.MainTableName)
		if !ok {
			writeError(w, &Error{ID: conv.ID, Start: conv.Start, Err: errors.New("main table is empty")})
			return nil
		}
		setDownload(w, "text/csv", "flatterer-output.csv")
		return flatten.WriteTableCSV(w, main)
	}

	outDir, err := os.MkdirTemp(conv.Workspace.Dir, "output-")
	if err != nil {
		writeError(w, &Error{ID: conv.ID, Start: conv.Start, Err: err})
		return err
	}
	defer os.RemoveAll(outDir)

	var formats flatten.Formats
	switch format {
	case FormatXLSX:
		formats.XLSX = true
	case FormatSQLite:
		formats.SQLite = true
	default:
		formats = flatten.AllFormats()
	}
	if err := flatten.Write(r.Context(), outDir, conv.Result, formats); err != nil {
		writeError(w, &Error{ID: conv.ID, Start: conv.Start, Err: err})
		return err
	}

	switch format {
	case FormatXLSX:
		setDownload(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "flatterer-output.xlsx")
		return copyFile(w, filepath.Join(outDir, flatten.XLSXFile))
	case FormatSQLite:
		setDownload(w, "application/x-sqlite3", "flatterer.db")
		return copyFile(w, filepath.Join(outDir, flatten.SQLiteFile))
	default:
		setDownload(w, "application/zip", "flatterer-download.zip")
		return zipDir(w, outDir)
	}
}

func setDownload(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// zipDir streams every file under dir into a zip archive, using paths
// relative to dir.
func zipDir(w io.Writer, dir string) error {
	zw := zip.NewWriter(w)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			_, err := zw.Create(rel + "/")
			return err
		}
		dst, err := zw.Create(rel)
		if err != nil {
			return err
		}
		return copyFile(dst, path)
	})
	if err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}
