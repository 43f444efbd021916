package views

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/flatterer/web/internal/ui/store"
)

// NavLink is one entry in the navigation bar.
type NavLink struct {
	Name   string
	Label  string
	Href   string
	Active bool
}

// Panel is one of the input panels on the home view.
type Panel struct {
	ID     string
	Title  string
	Hint   string
	Active bool
}

// SectionCard is a collapsible block on the home view.
type SectionCard struct {
	Name    string
	Title   string
	Open    bool
	Message string
	Tables  []PreviewTable
}

// PreviewTable is a decoded preview of one output table.
type PreviewTable struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// Capability summarises detection results for display.
type Capability struct {
	Wasm   string
	Status string
	Error  string
}

// PageData is passed to every view.
type PageData struct {
	Route      string
	Path       string
	HomeHref   string
	Nav        []NavLink
	Panels     []Panel
	Sections   []SectionCard
	Capability Capability
	State      store.State
}

// Input panel identifiers, also used as listItem values.
const (
	PanelJSON   = "json-input"
	PanelURL    = "url-input"
	PanelUpload = "upload-input"
)

var panels = []Panel{
	{ID: PanelJSON, Title: "Paste JSON", Hint: "Paste a JSON array or object"},
	{ID: PanelURL, Title: "From URL", Hint: "Download JSON from a public URL"},
	{ID: PanelUpload, Title: "Upload file", Hint: "Upload a JSON file from your computer"},
}

// NewPageData derives the view model for route from the current state.
func NewPageData(route, path string, nav []NavLink, st store.State) PageData {
	data := PageData{
		Route:    route,
		Path:     path,
		HomeHref: "/",
		State:    st,
		Capability: Capability{
			Wasm:   wasmLabel(st.Wasm),
			Status: string(st.Module.Status),
			Error:  st.Module.Error,
		},
	}
	for _, link := range nav {
		link.Active = link.Name == route
		if link.Name == "home" {
			data.HomeHref = link.Href
		}
		data.Nav = append(data.Nav, link)
	}
	for _, p := range panels {
		p.Active = p.ID == st.ListItem
		data.Panels = append(data.Panels, p)
	}

	errCard := SectionCard{Name: store.SectionError, Title: "Error", Open: st.Section(store.SectionError)}
	tablesCard := SectionCard{Name: store.SectionTables, Title: "Tables", Open: st.Section(store.SectionTables)}
	if st.HasPreview() {
		tables, msg, err := DecodePreview(st.PreviewData)
		switch {
		case err != nil:
			errCard.Message = err.Error()
		case msg != "":
			errCard.Message = msg
		default:
			tablesCard.Tables = tables
		}
	}
	data.Sections = []SectionCard{errCard, tablesCard}
	return data
}

func wasmLabel(f store.Flag) string {
	switch f {
	case store.FlagTrue:
		return "enabled"
	case store.FlagFalse:
		return "disabled"
	default:
		return "unknown"
	}
}

type previewField map[string]json.RawMessage

type previewEntry struct {
	TableName string         `json:"table_name"`
	Fields    []previewField `json:"fields"`
}

type previewResponse struct {
	Preview []previewEntry `json:"preview"`
	Error   string         `json:"error"`
}

// DecodePreview reads preview data either as the bare preview list or as
// a convert response holding it. A response carrying an error returns the
// message instead of tables.
func DecodePreview(raw json.RawMessage) ([]PreviewTable, string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, "", nil
	}

	var entries []previewEntry
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, "", fmt.Errorf("decode preview: %w", err)
		}
	} else {
		var resp previewResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, "", fmt.Errorf("decode preview: %w", err)
		}
		if resp.Error != "" {
			return nil, resp.Error, nil
		}
		entries = resp.Preview
	}

	tables := make([]PreviewTable, 0, len(entries))
	for _, entry := range entries {
		tables = append(tables, entry.table())
	}
	return tables, "", nil
}

func (e previewEntry) table() PreviewTable {
	t := PreviewTable{Name: e.TableName}
	rowCount := 0
	for _, field := range e.Fields {
		t.Columns = append(t.Columns, field.text("field_title", field.text("field_name", "")))
		for key := range field {
			if n, ok := rowIndex(key); ok && n+1 > rowCount {
				rowCount = n + 1
			}
		}
	}
	for i := 0; i < rowCount; i++ {
		row := make([]string, len(e.Fields))
		key := "row " + strconv.Itoa(i)
		for col, field := range e.Fields {
			row[col] = field.text(key, "")
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func (f previewField) text(key, fallback string) string {
	raw, ok := f[key]
	if !ok {
		return fallback
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func rowIndex(key string) (int, bool) {
	rest, ok := strings.CutPrefix(key, "row ")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
