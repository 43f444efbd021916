package views

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/flatterer/web/internal/ui/store"
)

func stubComponents() map[string]string {
	return map[string]string{
		"nav":             `<nav>{{range .Nav}}<a href="{{.Href}}"{{if .Active}} class="active"{{end}}>{{.Label}}</a>{{end}}</nav>`,
		"footer":          `<footer>wasm={{.Capability.Wasm}}</footer>`,
		"list-item-panel": `<div class="panel{{if .Active}} active{{end}}" id="{{.ID}}">{{.Title}}</div>`,
		"section-card":    `<section id="section-{{.Name}}" data-open="{{.Open}}">{{.Message}}{{range .Tables}}{{template "preview-table" .}}{{end}}</section>`,
		"preview-table":   `<table data-name="{{.Name}}">{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}</table>`,
	}
}

func nav() []NavLink {
	return []NavLink{{Name: "home", Label: "Home", Href: "/"}, {Name: "about", Label: "About", Href: "/about"}}
}

func TestLoadRequiresComponents(t *testing.T) {
	components := stubComponents()
	delete(components, "nav")
	if _, err := Load(components); err == nil || !strings.Contains(err.Error(), "nav") {
		t.Fatalf("expected missing nav error, got %v", err)
	}
}

func TestRenderHomeMarksActivePanel(t *testing.T) {
	set, err := Load(stubComponents())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	st := store.DefaultState()
	st.ListItem = PanelURL
	var buf bytes.Buffer
	if err := set.Render(&buf, Home, NewPageData("home", "/", nav(), st)); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `class="panel active" id="url-input"`) {
		t.Fatalf("expected url-input active, got %s", out)
	}
	if !strings.Contains(out, `<a href="/" class="active">Home</a>`) {
		t.Fatalf("expected home nav active, got %s", out)
	}
	if !strings.Contains(out, `data-route="home"`) {
		t.Fatalf("expected route marker, got %s", out)
	}
}

func TestRenderAboutAndNotFound(t *testing.T) {
	set, err := Load(stubComponents())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	st := store.DefaultState()
	st.Wasm = store.FlagFalse

	var about bytes.Buffer
	if err := set.Render(&about, About, NewPageData("about", "/about", nav(), st)); err != nil {
		t.Fatalf("render about: %v", err)
	}
	if !strings.Contains(about.String(), "<h1>About</h1>") || !strings.Contains(about.String(), "disabled") {
		t.Fatalf("unexpected about output %s", about.String())
	}

	var missing bytes.Buffer
	if err := set.Render(&missing, NotFound, NewPageData("not-found", "/nope", nav(), st)); err != nil {
		t.Fatalf("render not found: %v", err)
	}
	if !strings.Contains(missing.String(), "<code>/nope</code>") {
		t.Fatalf("expected path in not found output, got %s", missing.String())
	}

	if err := set.Render(&bytes.Buffer{}, "settings", PageData{}); err == nil {
		t.Fatalf("expected unknown view error")
	}
}

func TestDecodePreview(t *testing.T) {
	raw := json.RawMessage(`{"id":"x","preview":[{"table_name":"main","fields":[
		{"table_name":"main","field_name":"id","field_title":"id","row 0":"1","row 1":"2"},
		{"table_name":"main","field_name":"name","field_title":"name","row 0":"a","row 1":"b"}
	]}]}`)
	tables, msg, err := DecodePreview(raw)
	if err != nil || msg != "" {
		t.Fatalf("unexpected error %v %q", err, msg)
	}
	if len(tables) != 1 || tables[0].Name != "main" {
		t.Fatalf("expected one main table, got %+v", tables)
	}
	if got := strings.Join(tables[0].Columns, ","); got != "id,name" {
		t.Fatalf("expected columns id,name, got %s", got)
	}
	if len(tables[0].Rows) != 2 || tables[0].Rows[1][1] != "b" {
		t.Fatalf("unexpected rows %+v", tables[0].Rows)
	}

	_, msg, err = DecodePreview(json.RawMessage(`{"error":"bad json","start":"{"}`))
	if err != nil || msg != "bad json" {
		t.Fatalf("expected error message, got %q %v", msg, err)
	}
	if _, _, err := DecodePreview(json.RawMessage(`[1`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestPreviewRendersIntoTablesSection(t *testing.T) {
	set, err := Load(stubComponents())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	st := store.DefaultState()
	st.Sections[store.SectionTables] = true
	st.PreviewData = json.RawMessage(`[{"table_name":"main","fields":[{"field_title":"id","row 0":"7"}]}]`)
	var buf bytes.Buffer
	if err := set.Render(&buf, Home, NewPageData("home", "/", nav(), st)); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), `<section id="section-tables" data-open="true"><table data-name="main"><tr><td>7</td></tr></table>`) {
		t.Fatalf("expected preview table, got %s", buf.String())
	}
}

func TestShellHasMountPoint(t *testing.T) {
	if !bytes.Contains(Shell(), []byte(`id="app"`)) {
		t.Fatalf("expected #app in shell")
	}
}
