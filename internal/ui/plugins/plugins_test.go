package plugins

import (
	"encoding/json"
	"sort"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/flatterer/web/internal/ui/app"
	"github.com/flatterer/web/internal/ui/store"
	"github.com/flatterer/web/internal/ui/views"
)

func TestRegisterInstallsRequiredComponents(t *testing.T) {
	a := app.New(app.DefaultRoot())
	if err := Register(a); err != nil {
		t.Fatalf("register: %v", err)
	}
	got := a.Components()
	sort.Strings(got)
	for _, name := range views.RequiredComponents {
		i := sort.SearchStrings(got, name)
		if i >= len(got) || got[i] != name {
			t.Fatalf("expected component %q, got %v", name, got)
		}
	}
}

func TestHomeRendersWithComponentLibrary(t *testing.T) {
	a := app.New(app.DefaultRoot())
	if err := Register(a); err != nil {
		t.Fatalf("register: %v", err)
	}
	a.Store().Commit(store.SetSection{Section: store.SectionTables, Value: true})
	a.Store().Commit(store.SetPreviewData(json.RawMessage(`{"id":"1","preview":[{"table_name":"main","fields":[
		{"field_title":"id","row 0":"1"},{"field_title":"name","row 0":"Ann"}]}]}`)))

	page, err := a.Render("/")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Find("#json-input textarea[name=json]").Length() != 1 {
		t.Fatalf("expected json textarea in active panel")
	}
	if doc.Find("#url-input form.panel-input").Length() != 0 {
		t.Fatalf("expected inactive panels without input form")
	}
	if got := doc.Find(`.preview[data-table="main"] tbody td`).Last().Text(); got != "Ann" {
		t.Fatalf("expected preview cell Ann, got %q", got)
	}
	if doc.Find(".app-nav a.active").Text() != "Home" {
		t.Fatalf("expected Home nav active")
	}
}
