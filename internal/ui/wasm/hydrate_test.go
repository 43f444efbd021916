package wasm

import (
	"net/url"
	"testing"

	"github.com/flatterer/web/internal/ui/router"
	"github.com/flatterer/web/internal/ui/store"
)

func TestInitialState(t *testing.T) {
	st, err := InitialState(`{"sections": {"tables": true}, "listItem": "upload-input", "wasm": false, "preview_data": [1]}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Sections["tables"] || st.Sections["error"] {
		t.Fatalf("unexpected sections %v", st.Sections)
	}
	if _, ok := st.Sections["error"]; !ok {
		t.Fatalf("expected default error key kept")
	}
	if st.ListItem != "upload-input" || st.Wasm != store.FlagFalse || string(st.PreviewData) != "[1]" {
		t.Fatalf("unexpected state %+v", st)
	}

	st, err = InitialState("")
	if err != nil || st.ListItem != store.DefaultListItem || !st.Wasm.True() {
		t.Fatalf("expected defaults for empty snapshot, got %+v %v", st, err)
	}

	st, err = InitialState("{broken")
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if st.ListItem != store.DefaultListItem {
		t.Fatalf("expected defaults on error, got %+v", st)
	}
}

func TestFormMutation(t *testing.T) {
	m, ok := FormMutation(ActionSelect, url.Values{"item": {"url-input"}})
	if !ok || m != store.SetListItem("url-input") {
		t.Fatalf("expected setListItem, got %#v", m)
	}
	m, ok = FormMutation(ActionSection, url.Values{"name": {"error"}, "value": {"true"}})
	if !ok || m != (store.SetSection{Section: "error", Value: true}) {
		t.Fatalf("expected setSection, got %#v", m)
	}
	if _, ok := FormMutation(ActionSection, url.Values{"name": {"error"}, "value": {"maybe"}}); ok {
		t.Fatalf("expected invalid value rejected")
	}
	if _, ok := FormMutation(ActionConvert, url.Values{}); ok {
		t.Fatalf("expected convert left to the server")
	}
}

func TestInternalPath(t *testing.T) {
	history := router.Default()
	cases := []struct {
		href string
		path string
		ok   bool
	}{
		{"/about", "/about", true},
		{"about", "/about", true},
		{"http://localhost:8080/", "/", true},
		{"http://example.com/about", "", false},
		{"/api/convert", "", false},
	}
	for _, tc := range cases {
		path, ok := InternalPath(history, "http://localhost:8080/", tc.href)
		if ok != tc.ok || path != tc.path {
			t.Fatalf("%s: expected (%q, %v), got (%q, %v)", tc.href, tc.path, tc.ok, path, ok)
		}
	}

	hash, err := router.New(router.ModeHash, router.DefaultRoutes()...)
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	if path, ok := InternalPath(hash, "http://localhost:8080/", "/#/about"); !ok || path != "/#/about" {
		t.Fatalf("expected hash location, got (%q, %v)", path, ok)
	}
}
