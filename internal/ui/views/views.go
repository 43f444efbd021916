// Package views holds the html/template views rendered into the #app node.
package views

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"sort"
	"strings"
)

//go:embed templates/*.tmpl templates/shell.html
var files embed.FS

// View names.
const (
	Home     = "home"
	About    = "about"
	NotFound = "not-found"
)

var pageFiles = map[string]string{
	Home:     "templates/home.tmpl",
	About:    "templates/about.tmpl",
	NotFound: "templates/notfound.tmpl",
}

// RequiredComponents are the partials the layout and views reference.
var RequiredComponents = []string{"nav", "footer", "list-item-panel", "section-card", "preview-table"}

// Set is a parsed collection of views sharing one layout and component
// library.
type Set struct {
	pages map[string]*template.Template
}

func funcs() template.FuncMap {
	return template.FuncMap{
		"lower": strings.ToLower,
		"add":   func(a, b int) int { return a + b },
	}
}

// Load parses every view against the layout and the given components,
// keyed by component name.
func Load(components map[string]string) (*Set, error) {
	for _, name := range RequiredComponents {
		if _, ok := components[name]; !ok {
			return nil, fmt.Errorf("missing component %q", name)
		}
	}

	base, err := template.New("layout").Funcs(funcs()).ParseFS(files, "templates/layout.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := base.New(name).Parse(components[name]); err != nil {
			return nil, fmt.Errorf("parse component %s: %w", name, err)
		}
	}

	set := &Set{pages: make(map[string]*template.Template, len(pageFiles))}
	for view, file := range pageFiles {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone layout for %s: %w", view, err)
		}
		tmpl, err := clone.ParseFS(files, file)
		if err != nil {
			return nil, fmt.Errorf("parse %s templates: %w", view, err)
		}
		set.pages[view] = tmpl
	}
	return set, nil
}

// Has reports whether view exists.
func (s *Set) Has(view string) bool {
	_, ok := s.pages[view]
	return ok
}

// Render writes the layout for view to w.
func (s *Set) Render(w io.Writer, view string, data PageData) error {
	tmpl, ok := s.pages[view]
	if !ok {
		return fmt.Errorf("unknown view %q", view)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", view, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// Shell returns the default index.html used when no built page is
// available on disk.
func Shell() []byte {
	b, err := files.ReadFile("templates/shell.html")
	if err != nil {
		panic(err)
	}
	return b
}
