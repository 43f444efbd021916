// Package router maps URL paths onto named views.
package router

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/gorilla/mux"
)

// Mode selects how paths are represented in the browser location.
type Mode string

const (
	// ModeHistory uses real paths (/about).
	ModeHistory Mode = "history"
	// ModeHash keeps the path in the fragment (/#/about).
	ModeHash Mode = "hash"
)

// Route names the view shown for a path.
type Route struct {
	Path string
	Name string
	View string
}

// Well-known route names.
const (
	HomeRoute     = "home"
	AboutRoute    = "about"
	NotFoundRoute = "not-found"
)

// ErrNotFound is returned when no route matches.
var ErrNotFound = errors.New("route not found")

// DefaultRoutes is the static route table of the application.
func DefaultRoutes() []Route {
	return []Route{
		{Path: "/", Name: HomeRoute, View: "home"},
		{Path: "/about", Name: AboutRoute, View: "about"},
	}
}

// Router resolves paths against a fixed table.
type Router struct {
	mode   Mode
	routes []Route
	byPath map[string]Route
}

// New constructs a Router. Routes are normalised; a duplicate path is an
// error.
func New(mode Mode, routes ...Route) (*Router, error) {
	if mode == "" {
		mode = ModeHistory
	}
	if mode != ModeHistory && mode != ModeHash {
		return nil, fmt.Errorf("unknown router mode %q", mode)
	}
	r := &Router{mode: mode, byPath: make(map[string]Route, len(routes))}
	for _, route := range routes {
		route.Path = normalise(route.Path)
		if _, exists := r.byPath[route.Path]; exists {
			return nil, fmt.Errorf("duplicate route %s", route.Path)
		}
		r.byPath[route.Path] = route
		r.routes = append(r.routes, route)
	}
	return r, nil
}

// Default builds the history-mode router over DefaultRoutes.
func Default() *Router {
	r, _ := New(ModeHistory, DefaultRoutes()...)
	return r
}

// Mode reports the router mode.
func (r *Router) Mode() Mode { return r.mode }

// Routes returns a copy of the route table.
func (r *Router) Routes() []Route {
	return append([]Route(nil), r.routes...)
}

// Resolve returns the route registered for location. In hash mode a
// leading "#" is accepted. Query strings are ignored.
func (r *Router) Resolve(location string) (Route, bool) {
	route, ok := r.byPath[r.pathOf(location)]
	return route, ok
}

// Lookup is Resolve returning ErrNotFound for unknown paths.
func (r *Router) Lookup(location string) (Route, error) {
	route, ok := r.Resolve(location)
	if !ok {
		return Route{}, fmt.Errorf("%w: %s", ErrNotFound, location)
	}
	return route, nil
}

// Href renders the link for a named route.
func (r *Router) Href(name string) string {
	for _, route := range r.routes {
		if route.Name != name {
			continue
		}
		if r.mode == ModeHash {
			return "/#" + route.Path
		}
		return route.Path
	}
	return "/"
}

// Attach registers every route on m. In hash mode the browser only ever
// requests "/", so only the root is registered.
func (r *Router) Attach(m *mux.Router, handlerFor func(Route) http.Handler) {
	for _, route := range r.routes {
		if r.mode == ModeHash && route.Path != "/" {
			continue
		}
		h := handlerFor(route)
		m.Handle(route.Path, h).Methods(http.MethodGet, http.MethodHead).Name(route.Name)
		if route.Path != "/" {
			m.Handle(route.Path+"/", h).Methods(http.MethodGet, http.MethodHead)
		}
	}
}

func (r *Router) pathOf(location string) string {
	if r.mode == ModeHash {
		if i := strings.Index(location, "#"); i >= 0 {
			location = location[i+1:]
		}
	}
	if i := strings.IndexAny(location, "?#"); i >= 0 {
		location = location[:i]
	}
	return normalise(location)
}

func normalise(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
