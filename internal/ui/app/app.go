// Package app ties the store, router, component library and views into a
// mountable application.
package app

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/flatterer/web/internal/logging"
	"github.com/flatterer/web/internal/ui/router"
	"github.com/flatterer/web/internal/ui/store"
	"github.com/flatterer/web/internal/ui/views"
)

var (
	// ErrAlreadyMounted is returned by Mount on a mounted app.
	ErrAlreadyMounted = errors.New("app already mounted")
	// ErrNoMountTarget is returned when the target has no #app node.
	ErrNoMountTarget = errors.New("mount target not found")
)

// MountSelector is the only node an app mounts onto.
const MountSelector = "#app"

// Root describes the root component wrapping every view.
type Root struct {
	Title string
}

// DefaultRoot is the application root used by both binaries.
func DefaultRoot() Root {
	return Root{Title: "Flatterer"}
}

// Plugin extends an App when passed to Use.
type Plugin interface {
	Install(*App) error
}

// PluginFunc adapts a function to Plugin.
type PluginFunc func(*App) error

func (f PluginFunc) Install(a *App) error { return f(a) }

// Page is one rendered view.
type Page struct {
	Route  router.Route
	Status int
	HTML   string
	State  store.State
	Title  string
}

// Target is the node an app renders into.
type Target interface {
	Selector() string
	Path() string
	Render(Page) error
}

// App is one application instance.
type App struct {
	root Root

	mu          sync.Mutex
	store       *store.Store
	router      *router.Router
	components  map[string]string
	views       *views.Set
	mounted     bool
	unsubscribe func()
	logger      logging.Logger
}

// New constructs an App with a fresh store and the default router.
func New(root Root) *App {
	if root.Title == "" {
		root.Title = DefaultRoot().Title
	}
	return &App{
		root:       root,
		store:      store.New(),
		router:     router.Default(),
		components: make(map[string]string),
	}
}

// Use installs p. Installation errors are returned unchanged.
func (a *App) Use(p Plugin) error {
	if p == nil {
		return errors.New("nil plugin")
	}
	return p.Install(a)
}

// WithStore returns a plugin installing s as the app store.
func WithStore(s *store.Store) Plugin {
	return PluginFunc(func(a *App) error {
		if s == nil {
			return errors.New("nil store")
		}
		a.mu.Lock()
		defer a.mu.Unlock()
		a.store = s
		return nil
	})
}

// WithRouter returns a plugin installing r as the app router.
func WithRouter(r *router.Router) Plugin {
	return PluginFunc(func(a *App) error {
		if r == nil {
			return errors.New("nil router")
		}
		a.mu.Lock()
		defer a.mu.Unlock()
		a.router = r
		return nil
	})
}

// WithLogger returns a plugin that reports re-render failures of a
// mounted app to logger.
func WithLogger(logger logging.Logger) Plugin {
	return PluginFunc(func(a *App) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.logger = logger
		return nil
	})
}

// Component registers a named template partial. Registering a name again
// replaces the earlier text.
func (a *App) Component(name, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.components[name] = text
	a.views = nil
}

// Components returns the registered component names.
func (a *App) Components() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.components))
	for name := range a.components {
		names = append(names, name)
	}
	return names
}

// Store returns the installed store.
func (a *App) Store() *store.Store {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store
}

// Router returns the installed router.
func (a *App) Router() *router.Router {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.router
}

// Title returns the root title.
func (a *App) Title() string { return a.root.Title }

func (a *App) viewSet() (*views.Set, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.views != nil {
		return a.views, nil
	}
	set, err := views.Load(a.components)
	if err != nil {
		return nil, fmt.Errorf("load views: %w", err)
	}
	a.views = set
	return set, nil
}

func (a *App) navLinks(r *router.Router) []views.NavLink {
	links := make([]views.NavLink, 0, 2)
	for _, route := range r.Routes() {
		label := route.Name
		switch route.Name {
		case router.HomeRoute:
			label = "Home"
		case router.AboutRoute:
			label = "About"
		}
		links = append(links, views.NavLink{Name: route.Name, Label: label, Href: r.Href(route.Name)})
	}
	return links
}

// Render resolves path and renders the matching view. Unknown paths render
// the not-found view with status 404.
func (a *App) Render(path string) (Page, error) {
	set, err := a.viewSet()
	if err != nil {
		return Page{}, err
	}
	r := a.Router()
	st := a.Store().State()

	page := Page{Status: http.StatusOK, State: st, Title: a.root.Title}
	route, ok := r.Resolve(path)
	view := route.View
	if !ok || !set.Has(view) {
		route = router.Route{Path: path, Name: router.NotFoundRoute, View: views.NotFound}
		view = views.NotFound
		page.Status = http.StatusNotFound
	}
	page.Route = route

	var buf bytes.Buffer
	data := views.NewPageData(route.Name, path, a.navLinks(r), st)
	if err := set.Render(&buf, view, data); err != nil {
		return Page{}, err
	}
	page.HTML = buf.String()
	return page, nil
}

// RenderTo renders the target's path into it without mounting.
func (a *App) RenderTo(t Target) (Page, error) {
	if t.Selector() != MountSelector {
		return Page{}, fmt.Errorf("%w: %s", ErrNoMountTarget, t.Selector())
	}
	page, err := a.Render(t.Path())
	if err != nil {
		return Page{}, err
	}
	if err := t.Render(page); err != nil {
		return Page{}, fmt.Errorf("render into %s: %w", t.Selector(), err)
	}
	return page, nil
}

// Mount renders into t and re-renders on every store commit until
// Unmount. An app mounts at most once.
func (a *App) Mount(t Target) error {
	a.mu.Lock()
	if a.mounted {
		a.mu.Unlock()
		return ErrAlreadyMounted
	}
	a.mounted = true
	a.mu.Unlock()

	if _, err := a.RenderTo(t); err != nil {
		a.mu.Lock()
		a.mounted = false
		a.mu.Unlock()
		return err
	}

	unsubscribe := a.Store().Subscribe(func(m store.Mutation, _ store.State) {
		if _, err := a.RenderTo(t); err != nil {
			a.logf("re-render %s after %s: %v", t.Path(), m.Name(), err)
		}
	})
	a.mu.Lock()
	a.unsubscribe = unsubscribe
	a.mu.Unlock()
	return nil
}

// Mounted reports whether Mount succeeded.
func (a *App) Mounted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mounted
}

// Unmount stops re-rendering into the mounted target.
func (a *App) Unmount() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	a.mounted = false
	a.unsubscribe = nil
}

func (a *App) logf(format string, args ...any) {
	a.mu.Lock()
	logger := a.logger
	a.mu.Unlock()
	if logger != nil {
		logger.Printf(format, args...)
	}
}
