// Package capability fetches the wasm.json descriptor and conditionally
// loads the flattening module.
package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"

	"github.com/flatterer/web/internal/logging"
	"github.com/flatterer/web/internal/ui/store"
)

// DescriptorName is the file fetched relative to the page.
const DescriptorName = "wasm.json"

const maxDescriptorBytes = 64 << 10

// Descriptor is the decoded wasm.json document. A missing or non-boolean
// "wasm" field decodes as undefined without error.
type Descriptor struct {
	Wasm store.Flag `json:"wasm"`
}

// Source yields the capability descriptor.
type Source interface {
	Fetch(ctx context.Context) (Descriptor, error)
}

// Loader loads the flattening module.
type Loader interface {
	Load(ctx context.Context) error
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) error

func (f LoaderFunc) Load(ctx context.Context) error { return f(ctx) }

// Decode parses a descriptor document.
func Decode(r io.Reader) (Descriptor, error) {
	var d Descriptor
	if err := json.NewDecoder(io.LimitReader(r, maxDescriptorBytes)).Decode(&d); err != nil {
		return Descriptor{}, fmt.Errorf("decode %s: %w", DescriptorName, err)
	}
	return d, nil
}

// HTTPSource fetches the descriptor over HTTP.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPSource resolves ref (usually "wasm.json") against base.
func NewHTTPSource(base, ref string, client *http.Client) (*HTTPSource, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("parse descriptor url: %w", err)
	}
	return &HTTPSource{URL: baseURL.ResolveReference(refURL).String(), Client: client}, nil
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context) (Descriptor, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return Descriptor{}, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Descriptor{}, fmt.Errorf("failed to fetch %s: %w", s.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Descriptor{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return Decode(resp.Body)
}

// FileSource reads the descriptor from disk.
type FileSource struct {
	Path string
}

// Fetch implements Source.
func (s FileSource) Fetch(ctx context.Context) (Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return Descriptor{}, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer f.Close()
	return Decode(f)
}

// StaticSource returns a fixed descriptor.
type StaticSource Descriptor

// Fetch implements Source.
func (s StaticSource) Fetch(context.Context) (Descriptor, error) {
	return Descriptor(s), nil
}

// Detector records the capability flag in the store and, when it is true,
// loads the module exactly once.
type Detector struct {
	Source Source
	Store  *store.Store
	Loader Loader
	Logger logging.Logger

	once sync.Once
	err  error
}

// Run performs detection once; later calls return the first result. A
// fetch failure records wasm=false and is returned. A load failure is
// recorded in the store and returned.
func (d *Detector) Run(ctx context.Context) error {
	d.once.Do(func() {
		d.err = d.run(ctx)
	})
	return d.err
}

func (d *Detector) logf(format string, args ...any) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
	}
}

func (d *Detector) run(ctx context.Context) error {
	if d.Source == nil || d.Store == nil {
		return errors.New("detector requires a source and a store")
	}

	desc, err := d.Source.Fetch(ctx)
	if err != nil {
		d.Store.Commit(store.SetWasm(store.FlagFalse))
		d.logf("capability detection failed, wasm disabled: %v", err)
		return fmt.Errorf("detect capability: %w", err)
	}
	d.Store.Commit(store.SetWasm(desc.Wasm))
	d.logf("capability detected: wasm=%s", desc.Wasm)

	if !desc.Wasm.True() {
		return nil
	}
	if d.Loader == nil {
		err := errors.New("no module loader configured")
		d.Store.Commit(store.ModuleFailed{Err: err})
		return err
	}

	d.Store.Commit(store.ModuleLoading{})
	if err := d.Loader.Load(ctx); err != nil {
		d.Store.Commit(store.ModuleFailed{Err: err})
		d.logf("module load failed: %v", err)
		return fmt.Errorf("load module: %w", err)
	}
	d.Store.Commit(store.ModuleLoaded{})
	d.logf("module loaded")
	return nil
}
