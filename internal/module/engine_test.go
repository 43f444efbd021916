package module

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/flatterer/web/internal/flatten"
)

// loadOnly is (module (func (export "load") (result i32) i32.const 1)).
var loadOnly = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x08, 0x01, 0x04, 0x6c, 0x6f, 0x61, 0x64, 0x00, 0x00,
	0x0a, 0x06, 0x01, 0x04, 0x00, 0x41, 0x01, 0x0b,
}

// emptyModule has no exports at all.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// flattenResult is stored in the data segment of flattenModule at offset
// 2048; flatten returns (2048<<32 | len(flattenResult)).
const flattenResult = `{"tables":[{"name":"main","title":"main","fields":[{"name":"id","type":"number","title":"id","count":1}],"rows":[["1"]]}]}`

// flattenModule exports memory, load, alloc (always 1024) and flatten.
var flattenModule = append([]byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, 0x01, 0x10, 0x03, 0x60, 0x00, 0x01, 0x7f, 0x60,
	0x01, 0x7f, 0x01, 0x7f, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7e, 0x03, 0x04, 0x03, 0x00, 0x01, 0x02,
	0x05, 0x03, 0x01, 0x00, 0x01, 0x07, 0x23, 0x04, 0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, 0x02,
	0x00, 0x04, 0x6c, 0x6f, 0x61, 0x64, 0x00, 0x00, 0x05, 0x61, 0x6c, 0x6c, 0x6f, 0x63, 0x00, 0x01,
	0x07, 0x66, 0x6c, 0x61, 0x74, 0x74, 0x65, 0x6e, 0x00, 0x02, 0x0a, 0x1a, 0x03, 0x04, 0x00, 0x41,
	0x01, 0x0b, 0x05, 0x00, 0x41, 0x80, 0x08, 0x0b, 0x0d, 0x00, 0x41, 0x80, 0x10, 0xad, 0x42, 0x20,
	0x86, 0x42, 0xfa, 0x00, 0x84, 0x0b, 0x0b, 0x81, 0x01, 0x01, 0x00, 0x41, 0x80, 0x10, 0x0b, 0x7a,
}, flattenResult...)

type countingSource struct {
	mu    sync.Mutex
	calls int
	bin   []byte
}

func (s *countingSource) Bytes(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.bin, nil
}

func (s *countingSource) String() string { return "test" }

func TestLoadCallsLoadExportOnce(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{bin: loadOnly}
	e := New(src, Config{})
	t.Cleanup(func() { _ = e.Close(ctx) })

	for i := 0; i < 3; i++ {
		if err := e.Load(ctx); err != nil {
			t.Fatalf("load: %v", err)
		}
	}
	if src.calls != 1 || e.Loads() != 1 {
		t.Fatalf("expected a single load, got source=%d loads=%d", src.calls, e.Loads())
	}
	if !e.Ready() {
		t.Fatalf("expected engine ready")
	}
	if e.CanFlatten() {
		t.Fatalf("expected load-only module to lack the flatten ABI")
	}
	if _, err := e.Flatten(ctx, strings.NewReader(`[{"a":1}]`), flatten.DefaultOptions()); !errors.Is(err, ErrNoFlattenABI) {
		t.Fatalf("expected ErrNoFlattenABI, got %v", err)
	}
}

func TestLoadMissingExport(t *testing.T) {
	e := New(BytesSource(emptyModule), Config{})
	if err := e.Load(context.Background()); !errors.Is(err, ErrNoLoadExport) {
		t.Fatalf("expected ErrNoLoadExport, got %v", err)
	}
	if e.Ready() {
		t.Fatalf("expected engine not ready")
	}
	if err := e.Load(context.Background()); !errors.Is(err, ErrNoLoadExport) {
		t.Fatalf("expected first outcome repeated, got %v", err)
	}
}

func TestLoadInvalidBinary(t *testing.T) {
	e := New(BytesSource([]byte("not wasm")), Config{})
	if err := e.Load(context.Background()); err == nil || !strings.Contains(err.Error(), "compile module") {
		t.Fatalf("expected compile error, got %v", err)
	}
}

func TestFlattenBeforeLoad(t *testing.T) {
	e := New(BytesSource(flattenModule), Config{})
	if _, err := e.Flatten(context.Background(), strings.NewReader(`[]`), flatten.Options{}); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
}

func TestFlattenThroughModule(t *testing.T) {
	ctx := context.Background()
	e := New(BytesSource(flattenModule), Config{MemoryLimitPages: 4})
	t.Cleanup(func() { _ = e.Close(ctx) })
	if err := e.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !e.CanFlatten() {
		t.Fatalf("expected flatten ABI")
	}
	res, err := e.Flatten(ctx, strings.NewReader("{\"id\": 1}\n"), flatten.Options{JSONStream: true})
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	main, ok := res.Table("main")
	if !ok || main.Value(0, "id") != "1" || main.Fields[0].Type != flatten.TypeNumber {
		t.Fatalf("unexpected module result %+v", res.Tables)
	}

	if _, err := e.Flatten(ctx, strings.NewReader(`{"broken"`), flatten.Options{}); err == nil {
		t.Fatalf("expected invalid JSON error")
	}
}

func TestSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flatterer.wasm")
	if err := os.WriteFile(path, loadOnly, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if src, ok := SourceFor(path).(FileSource); !ok || string(src) != path {
		t.Fatalf("expected file source for %s", path)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/flatterer.wasm" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(loadOnly)
	}))
	defer srv.Close()

	src, ok := SourceFor(srv.URL + "/flatterer.wasm").(URLSource)
	if !ok {
		t.Fatalf("expected url source")
	}
	e := New(src, Config{})
	defer e.Close(context.Background())
	if err := e.Load(context.Background()); err != nil {
		t.Fatalf("load over http: %v", err)
	}

	missing := URLSource{URL: srv.URL + "/missing.wasm"}
	if _, err := missing.Bytes(context.Background()); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
}

func TestOrFallsBackUntilModuleFlattens(t *testing.T) {
	ctx := context.Background()
	fallbackCalls := 0
	fallback := flatten.FlattenerFunc(func(ctx context.Context, r io.Reader, opts flatten.Options) (*flatten.Result, error) {
		fallbackCalls++
		return flatten.Flatten(ctx, r, opts)
	})

	e := New(BytesSource(flattenModule), Config{})
	t.Cleanup(func() { _ = e.Close(ctx) })
	f := e.Or(fallback)

	if _, err := f.Flatten(ctx, strings.NewReader(`[{"name":"x"}]`), flatten.DefaultOptions()); err != nil {
		t.Fatalf("fallback flatten: %v", err)
	}
	if fallbackCalls != 1 {
		t.Fatalf("expected fallback before load, got %d calls", fallbackCalls)
	}

	if err := e.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	res, err := f.Flatten(ctx, strings.NewReader(`[{"name":"x"}]`), flatten.DefaultOptions())
	if err != nil {
		t.Fatalf("module flatten: %v", err)
	}
	if fallbackCalls != 1 {
		t.Fatalf("expected module to handle the call, fallback ran %d times", fallbackCalls)
	}
	if main, _ := res.Table("main"); main == nil || main.Value(0, "id") != "1" {
		t.Fatalf("expected canned module result, got %+v", res.Tables)
	}
}
