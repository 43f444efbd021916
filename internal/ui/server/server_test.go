package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/flatterer/web/internal/config"
	"github.com/flatterer/web/internal/logging"
	"github.com/flatterer/web/internal/ui/store"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	var cfg config.Config
	cfg.App.StaticFiles = t.TempDir()
	cfg.App.LogDir = t.TempDir()
	cfg.Convert.TmpDir = t.TempDir()
	cfg.Convert.MaxSizeMB = 1
	cfg.Convert.CleanTmpSecs = 3600
	cfg.Wasm.DetectTimeoutSec = 1
	return cfg
}

func newTestServer(t *testing.T, cfg config.Config) (*server, http.Handler) {
	t.Helper()
	srv, err := newServer(context.Background(), Options{
		Config: cfg,
		Logger: logging.NewWithWriter(io.Discard),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(srv.close)
	return srv, srv.handler()
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func parseHTML(t *testing.T, body []byte) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func postForm(h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return serve(h, req)
}

func TestRoutesRenderViews(t *testing.T) {
	_, h := newTestServer(t, testConfig(t))
	cases := []struct {
		path   string
		status int
		route  string
	}{
		{"/", http.StatusOK, "home"},
		{"/about", http.StatusOK, "about"},
		{"/about/", http.StatusOK, "about"},
		{"/missing", http.StatusNotFound, "not-found"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			rr := serve(h, httptest.NewRequest(http.MethodGet, tc.path, nil))
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			doc := parseHTML(t, rr.Body.Bytes())
			route, _ := doc.Find("#app .app").Attr("data-route")
			if route != tc.route {
				t.Fatalf("expected route %q, got %q", tc.route, route)
			}
			if doc.Find("script#initial-state").Length() != 1 {
				t.Fatalf("expected state snapshot in page")
			}
		})
	}
}

func TestStaticIndexUsedAsShell(t *testing.T) {
	cfg := testConfig(t)
	shell := `<html><head><title>x</title></head><body><div id="app"></div><p id="custom-shell"></p></body></html>`
	if err := os.WriteFile(filepath.Join(cfg.App.StaticFiles, "index.html"), []byte(shell), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	_, h := newTestServer(t, cfg)
	doc := parseHTML(t, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)).Body.Bytes())
	if doc.Find("#custom-shell").Length() != 1 || doc.Find("#app #json-input").Length() != 1 {
		t.Fatalf("expected built index.html mounted")
	}
	if title := doc.Find("title").Text(); title != "Flatterer" {
		t.Fatalf("expected root title, got %q", title)
	}
}

func TestDescriptorGeneratedAndDetected(t *testing.T) {
	cfg := testConfig(t)
	enabled := true
	cfg.Wasm.Enabled = &enabled
	srv, h := newTestServer(t, cfg)

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/wasm.json", nil))
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != `{"wasm":true}` {
		t.Fatalf("expected generated descriptor, got %d %s", rr.Code, rr.Body.String())
	}

	// wasm advertised but no module source configured: load fails, app still serves.
	st := srv.app.Store().State()
	if !st.Wasm.True() || st.Module.Status != store.StatusFailed {
		t.Fatalf("expected wasm true with failed load, got %+v", st)
	}
	if srv.detectErr == nil {
		t.Fatalf("expected detection error recorded")
	}
}

func TestDescriptorFromStaticDir(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.App.StaticFiles, "wasm.json"), []byte(`{"wasm": false}`), 0o644); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}
	srv, h := newTestServer(t, cfg)
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/wasm.json", nil))
	if rr.Body.String() != `{"wasm": false}` {
		t.Fatalf("expected static descriptor, got %s", rr.Body.String())
	}
	if st := srv.app.Store().State(); st.Wasm != store.FlagFalse || st.Module.Status != store.StatusUnloaded {
		t.Fatalf("expected wasm false without load, got %+v", st)
	}
}

func TestStaticAssets(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.App.StaticFiles, "extra.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, h := newTestServer(t, cfg)

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/extra.txt", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "hello" {
		t.Fatalf("expected static file, got %d %q", rr.Code, rr.Body.String())
	}
	rr = serve(h, httptest.NewRequest(http.MethodGet, "/styles.css", nil))
	if rr.Code != http.StatusOK || !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/css") {
		t.Fatalf("expected embedded stylesheet, got %d %s", rr.Code, rr.Header().Get("Content-Type"))
	}
}

func TestBrowserLoaderProvidesWASIImports(t *testing.T) {
	_, h := newTestServer(t, testConfig(t))
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/app.js", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected app.js, got %d", rr.Code)
	}
	body := rr.Body.String()
	if strings.Contains(body, `instantiate("/flatterer.wasm", {})`) {
		t.Fatalf("expected flatterer.wasm to get WASI imports in the browser")
	}
	for _, name := range []string{"wasi_snapshot_preview1", "fd_write", "proc_exit", "environ_sizes_get", "args_sizes_get", "clock_time_get", "random_get"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected app.js to provide %s", name)
		}
	}
}

func TestStateCommit(t *testing.T) {
	srv, h := newTestServer(t, testConfig(t))

	body := `{"type": "setSection", "payload": {"name": "error", "value": true}}`
	rr := serve(h, httptest.NewRequest(http.MethodPost, "/api/state/commit", strings.NewReader(body)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	st := srv.app.Store().State()
	if !st.Sections["error"] || st.Sections["tables"] {
		t.Fatalf("expected error section only, got %v", st.Sections)
	}

	rr = serve(h, httptest.NewRequest(http.MethodPost, "/api/state/commit", strings.NewReader(`{"type": "moduleLoaded"}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown mutation, got %d", rr.Code)
	}

	rr = serve(h, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	var snapshot map[string]json.RawMessage
	if err := json.Unmarshal(rr.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if string(snapshot["listItem"]) != `"json-input"` {
		t.Fatalf("expected default listItem, got %s", snapshot["listItem"])
	}
}

func TestSelectAndSectionForms(t *testing.T) {
	srv, h := newTestServer(t, testConfig(t))

	rr := postForm(h, "/select", url.Values{"item": {"url-input"}})
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect home, got %d %s", rr.Code, rr.Header().Get("Location"))
	}
	if got := srv.app.Store().State().ListItem; got != "url-input" {
		t.Fatalf("expected url-input, got %q", got)
	}

	rr = postForm(h, "/section", url.Values{"name": {"tables"}, "value": {"true"}})
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rr.Code)
	}
	if !srv.app.Store().State().Sections["tables"] {
		t.Fatalf("expected tables section open")
	}

	rr = postForm(h, "/section", url.Values{"value": {"true"}})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without name, got %d", rr.Code)
	}
}

func TestConvertFormStoresPreview(t *testing.T) {
	srv, h := newTestServer(t, testConfig(t))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("json", `[{"id": 1, "tags": [{"name": "a"}]}]`)
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/convert", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := serve(h, req)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d: %s", rr.Code, rr.Body.String())
	}

	st := srv.app.Store().State()
	if !st.Sections["tables"] || st.Sections["error"] || !st.HasPreview() {
		t.Fatalf("expected preview stored with tables open, got %+v", st.Sections)
	}

	doc := parseHTML(t, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)).Body.Bytes())
	if doc.Find(`.preview[data-table="main"]`).Length() != 1 || doc.Find(`.preview[data-table="tags"]`).Length() != 1 {
		t.Fatalf("expected preview tables rendered")
	}
}

func TestConvertFormRecordsError(t *testing.T) {
	srv, h := newTestServer(t, testConfig(t))
	rr := postForm(h, "/convert", url.Values{})
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rr.Code)
	}
	st := srv.app.Store().State()
	if !st.Sections["error"] || st.Sections["tables"] {
		t.Fatalf("expected error section open, got %v", st.Sections)
	}
	doc := parseHTML(t, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)).Body.Bytes())
	if msg := doc.Find("#section-error .error").Text(); !strings.Contains(msg, "need to supply") {
		t.Fatalf("expected error message rendered, got %q", msg)
	}
}

func TestConvertAPI(t *testing.T) {
	_, h := newTestServer(t, testConfig(t))
	req := httptest.NewRequest(http.MethodPost, "/api/convert?output_format=tables", strings.NewReader(`[{"a": 1}]`))
	req.Header.Set("Content-Type", "application/json")
	rr := serve(h, req)
	if rr.Code != http.StatusOK || rr.Body.String() != "table_name,table_title\nmain,main\n" {
		t.Fatalf("unexpected convert response %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestRunServesUntilCancelled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{
			Config: cfg,
			Logger: logging.NewWithWriter(io.Discard),
			Ready:  func(addr string) { ready <- addr },
		})
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/about")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if _, err := os.Stat(filepath.Join(cfg.App.LogDir, "http.json")); err != nil {
		t.Fatalf("expected http log file: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not shut down")
	}
}

func TestHTTPServerErrorsUseLogEnvelope(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig(t)
	srv, err := newServer(context.Background(), Options{Config: cfg, Logger: logging.NewWithWriter(&buf)})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer srv.close()

	hs := srv.httpServer()
	if hs.ErrorLog == nil {
		t.Fatalf("expected server error log")
	}
	buf.Reset()
	hs.ErrorLog.Printf("http: Accept error: %s", "too many open files")
	if !strings.Contains(buf.String(), `"logevents":[`) || !strings.Contains(buf.String(), `"category":"http"`) {
		t.Fatalf("expected http envelope, got %q", buf.String())
	}
}
