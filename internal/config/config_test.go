package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("HOST", "")
	t.Setenv("PORT", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr() != defaultHost+":"+defaultPort {
		t.Fatalf("expected default addr, got %s", cfg.Addr())
	}
	if cfg.App.StaticFiles != defaultStaticFiles {
		t.Fatalf("expected default static files, got %q", cfg.App.StaticFiles)
	}
	if cfg.MaxUploadBytes() != 500*1024*1024 {
		t.Fatalf("expected 500MB limit, got %d", cfg.MaxUploadBytes())
	}
	if cfg.CleanTmpAfter() != time.Hour {
		t.Fatalf("expected one hour clean interval, got %s", cfg.CleanTmpAfter())
	}
	if cfg.Wasm.Descriptor != "wasm.json" {
		t.Fatalf("expected wasm.json descriptor, got %q", cfg.Wasm.Descriptor)
	}
	if cfg.WasmAdvertised() {
		t.Fatalf("expected wasm to be off without a module")
	}
}

func TestLoadHonoursFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"server": {"host":"0.0.0.0","port":":9999"},
		"app": {"static_files":"ui/dist/"},
		"convert": {"max_size": 10, "clean_tmp_time": 60},
		"wasm": {"enabled": true, "module": "flatterer.wasm"}
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:9999" {
		t.Fatalf("server overrides not applied: %+v", cfg.Server)
	}
	if cfg.App.StaticFiles != "ui/dist" {
		t.Fatalf("expected trailing slash to be trimmed, got %q", cfg.App.StaticFiles)
	}
	if cfg.MaxUploadBytes() != 10*1024*1024 || cfg.CleanTmpAfter() != time.Minute {
		t.Fatalf("convert overrides not applied: %+v", cfg.Convert)
	}
	if !cfg.WasmAdvertised() || cfg.Wasm.Module != "flatterer.wasm" {
		t.Fatalf("wasm overrides not applied: %+v", cfg.Wasm)
	}
}

func TestLoadEnvironmentBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server":{"port":"9000"}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PORT", "7000")
	t.Setenv("HOST", "localhost")
	t.Setenv("OPEN_BROWSER", "true")
	t.Setenv("FLATTERER_WASM", "false")
	t.Setenv("FLATTERER_WASM_MODULE", "/opt/flatterer.wasm")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr() != "localhost:7000" {
		t.Fatalf("expected env addr, got %s", cfg.Addr())
	}
	if !cfg.Server.OpenBrowser {
		t.Fatalf("expected OPEN_BROWSER to be honoured")
	}
	if cfg.WasmAdvertised() {
		t.Fatalf("expected explicit FLATTERER_WASM=false to win over module presence")
	}
}

func TestLoadToleratesLooseEnvValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"convert":{"clean_tmp_time":"120"}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cases := []struct {
		name        string
		env         map[string]string
		openBrowser bool
		maxBytes    int64
		cleanAfter  time.Duration
	}{
		{"any open browser value", map[string]string{"OPEN_BROWSER": "yes"}, true, 500 * 1024 * 1024, 2 * time.Minute},
		{"bad sizes keep defaults", map[string]string{"MAX_SIZE": "abc", "CLEAN_TMP_TIME": "soon"}, false, 500 * 1024 * 1024, 2 * time.Minute},
		{"numeric values apply", map[string]string{"MAX_SIZE": " 20 ", "CLEAN_TMP_TIME": "30"}, false, 20 * 1024 * 1024, 30 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("OPEN_BROWSER", "")
			os.Unsetenv("OPEN_BROWSER")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if bool(cfg.Server.OpenBrowser) != tc.openBrowser {
				t.Fatalf("expected open browser %v, got %v", tc.openBrowser, cfg.Server.OpenBrowser)
			}
			if cfg.MaxUploadBytes() != tc.maxBytes || cfg.CleanTmpAfter() != tc.cleanAfter {
				t.Fatalf("expected %d bytes / %s, got %d / %s", tc.maxBytes, tc.cleanAfter, cfg.MaxUploadBytes(), cfg.CleanTmpAfter())
			}
		})
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("FLATTERER_MAX_DOWNLOADS", "many")
	_, err := Load("")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server":`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected decode error")
	}
}
