package main

import (
	"testing"

	"github.com/flatterer/web/internal/config"
)

func TestApplyFlagsOverridesConfig(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "8080"
	cfg.App.StaticFiles = "dist"

	applyFlags(&cfg, "", "9090", "", "/tmp/logs", "flatterer.wasm")

	if cfg.Server.Host != "127.0.0.1" {
		t.Fatalf("expected host kept, got %q", cfg.Server.Host)
	}
	if cfg.Server.Port != "9090" || cfg.App.LogDir != "/tmp/logs" || cfg.Wasm.Module != "flatterer.wasm" {
		t.Fatalf("expected flag values applied, got %+v", cfg)
	}
	if cfg.App.StaticFiles != "dist" {
		t.Fatalf("expected static dir kept, got %q", cfg.App.StaticFiles)
	}
}
