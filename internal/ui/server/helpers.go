package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/flatterer/web/internal/logging"
)

func applyDefaults(opts Options) Options {
	cfg := &opts.Config
	if strings.TrimSpace(cfg.Server.Host) == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if strings.TrimSpace(cfg.Server.Port) == "" {
		cfg.Server.Port = "8080"
	}
	if strings.TrimSpace(cfg.App.StaticFiles) == "" {
		cfg.App.StaticFiles = "dist"
	}
	if strings.TrimSpace(cfg.App.LogDir) == "" {
		cfg.App.LogDir = "logs"
	}
	if strings.TrimSpace(cfg.Wasm.Descriptor) == "" {
		cfg.Wasm.Descriptor = "wasm.json"
	}
	if opts.Logger == nil {
		opts.Logger = logging.New()
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 5 * time.Minute}
	}
	return opts
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
