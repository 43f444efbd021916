// Package config loads and normalises flatterer-web configuration: an
// optional JSON file, overridden by environment variables, then defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultHost         = "127.0.0.1"
	defaultPort         = "8080"
	defaultStaticFiles  = "dist"
	defaultLogDir       = "logs"
	defaultMaxSizeMB    = 500
	defaultCleanTmpSecs = 3600
	defaultDescriptor   = "wasm.json"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host        string   `json:"host" env:"HOST"`
	Port        string   `json:"port" env:"PORT"`
	OpenBrowser Presence `json:"open_browser" env:"OPEN_BROWSER"`
}

// AppConfig locates the built front-end shell and log output.
type AppConfig struct {
	StaticFiles string `json:"static_files" env:"STATIC_FILES"`
	LogDir      string `json:"log_dir" env:"FLATTERER_LOG_DIR"`
}

// ConvertConfig bounds the conversion API.
type ConvertConfig struct {
	MaxSizeMB    LenientInt `json:"max_size" env:"MAX_SIZE"`
	CleanTmpSecs LenientInt `json:"clean_tmp_time" env:"CLEAN_TMP_TIME"`
	TmpDir       string     `json:"tmp_dir" env:"FLATTERER_TMP_DIR"`
	MaxDownloads int        `json:"max_downloads" env:"FLATTERER_MAX_DOWNLOADS"`
}

// WasmConfig describes the optional external flattening module.
type WasmConfig struct {
	// Enabled is what /wasm.json reports when the static directory has no
	// wasm.json of its own.
	Enabled *bool `json:"enabled,omitempty" env:"FLATTERER_WASM"`
	// Module is a file path or http(s) URL of the module bytes.
	Module string `json:"module" env:"FLATTERER_WASM_MODULE"`
	// Descriptor is where the bootstrap reads the capability descriptor:
	// a path relative to the static directory or an http(s) URL.
	Descriptor       string `json:"descriptor" env:"FLATTERER_WASM_DESCRIPTOR"`
	DetectTimeoutSec int    `json:"detect_timeout" env:"FLATTERER_WASM_DETECT_TIMEOUT"`
}

// TelemetryConfig enables OTLP tracing when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string `json:"endpoint" env:"FLATTERER_OTEL_ENDPOINT"`
	ServiceName string `json:"service_name" env:"FLATTERER_OTEL_SERVICE"`
}

// Config is the combined runtime configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	App       AppConfig       `json:"app"`
	Convert   ConvertConfig   `json:"convert"`
	Wasm      WasmConfig      `json:"wasm"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// Load reads the JSON config at path (a missing file is not an error),
// applies environment overrides and fills defaults.
func Load(path string) (Config, error) {
	var cfg Config
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("decode config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// ParseEnv overlays environment variables onto target. Fields whose
// variables are unset keep their current value.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	cfg.Server.Host = strings.TrimSpace(cfg.Server.Host)
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultHost
	}
	cfg.Server.Port = strings.TrimPrefix(strings.TrimSpace(cfg.Server.Port), ":")
	if cfg.Server.Port == "" {
		cfg.Server.Port = defaultPort
	}
	cfg.App.StaticFiles = strings.TrimSuffix(strings.TrimSpace(cfg.App.StaticFiles), "/")
	if cfg.App.StaticFiles == "" {
		cfg.App.StaticFiles = defaultStaticFiles
	}
	if strings.TrimSpace(cfg.App.LogDir) == "" {
		cfg.App.LogDir = defaultLogDir
	}
	if cfg.Convert.MaxSizeMB <= 0 {
		cfg.Convert.MaxSizeMB = defaultMaxSizeMB
	}
	if cfg.Convert.CleanTmpSecs <= 0 {
		cfg.Convert.CleanTmpSecs = defaultCleanTmpSecs
	}
	if strings.TrimSpace(cfg.Convert.TmpDir) == "" {
		cfg.Convert.TmpDir = os.TempDir()
	}
	if strings.TrimSpace(cfg.Wasm.Descriptor) == "" {
		cfg.Wasm.Descriptor = defaultDescriptor
	}
	if cfg.Wasm.DetectTimeoutSec <= 0 {
		cfg.Wasm.DetectTimeoutSec = 5
	}
	if strings.TrimSpace(cfg.Telemetry.ServiceName) == "" {
		cfg.Telemetry.ServiceName = "flatterer-web"
	}
}

// Addr returns host:port for the listener.
func (c Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// BaseURL is the address printed at startup and opened in the browser.
func (c Config) BaseURL() string {
	return "http://" + c.Addr()
}

// MaxUploadBytes converts the MAX_SIZE megabyte limit to bytes.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.Convert.MaxSizeMB) * 1024 * 1024
}

// CleanTmpAfter is the age after which conversion workspaces are removed.
func (c Config) CleanTmpAfter() time.Duration {
	return time.Duration(c.Convert.CleanTmpSecs) * time.Second
}

// DetectTimeout bounds the capability detection performed before mount.
func (c Config) DetectTimeout() time.Duration {
	return time.Duration(c.Wasm.DetectTimeoutSec) * time.Second
}

// WasmAdvertised reports the flag served in the generated wasm.json.
func (c Config) WasmAdvertised() bool {
	if c.Wasm.Enabled != nil {
		return *c.Wasm.Enabled
	}
	return strings.TrimSpace(c.Wasm.Module) != ""
}
