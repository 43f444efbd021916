package server

import (
	"bytes"
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"
)

//go:embed assets/*
var assets embed.FS

var startedAt = time.Now()

// serveStatic serves the request path from the static directory, falling
// back to the embedded assets. It reports whether a file was served.
func (s *server) serveStatic(w http.ResponseWriter, r *http.Request) bool {
	name := path.Clean("/" + r.URL.Path)
	if name == "/" {
		return false
	}
	full := filepath.Join(s.staticDir, filepath.FromSlash(name))
	if info, err := os.Stat(full); err == nil && !info.IsDir() {
		http.ServeFile(w, r, full)
		return true
	}
	data, err := fs.ReadFile(assets, "assets"+name)
	if err != nil {
		return false
	}
	http.ServeContent(w, r, name, startedAt, bytes.NewReader(data))
	return true
}

func moduleHandler(path string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/wasm")
		http.ServeFile(w, r, path)
	})
}
