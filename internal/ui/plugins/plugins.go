// Package plugins installs the UI component library.
package plugins

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/flatterer/web/internal/ui/app"
)

//go:embed components/*.tmpl
var components embed.FS

// Register installs every component on a. It is the single entry point
// both binaries call before mounting.
func Register(a *app.App) error {
	return a.Use(Components())
}

// Components returns the plugin registering the embedded component
// templates, named after their file.
func Components() app.Plugin {
	return app.PluginFunc(func(a *app.App) error {
		entries, err := fs.ReadDir(components, "components")
		if err != nil {
			return fmt.Errorf("read components: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			body, err := components.ReadFile(path.Join("components", entry.Name()))
			if err != nil {
				return fmt.Errorf("read component %s: %w", entry.Name(), err)
			}
			a.Component(strings.TrimSuffix(entry.Name(), ".tmpl"), string(body))
		}
		return nil
	})
}
