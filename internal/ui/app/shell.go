package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"

	"github.com/PuerkitoBio/goquery"
)

// ShellTarget renders into the #app node of an HTML shell document, as
// served to browsers before the client app takes over.
type ShellTarget struct {
	shell []byte
	path  string
	out   []byte
}

// NewShellTarget returns a target for path backed by the shell document.
func NewShellTarget(shell []byte, path string) *ShellTarget {
	return &ShellTarget{shell: shell, path: path}
}

func (t *ShellTarget) Selector() string { return MountSelector }

func (t *ShellTarget) Path() string { return t.path }

// Render parses the shell, replaces the content of #app with the page and
// embeds the store snapshot for hydration.
func (t *ShellTarget) Render(page Page) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(t.shell))
	if err != nil {
		return fmt.Errorf("failed to parse shell: %w", err)
	}

	mount := doc.Find(MountSelector)
	if mount.Length() == 0 {
		return ErrNoMountTarget
	}
	mount.First().SetHtml(page.HTML)

	if page.Title != "" {
		doc.Find("title").SetText(page.Title)
	}

	snapshot, err := json.Marshal(page.State)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	doc.Find("#initial-state").Remove()
	script := `<script id="initial-state" type="application/json" data-route="` +
		html.EscapeString(page.Route.Name) + `">` + string(snapshot) + `</script>`
	if body := doc.Find("body"); body.Length() > 0 {
		body.PrependHtml(script)
	} else {
		mount.AfterHtml(script)
	}

	out, err := doc.Html()
	if err != nil {
		return fmt.Errorf("serialise shell: %w", err)
	}
	t.out = []byte(out)
	return nil
}

// Bytes returns the last rendered document.
func (t *ShellTarget) Bytes() []byte { return t.out }
