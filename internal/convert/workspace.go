package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Files inside a workspace.
const (
	workspacePrefix = "flatterer-"
	downloadFile    = "download.json"
	fieldsFile      = "fields.csv"
	tablesFile      = "tables.csv"
)

// ErrUnknownID is returned when a workspace id has no uploaded document.
var ErrUnknownID = errors.New("id does not exist, you may need to ask for your file to be downloaded again or to upload the file again")

// Workspace is the directory holding one uploaded document.
type Workspace struct {
	ID  string
	Dir string
}

func (w *Workspace) path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Document is the path of the uploaded JSON.
func (w *Workspace) Document() string { return w.path(downloadFile) }

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (s *Service) newWorkspace() (*Workspace, error) {
	id := uuid.New().String()
	dir := filepath.Join(s.tmpDir, workspacePrefix+id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{ID: id, Dir: dir}, nil
}

// Workspace opens the workspace for id. Ids must be uuids so they cannot
// name paths outside the temp directory.
func (s *Service) Workspace(id string) (*Workspace, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrUnknownID
	}
	ws := &Workspace{ID: parsed.String(), Dir: filepath.Join(s.tmpDir, workspacePrefix+parsed.String())}
	if !exists(ws.Document()) {
		return nil, ErrUnknownID
	}
	return ws, nil
}

// Clean removes workspaces last modified more than the clean interval
// before now. It returns how many were removed.
func (s *Service) Clean(now time.Time) (int, error) {
	entries, err := os.ReadDir(s.tmpDir)
	if err != nil {
		return 0, fmt.Errorf("read tmp dir: %w", err)
	}
	removed := 0
	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), workspacePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= s.cleanAfter {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.tmpDir, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// RunJanitor cleans expired workspaces every interval until ctx ends.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := s.Clean(now)
			if err != nil {
				s.logf("workspace cleanup failed: %v", err)
			}
			if n > 0 {
				s.logf("removed %d expired workspaces", n)
			}
		}
	}
}
