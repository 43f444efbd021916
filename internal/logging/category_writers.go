package logging

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var categoryWriters sync.Map

// SetCategoryWriter registers a writer that receives copies of log payloads
// for the given category. A nil writer removes (and closes) any existing one.
func SetCategoryWriter(category string, w io.WriteCloser) {
	if category == "" {
		return
	}
	if w == nil {
		if existing, ok := categoryWriters.LoadAndDelete(category); ok {
			if closer, ok := existing.(io.WriteCloser); ok {
				_ = closer.Close()
			}
		}
		return
	}
	categoryWriters.Store(category, w)
}

// NewCategoryLogFileWriter returns a writer that aggregates every event of a
// category into a single {"logevents":[...]} envelope.
func NewCategoryLogFileWriter(file *os.File) io.WriteCloser {
	return &envelopeWriter{
		w:     bufio.NewWriter(file),
		file:  file,
		first: true,
	}
}

// OpenCategoryLog archives any previous <dir>/<category>.json into
// <dir>/archive, opens a fresh file and registers it for category.
func OpenCategoryLog(dir, category string) (io.WriteCloser, error) {
	file, err := prepareLogFile(dir, category+".json")
	if err != nil {
		return nil, err
	}
	w := NewCategoryLogFileWriter(file)
	SetCategoryWriter(category, w)
	return w, nil
}

func prepareLogFile(dir, name string) (*os.File, error) {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	target := filepath.Join(dir, name)

	if _, err := os.Stat(target); err == nil {
		archiveDir := filepath.Join(dir, "archive")
		if err := os.MkdirAll(archiveDir, 0o755); err != nil {
			return nil, fmt.Errorf("create log archive dir: %w", err)
		}
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		timestamp := time.Now().UTC().Format("20060102-150405")
		archived := filepath.Join(archiveDir, fmt.Sprintf("%s-%s%s", base, timestamp, ext))
		if err := os.Rename(target, archived); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("archive log file: %w", err)
		}
	}

	file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

func writeCategoryEntries(entries []event, payload []byte) {
	if len(entries) == 0 {
		return
	}
	category := entries[0].Category
	if category == "" {
		return
	}
	w, ok := categoryWriters.Load(category)
	if !ok {
		return
	}
	writer, ok := w.(io.WriteCloser)
	if !ok || writer == nil {
		return
	}

	if env, ok := writer.(*envelopeWriter); ok {
		for _, entry := range entries {
			eventData, err := json.Marshal(entry)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal log event for category %s: %v\n", category, err)
				continue
			}
			_, _ = env.Write(eventData)
		}
		return
	}

	_, _ = writer.Write(payload)
}

// logBatch matches {"logevents":[{...},{...}]}.
type logBatch struct {
	Events []json.RawMessage `json:"logevents"`
}

// envelopeWriter flattens each incoming batch into one outer envelope.
type envelopeWriter struct {
	mu     sync.Mutex
	w      *bufio.Writer
	file   *os.File
	opened bool
	first  bool
}

func (e *envelopeWriter) Write(p []byte) (int, error) {
	if e == nil || e.w == nil {
		return len(p), nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.opened {
		if _, err := e.w.WriteString(`{"logevents":[` + "\n"); err != nil {
			return 0, err
		}
		e.opened = true
	}

	var batch logBatch
	if err := json.Unmarshal(p, &batch); err != nil || len(batch.Events) == 0 {
		// a single event object
		if err := e.writeEvent(p); err != nil {
			return 0, err
		}
		return len(p), e.w.Flush()
	}

	for _, ev := range batch.Events {
		if err := e.writeEvent(ev); err != nil {
			return 0, err
		}
	}
	return len(p), e.w.Flush()
}

func (e *envelopeWriter) writeEvent(ev []byte) error {
	if !e.first {
		if _, err := e.w.WriteString(",\n"); err != nil {
			return err
		}
	}
	if _, err := e.w.Write(ev); err != nil {
		return err
	}
	e.first = false
	return nil
}

func (e *envelopeWriter) Close() error {
	if e == nil || e.w == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	closing := "\n]}\n"
	if !e.opened {
		closing = `{"logevents":[]}` + "\n"
	}
	if _, err := e.w.WriteString(closing); err != nil {
		return err
	}
	if err := e.w.Flush(); err != nil {
		return err
	}
	e.w = nil
	if e.file != nil {
		return e.file.Close()
	}
	return nil
}
