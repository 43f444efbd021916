// Package logging provides the JSON log envelope shared by the server,
// the conversion API and the application bootstrap.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Logger is the minimal logging interface used across the project.
type Logger interface {
	Printf(format string, v ...any)
}

// sink writes whole envelopes, one per line with a blank line between them.
type sink struct {
	mu    sync.Mutex
	w     io.Writer
	wrote bool
}

func (s *sink) write(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wrote {
		_, _ = io.WriteString(s.w, "\n")
	}
	s.wrote = true
	_, _ = s.w.Write(data)
	_, _ = io.WriteString(s.w, "\n")
}

type jsonLogger struct {
	out      *sink
	category string
}

// New returns a Logger writing to stdout.
func New() Logger {
	return NewWithWriter(os.Stdout)
}

// NewWithWriter returns a Logger writing envelopes to w.
func NewWithWriter(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	return &jsonLogger{out: &sink{w: w}, category: CategoryGeneral}
}

// WithCategory returns a logger sharing the output of logger but tagging
// every event with category. Loggers that are not built by this package
// are returned unchanged.
func WithCategory(logger Logger, category string) Logger {
	l, ok := logger.(*jsonLogger)
	if !ok || l == nil || category == "" {
		return logger
	}
	return &jsonLogger{out: l.out, category: category}
}

func (l *jsonLogger) Printf(format string, v ...any) {
	if l == nil || l.out == nil {
		return
	}
	emit(l, event{
		Category: l.category,
		Message:  fmt.Sprintf(format, v...),
		Source:   callerSource(2),
	})
}

// ErrorLog adapts logger for APIs that want a *log.Logger, such as
// http.Server.ErrorLog. Every line written becomes one event in category.
func ErrorLog(logger Logger, category string) *log.Logger {
	if logger == nil {
		return nil
	}
	if category == "" {
		category = CategoryGeneral
	}
	return log.New(lineWriter{logger: logger, category: category}, "", 0)
}

type lineWriter struct {
	logger   Logger
	category string
}

func (w lineWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(string(p), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			emit(w.logger, event{Category: w.category, Message: line})
		}
	}
	return len(p), nil
}

// emit writes events as one envelope to logger and copies them to the
// writer registered for their category.
func emit(logger Logger, events ...event) {
	if logger == nil || len(events) == 0 {
		return
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i := range events {
		if events[i].Time == "" {
			events[i].Time = now
		}
		if events[i].Category == "" {
			events[i].Category = CategoryGeneral
		}
	}
	data, err := json.Marshal(envelope{Events: events})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal log entry: %v\n", err)
		return
	}
	if l, ok := logger.(*jsonLogger); ok {
		if l != nil && l.out != nil {
			l.out.write(data)
		}
	} else {
		logger.Printf("%s", data)
	}
	writeCategoryEntries(events, data)
}

func callerSource(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
