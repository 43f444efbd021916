// Package convert implements the /api/convert endpoint: it receives a JSON
// document into a temporary workspace, flattens it and returns the
// requested output.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/flatterer/web/internal/flatten"
	"github.com/flatterer/web/internal/logging"
	"github.com/flatterer/web/internal/telemetry"
)

const startBytes = 10240

// Options configure a Service.
type Options struct {
	TmpDir         string
	MaxUploadBytes int64
	CleanAfter     time.Duration
	Client         *http.Client
	// MaxDownloads caps concurrent file_url downloads.
	MaxDownloads   int
	Flattener      flatten.Flattener
	Logger         logging.Logger
	Now            func() time.Time
}

// Service owns the workspaces under TmpDir.
type Service struct {
	tmpDir     string
	maxBytes   int64
	cleanAfter time.Duration
	client     *http.Client
	flattener  flatten.Flattener
	logger     logging.Logger
	now        func() time.Time
}

// New constructs a Service, creating the temp directory when needed.
func New(opts Options) (*Service, error) {
	if opts.TmpDir == "" {
		opts.TmpDir = os.TempDir()
	}
	if err := os.MkdirAll(opts.TmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 500 << 20
	}
	if opts.CleanAfter <= 0 {
		opts.CleanAfter = time.Hour
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 5 * time.Minute}
	}
	if opts.Flattener == nil {
		opts.Flattener = flatten.Native{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		tmpDir:     opts.TmpDir,
		maxBytes:   opts.MaxUploadBytes,
		cleanAfter: opts.CleanAfter,
		client:     limitClient(opts.Client, opts.MaxDownloads),
		flattener:  opts.Flattener,
		logger:     opts.Logger,
		now:        opts.Now,
	}, nil
}

func (s *Service) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// Error is a conversion failure reported to the client as 400 JSON.
type Error struct {
	ID    string
	Start string
	Err   error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Body is the JSON error document.
func (e *Error) Body() map[string]any {
	body := map[string]any{"error": e.Err.Error()}
	if e.ID != "" {
		body["id"] = e.ID
		body["start"] = e.Start
	}
	return body
}

// Conversion is a finished flatten run over one workspace.
type Conversion struct {
	ID        string
	Start     string
	GuessText string
	Request   Request
	Options   flatten.Options
	Result    *flatten.Result
	Workspace *Workspace
}

// Run flattens the workspace document according to req.
func (s *Service) Run(ctx context.Context, ws *Workspace, req Request) (*Conversion, error) {
	ctx, span := telemetry.Tracer("github.com/flatterer/web/internal/convert").Start(ctx, "convert.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("flatterer.id", ws.ID),
		attribute.String("flatterer.output_format", req.OutputFormat),
	)

	start, err := readStart(ws.Document())
	if err != nil {
		return nil, &Error{ID: ws.ID, Err: err}
	}
	conv := &Conversion{ID: ws.ID, Start: start, Request: req, Workspace: ws}

	path := req.ArrayKey
	jsonLines := req.JSONLines
	if path == "" && !jsonLines {
		kind, key, err := flatten.Guess(start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "guess failed")
			return nil, &Error{ID: ws.ID, Start: start, Err: err}
		}
		switch {
		case kind == flatten.GuessStream:
			jsonLines = true
			conv.GuessText = "JSON Stream"
		case kind == flatten.GuessObject && key != "":
			path = key
			conv.GuessText = "Array in key `" + key + "`"
		}
	}

	opts := s.options(ws, req, jsonLines, path)
	conv.Options = opts

	f, err := os.Open(ws.Document())
	if err != nil {
		return nil, &Error{ID: ws.ID, Start: start, Err: err}
	}
	defer f.Close()

	res, err := s.flattener.Flatten(ctx, f, opts)
	if err == nil {
		err = res.Validate()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "flatten failed")
		return nil, &Error{ID: ws.ID, Start: start, Err: err}
	}
	span.SetAttributes(attribute.Int("flatterer.tables", len(res.Tables)))
	conv.Result = res
	return conv, nil
}

func (s *Service) options(ws *Workspace, req Request, jsonLines bool, path string) flatten.Options {
	opts := flatten.DefaultOptions()
	if req.MainTableName != "" {
		opts.MainTableName = req.MainTableName
	}
	if req.PathSeparator != "" {
		opts.PathSeparator = req.PathSeparator
	}
	opts.TablePrefix = req.TablePrefix
	opts.InlineOneToOne = req.InlineOneToOne
	opts.JSONStream = jsonLines
	if path != "" && !jsonLines {
		opts.Path = []string{path}
	}
	if req.OutputFormat == FormatPreview {
		opts.Preview = 10
	}
	if exists(ws.path(fieldsFile)) {
		opts.FieldsCSV = ws.path(fieldsFile)
	}
	opts.OnlyFields = req.FieldsOnly
	if exists(ws.path(tablesFile)) {
		opts.TablesCSV = ws.path(tablesFile)
	}
	opts.OnlyTables = req.TablesOnly
	if req.Pushdown != "" {
		opts.Pushdown = []string{req.Pushdown}
	}
	return opts
}

func readStart(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	buf := make([]byte, startBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.ToValidUTF8(trimPartialRune(buf[:n]), "�"), nil
}

func trimPartialRune(b []byte) string {
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		if r, size := utf8.DecodeLastRune(b); r != utf8.RuneError || size != 1 {
			break
		}
		b = b[:len(b)-1]
	}
	return string(b)
}
