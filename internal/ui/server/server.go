// Package server serves the application shell, the conversion API and the
// store endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/flatterer/web/internal/config"
	"github.com/flatterer/web/internal/convert"
	"github.com/flatterer/web/internal/flatten"
	"github.com/flatterer/web/internal/logging"
	"github.com/flatterer/web/internal/module"
	"github.com/flatterer/web/internal/telemetry"
	"github.com/flatterer/web/internal/ui/app"
	"github.com/flatterer/web/internal/ui/bootstrap"
	"github.com/flatterer/web/internal/ui/capability"
	"github.com/flatterer/web/internal/ui/store"
	"github.com/flatterer/web/internal/ui/views"
)

// Options configures the HTTP server.
type Options struct {
	Config config.Config
	Logger logging.Logger
	// Client is used for file_url downloads and remote wasm.json fetches.
	Client *http.Client
	// Engine overrides the module engine built from Config.Wasm.Module.
	Engine *module.Engine
	// Ready, when set, receives the listen address once the server is
	// accepting connections.
	Ready func(addr string)
}

type server struct {
	cfg       config.Config
	logger    logging.Logger
	client    *http.Client
	staticDir string
	shell     []byte
	app       *app.App
	convert   *convert.Service
	engine    *module.Engine
	detectErr error
}

// Run starts the server and blocks until ctx is cancelled or the listener
// fails.
func Run(ctx context.Context, opts Options) error {
	opts = applyDefaults(opts)
	cfg := opts.Config

	logDir, err := filepath.Abs(cfg.App.LogDir)
	if err != nil {
		return fmt.Errorf("resolve log dir: %w", err)
	}
	for _, category := range []string{logging.CategoryHTTP, logging.CategoryGeneral} {
		if _, err := logging.OpenCategoryLog(logDir, category); err != nil {
			return fmt.Errorf("prepare %s log file: %w", category, err)
		}
		defer logging.SetCategoryWriter(category, nil)
	}

	srv, err := newServer(ctx, opts)
	if err != nil {
		return err
	}
	defer srv.close()

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go srv.convert.RunJanitor(janitorCtx, time.Minute)

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	httpServer := srv.httpServer()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()

	addr := listener.Addr().String()
	log.Printf("Serving flatterer-web on http://%s", addr)
	if opts.Ready != nil {
		opts.Ready(addr)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}

// newServer builds the conversion service and the application, running
// capability detection before the first request is served.
func newServer(ctx context.Context, opts Options) (*server, error) {
	opts = applyDefaults(opts)
	cfg := opts.Config

	staticDir, err := filepath.Abs(cfg.App.StaticFiles)
	if err != nil {
		return nil, fmt.Errorf("resolve static dir: %w", err)
	}

	engine := opts.Engine
	if engine == nil && strings.TrimSpace(cfg.Wasm.Module) != "" {
		engine = module.New(module.SourceFor(cfg.Wasm.Module), module.Config{})
	}
	var (
		flattener flatten.Flattener = flatten.Native{}
		loader    capability.Loader
	)
	if engine != nil {
		flattener = engine.Or(flatten.Native{})
		loader = engine
	}

	conv, err := convert.New(convert.Options{
		TmpDir:         cfg.Convert.TmpDir,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		CleanAfter:     cfg.CleanTmpAfter(),
		Client:         opts.Client,
		MaxDownloads:   cfg.Convert.MaxDownloads,
		Flattener:      flattener,
		Logger:         logging.WithCategory(opts.Logger, logging.CategoryConvert),
	})
	if err != nil {
		return nil, fmt.Errorf("conversion service: %w", err)
	}

	s := &server{
		cfg:       cfg,
		logger:    opts.Logger,
		client:    opts.Client,
		staticDir: staticDir,
		convert:   conv,
		engine:    engine,
	}
	s.shell = s.loadShell()

	res, err := bootstrap.Start(ctx, bootstrap.Options{
		Root:          app.DefaultRoot(),
		Source:        s.descriptorSource(),
		Loader:        loader,
		DetectTimeout: cfg.DetectTimeout(),
		Logger:        logging.WithCategory(opts.Logger, logging.CategoryModule),
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	s.app = res.App
	s.detectErr = res.DetectErr
	return s, nil
}

func (s *server) handler() http.Handler {
	m := mux.NewRouter()
	s.app.Router().Attach(m, s.pageHandler)

	m.Handle("/api/convert", s.convert).Methods(http.MethodGet, http.MethodPost, http.MethodPut)
	m.HandleFunc("/api/state", s.handleState).Methods(http.MethodGet)
	m.HandleFunc("/api/state/commit", s.handleCommit).Methods(http.MethodPost)
	m.HandleFunc("/convert", s.handleConvertForm).Methods(http.MethodPost)
	m.HandleFunc("/select", s.handleSelect).Methods(http.MethodPost)
	m.HandleFunc("/section", s.handleSection).Methods(http.MethodPost)
	m.HandleFunc("/"+capability.DescriptorName, s.handleDescriptor).Methods(http.MethodGet, http.MethodHead)
	if path := s.localModulePath(); path != "" {
		m.Handle("/flatterer.wasm", moduleHandler(path)).Methods(http.MethodGet, http.MethodHead)
	}
	m.NotFoundHandler = http.HandlerFunc(s.handleFallback)

	return logging.WithHTTPLogging(logRequests(s.logger, telemetry.Middleware(m, "flatterer-web")), s.logger)
}

func (s *server) httpServer() *http.Server {
	return &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logging.ErrorLog(s.logger, logging.CategoryHTTP),
	}
}

func (s *server) close() {
	if s.engine == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.engine.Close(ctx); err != nil {
		s.logf("close module: %v", err)
	}
}

// loadShell returns <static>/index.html when the front-end has been
// built, else the embedded shell.
func (s *server) loadShell() []byte {
	data, err := os.ReadFile(filepath.Join(s.staticDir, "index.html"))
	if err == nil && len(data) > 0 {
		return data
	}
	return views.Shell()
}

// descriptorSource picks where detection reads wasm.json: a remote URL, the
// static directory, or the descriptor generated from configuration.
func (s *server) descriptorSource() capability.Source {
	ref := strings.TrimSpace(s.cfg.Wasm.Descriptor)
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return &capability.HTTPSource{URL: ref, Client: s.client}
	}
	if path := s.staticDescriptor(); path != "" {
		return capability.FileSource{Path: path}
	}
	return capability.StaticSource(s.generatedDescriptor())
}

func (s *server) staticDescriptor() string {
	ref := strings.TrimSpace(s.cfg.Wasm.Descriptor)
	if ref == "" || strings.Contains(ref, "://") {
		return ""
	}
	path := filepath.Join(s.staticDir, filepath.Clean("/"+ref))
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path
	}
	return ""
}

func (s *server) generatedDescriptor() capability.Descriptor {
	return capability.Descriptor{Wasm: store.FlagOf(s.cfg.WasmAdvertised())}
}

func (s *server) localModulePath() string {
	ref := strings.TrimSpace(s.cfg.Wasm.Module)
	if ref == "" || strings.Contains(ref, "://") {
		return ""
	}
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		return ref
	}
	return ""
}

func (s *server) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
