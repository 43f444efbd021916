// Package bootstrap assembles and mounts the application: plugins, store,
// router, capability detection, then mount.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flatterer/web/internal/logging"
	"github.com/flatterer/web/internal/ui/app"
	"github.com/flatterer/web/internal/ui/capability"
	"github.com/flatterer/web/internal/ui/plugins"
	"github.com/flatterer/web/internal/ui/router"
	"github.com/flatterer/web/internal/ui/store"
)

const defaultDetectTimeout = 5 * time.Second

// Options configure Start. Only Source is required.
type Options struct {
	Root   app.Root
	Store  *store.Store
	Router *router.Router
	// Source yields wasm.json; Loader loads the module when it says so.
	Source capability.Source
	Loader capability.Loader
	// DetectTimeout bounds detection before mounting.
	DetectTimeout time.Duration
	// Target is mounted after detection. A nil Target leaves the app
	// unmounted for callers that render per request.
	Target app.Target
	Logger logging.Logger
}

// Result is what Start produced.
type Result struct {
	App *app.App
	// DetectErr is the detection or module load error, if any. The app is
	// mounted regardless.
	DetectErr error
}

// Start creates the application, registers the component library,
// installs the store and router, awaits capability detection and mounts
// the app onto opts.Target.
func Start(ctx context.Context, opts Options) (Result, error) {
	if opts.Source == nil {
		return Result{}, errors.New("bootstrap requires a capability source")
	}
	if opts.Store == nil {
		opts.Store = store.New()
	}
	if opts.Router == nil {
		opts.Router = router.Default()
	}
	if opts.DetectTimeout <= 0 {
		opts.DetectTimeout = defaultDetectTimeout
	}

	a := app.New(opts.Root)
	if err := plugins.Register(a); err != nil {
		return Result{}, fmt.Errorf("register plugins: %w", err)
	}
	if err := a.Use(app.WithStore(opts.Store)); err != nil {
		return Result{}, fmt.Errorf("install store: %w", err)
	}
	if err := a.Use(app.WithRouter(opts.Router)); err != nil {
		return Result{}, fmt.Errorf("install router: %w", err)
	}
	if opts.Logger != nil {
		if err := a.Use(app.WithLogger(opts.Logger)); err != nil {
			return Result{}, fmt.Errorf("install logger: %w", err)
		}
	}

	detector := &capability.Detector{
		Source: opts.Source,
		Store:  a.Store(),
		Loader: opts.Loader,
		Logger: opts.Logger,
	}
	detectCtx, cancel := context.WithTimeout(ctx, opts.DetectTimeout)
	detectErr := detector.Run(detectCtx)
	cancel()
	if detectErr != nil {
		logf(opts.Logger, "capability detection: %v", detectErr)
	}

	res := Result{App: a, DetectErr: detectErr}
	if opts.Target == nil {
		return res, nil
	}
	if err := a.Mount(opts.Target); err != nil {
		return res, fmt.Errorf("mount %s: %w", opts.Target.Selector(), err)
	}
	logf(opts.Logger, "mounted %s at %s (wasm=%s)", a.Title(), opts.Target.Path(), a.Store().State().Wasm)
	return res, nil
}

func logf(logger logging.Logger, format string, args ...any) {
	if logger != nil {
		logger.Printf(format, args...)
	}
}
