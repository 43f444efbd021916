package module

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/flatterer/web/internal/flatten"
)

// Or returns a Flattener that uses the module once it is loaded and
// exports the flatten ABI, and fallback otherwise.
func (e *Engine) Or(fallback flatten.Flattener) flatten.Flattener {
	return flatten.FlattenerFunc(func(ctx context.Context, r io.Reader, opts flatten.Options) (*flatten.Result, error) {
		if e != nil && e.CanFlatten() {
			Logger().Debug("flatten via module")
			res, err := e.Flatten(ctx, r, opts)
			if err != nil {
				Logger().Warn("module flatten failed", zap.Error(err))
			}
			return res, err
		}
		return fallback.Flatten(ctx, r, opts)
	})
}
