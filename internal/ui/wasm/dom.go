//go:build js && wasm

package wasm

import (
	"context"
	"errors"
	"sync"
	"syscall/js"

	"github.com/flatterer/web/internal/ui/app"
)

var (
	// Document is the page's document object.
	Document js.Value
	// Handlers holds the event callbacks installed on the page so they can
	// be released when the app stops.
	Handlers []js.Func
)

// domTarget renders into the #app element of the live page.
type domTarget struct {
	mu   sync.Mutex
	path string
}

func newDOMTarget(path string) *domTarget {
	return &domTarget{path: path}
}

func (t *domTarget) Selector() string { return app.MountSelector }

func (t *domTarget) Path() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.path
}

func (t *domTarget) setPath(path string) {
	t.mu.Lock()
	t.path = path
	t.mu.Unlock()
}

func (t *domTarget) Render(page app.Page) error {
	root := Document.Call("querySelector", t.Selector())
	if !root.Truthy() {
		return app.ErrNoMountTarget
	}
	root.Set("innerHTML", page.HTML)
	if page.Title != "" {
		Document.Set("title", page.Title)
	}
	return nil
}

// await blocks until promise settles. It must not be called from a js
// callback's own goroutine.
func await(ctx context.Context, promise js.Value) (js.Value, error) {
	type settled struct {
		value js.Value
		err   error
	}
	ch := make(chan settled, 1)
	onResolve := js.FuncOf(func(this js.Value, args []js.Value) any {
		ch <- settled{value: firstArg(args)}
		return nil
	})
	onReject := js.FuncOf(func(this js.Value, args []js.Value) any {
		ch <- settled{err: jsError(firstArg(args))}
		return nil
	})
	defer onResolve.Release()
	defer onReject.Release()

	promise.Call("then", onResolve, onReject)
	select {
	case res := <-ch:
		return res.value, res.err
	case <-ctx.Done():
		return js.Undefined(), ctx.Err()
	}
}

func firstArg(args []js.Value) js.Value {
	if len(args) == 0 {
		return js.Undefined()
	}
	return args[0]
}

func jsError(v js.Value) error {
	if v.Type() == js.TypeObject && v.Get("message").Type() == js.TypeString {
		return errors.New(v.Get("message").String())
	}
	return errors.New(v.String())
}

func warn(args ...any) {
	js.Global().Get("console").Call("warn", args...)
}

func release() {
	for _, fn := range Handlers {
		fn.Release()
	}
	Handlers = nil
}
