//go:build js && wasm

package wasm

import (
	"context"
	"errors"
	"net/http"
	"syscall/js"

	"github.com/flatterer/web/internal/logging"
	"github.com/flatterer/web/internal/ui/app"
	"github.com/flatterer/web/internal/ui/bootstrap"
	"github.com/flatterer/web/internal/ui/capability"
	"github.com/flatterer/web/internal/ui/router"
	"github.com/flatterer/web/internal/ui/store"
)

// moduleLoaderName is the page function that loads the flattening module
// and returns a promise.
const moduleLoaderName = "flattererLoadModule"

// RunApp bootstraps the browser application onto #app and blocks forever.
func RunApp() {
	done := make(chan struct{})
	window := js.Global()
	Document = window.Get("document")
	defer release()

	initial, err := InitialState(initialSnapshot())
	if err != nil {
		warn("flatterer: initial state", err.Error())
	}
	// The server's module outcome says nothing about this page.
	initial.Module = store.ModuleState{Status: store.StatusUnloaded}

	source, err := capability.NewHTTPSource(pageHref(), capability.DescriptorName, http.DefaultClient)
	if err != nil {
		warn("flatterer: descriptor url", err.Error())
		return
	}
	routes := router.Default()
	target := newDOMTarget(currentLocation(routes))

	res, err := bootstrap.Start(context.Background(), bootstrap.Options{
		Root:   app.DefaultRoot(),
		Store:  store.NewWithState(initial),
		Router: routes,
		Source: source,
		Loader: capability.LoaderFunc(loadModule),
		Target: target,
		Logger: logging.New(),
	})
	if err != nil {
		warn("flatterer: start", err.Error())
		return
	}

	ui := &browserUI{app: res.App, target: target}
	ui.listen()
	<-done
}

func initialSnapshot() string {
	node := Document.Call("getElementById", "initial-state")
	if !node.Truthy() {
		return ""
	}
	return node.Get("textContent").String()
}

func loadModule(ctx context.Context) error {
	fn := js.Global().Get(moduleLoaderName)
	if fn.Type() != js.TypeFunction {
		return errors.New(moduleLoaderName + " is not defined")
	}
	_, err := await(ctx, fn.Invoke())
	return err
}
