//go:build js && wasm

package wasm

import (
	"context"
	"net/url"
	"syscall/js"
	"time"

	"github.com/flatterer/web/internal/ui/app"
	"github.com/flatterer/web/internal/ui/router"
	"github.com/flatterer/web/internal/ui/store"
)

const convertTimeout = 10 * time.Minute

// browserUI routes page events into the app.
type browserUI struct {
	app    *app.App
	target *domTarget
}

func (ui *browserUI) listen() {
	onClick := js.FuncOf(func(this js.Value, args []js.Value) any {
		ui.handleClick(firstArg(args))
		return nil
	})
	onSubmit := js.FuncOf(func(this js.Value, args []js.Value) any {
		ui.handleSubmit(firstArg(args))
		return nil
	})
	onPopState := js.FuncOf(func(this js.Value, args []js.Value) any {
		ui.navigate(currentLocation(ui.app.Router()))
		return nil
	})
	Document.Call("addEventListener", "click", onClick)
	Document.Call("addEventListener", "submit", onSubmit)
	js.Global().Call("addEventListener", "popstate", onPopState)
	Handlers = append(Handlers, onClick, onSubmit, onPopState)
}

func (ui *browserUI) handleClick(ev js.Value) {
	if ev.Get("defaultPrevented").Bool() || ev.Get("button").Int() != 0 {
		return
	}
	for _, key := range []string{"metaKey", "ctrlKey", "shiftKey", "altKey"} {
		if ev.Get(key).Bool() {
			return
		}
	}
	target := ev.Get("target")
	if target.Get("closest").Type() != js.TypeFunction {
		return
	}
	link := target.Call("closest", "a[href]")
	if !link.Truthy() || link.Call("hasAttribute", "download").Bool() || link.Get("target").String() == "_blank" {
		return
	}
	path, ok := InternalPath(ui.app.Router(), pageHref(), link.Get("href").String())
	if !ok {
		return
	}
	ev.Call("preventDefault")
	js.Global().Get("history").Call("pushState", js.Null(), "", path)
	ui.navigate(path)
}

func (ui *browserUI) handleSubmit(ev js.Value) {
	form := ev.Get("target")
	if !form.Truthy() || form.Get("tagName").String() != "FORM" {
		return
	}
	action := formAction(form)
	if m, ok := FormMutation(action, formValues(form)); ok {
		ev.Call("preventDefault")
		ui.app.Store().Commit(m)
		return
	}
	if action == ActionConvert {
		ev.Call("preventDefault")
		body := js.Global().Get("FormData").New(form)
		go ui.convert(body)
	}
}

func (ui *browserUI) navigate(path string) {
	ui.target.setPath(path)
	if _, err := ui.app.RenderTo(ui.target); err != nil {
		warn("flatterer: render", path, err.Error())
	}
}

// convert posts the form to the conversion API and records the preview in
// the store; the mounted app re-renders on each commit.
func (ui *browserUI) convert(body js.Value) {
	ctx, cancel := context.WithTimeout(context.Background(), convertTimeout)
	defer cancel()

	fetchOpts := map[string]any{"method": "POST", "body": body}
	resp, err := await(ctx, js.Global().Call("fetch", "/api/convert?output_format=preview", fetchOpts))
	if err != nil {
		ui.commitPreview(false, []byte(err.Error()))
		return
	}
	text, err := await(ctx, resp.Call("text"))
	if err != nil {
		ui.commitPreview(false, []byte(err.Error()))
		return
	}
	ui.commitPreview(resp.Get("ok").Bool(), []byte(text.String()))
}

func (ui *browserUI) commitPreview(ok bool, body []byte) {
	st := ui.app.Store()
	for _, m := range store.PreviewResult(ok, body) {
		st.Commit(m)
	}
}

func pageHref() string {
	return js.Global().Get("location").Get("href").String()
}

func currentLocation(r *router.Router) string {
	location := js.Global().Get("location")
	path := location.Get("pathname").String()
	if r.Mode() == router.ModeHash {
		path += location.Get("hash").String()
	}
	return path
}

func formAction(form js.Value) string {
	attr := form.Call("getAttribute", "action")
	if attr.IsNull() {
		return ""
	}
	u, err := url.Parse(pageHref())
	if err != nil {
		return ""
	}
	ref, err := url.Parse(attr.String())
	if err != nil {
		return ""
	}
	return u.ResolveReference(ref).Path
}

// formValues collects the string entries of a form; file entries are
// skipped.
func formValues(form js.Value) url.Values {
	values := url.Values{}
	entries := js.Global().Get("Array").Call("from", js.Global().Get("FormData").New(form).Call("entries"))
	for i := 0; i < entries.Length(); i++ {
		entry := entries.Index(i)
		value := entry.Index(1)
		if value.Type() != js.TypeString {
			continue
		}
		values.Add(entry.Index(0).String(), value.String())
	}
	return values
}
