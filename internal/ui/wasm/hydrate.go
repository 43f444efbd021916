package wasm

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/flatterer/web/internal/ui/router"
	"github.com/flatterer/web/internal/ui/store"
)

// Form actions the browser handles without a round trip.
const (
	ActionSelect  = "/select"
	ActionSection = "/section"
	ActionConvert = "/convert"
)

// InitialState decodes the snapshot the server embeds in #initial-state.
// Keys missing from the snapshot keep their defaults; an empty snapshot
// yields the default state.
func InitialState(text string) (store.State, error) {
	st := store.DefaultState()
	if strings.TrimSpace(text) == "" {
		return st, nil
	}
	if err := json.Unmarshal([]byte(text), &st); err != nil {
		return store.DefaultState(), fmt.Errorf("decode initial state: %w", err)
	}
	if st.Sections == nil {
		st.Sections = store.DefaultState().Sections
	}
	if len(st.PreviewData) == 0 {
		st.PreviewData = json.RawMessage("null")
	}
	return st, nil
}

// FormMutation maps a local form post to the store mutation it stands
// for. Forms it does not recognise are left to the server.
func FormMutation(action string, values url.Values) (store.Mutation, bool) {
	switch action {
	case ActionSelect:
		return store.SetListItem(values.Get("item")), true
	case ActionSection:
		name := strings.TrimSpace(values.Get("name"))
		value, err := strconv.ParseBool(values.Get("value"))
		if name == "" || err != nil {
			return nil, false
		}
		return store.SetSection{Section: name, Value: value}, true
	}
	return nil, false
}

// InternalPath reports whether href, resolved against base, is a
// same-origin link to a route r knows, returning the path to navigate to.
func InternalPath(r *router.Router, base, href string) (string, bool) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	target := baseURL.ResolveReference(ref)
	if target.Scheme != baseURL.Scheme || target.Host != baseURL.Host {
		return "", false
	}
	location := target.Path
	if r.Mode() == router.ModeHash && target.Fragment != "" {
		location = target.Path + "#" + target.Fragment
	}
	if _, ok := r.Resolve(location); !ok {
		return "", false
	}
	if r.Mode() == router.ModeHash {
		return location, true
	}
	return target.Path, true
}
