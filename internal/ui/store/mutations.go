package store

import (
	"encoding/json"
	"strings"
)

// Mutation is a named, synchronous state transition. Apply receives a
// private copy of the state and returns the next state.
type Mutation interface {
	Name() string
	Apply(State) State
}

// SetSection sets one section flag, leaving the others unchanged.
type SetSection struct {
	Section string `json:"name"`
	Value   bool   `json:"value"`
}

func (SetSection) Name() string { return "setSection" }

func (m SetSection) Apply(s State) State {
	s.Sections[m.Section] = m.Value
	return s
}

// SetListItem selects the active input panel. The value is stored verbatim.
type SetListItem string

func (SetListItem) Name() string { return "setListItem" }

func (m SetListItem) Apply(s State) State {
	s.ListItem = string(m)
	return s
}

// SetWasm records the detected capability flag.
type SetWasm Flag

func (SetWasm) Name() string { return "setWasm" }

func (m SetWasm) Apply(s State) State {
	s.Wasm = Flag(m)
	return s
}

// SetPreviewData replaces the preview payload wholesale.
type SetPreviewData json.RawMessage

func (SetPreviewData) Name() string { return "set_preview_data" }

func (m SetPreviewData) Apply(s State) State {
	if len(m) == 0 {
		s.PreviewData = json.RawMessage("null")
		return s
	}
	s.PreviewData = append(json.RawMessage(nil), m...)
	return s
}

// ModuleLoading marks the start of a module load.
type ModuleLoading struct{}

func (ModuleLoading) Name() string { return "moduleLoading" }

func (ModuleLoading) Apply(s State) State {
	s.Module = ModuleState{Status: StatusLoading}
	return s
}

// ModuleLoaded marks a successful module load.
type ModuleLoaded struct{}

func (ModuleLoaded) Name() string { return "moduleLoaded" }

func (ModuleLoaded) Apply(s State) State {
	s.Module = ModuleState{Status: StatusLoaded}
	return s
}

// ModuleFailed records a failed module load.
type ModuleFailed struct {
	Err error
}

func (ModuleFailed) Name() string { return "moduleFailed" }

func (m ModuleFailed) Apply(s State) State {
	msg := "module load failed"
	if m.Err != nil {
		msg = m.Err.Error()
	}
	s.Module = ModuleState{Status: StatusFailed, Error: msg}
	return s
}

// PreviewResult is the commit sequence recording a preview conversion:
// body becomes preview_data and ok selects the tables or the error
// section. A body that is not JSON is stored as {"error": body}.
func PreviewResult(ok bool, body []byte) []Mutation {
	if !json.Valid(body) {
		body, _ = json.Marshal(map[string]string{"error": strings.TrimSpace(string(body))})
	}
	return []Mutation{
		SetPreviewData(body),
		SetSection{Section: SectionError, Value: !ok},
		SetSection{Section: SectionTables, Value: ok},
	}
}
