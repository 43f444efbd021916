package store

import (
	"encoding/json"
	"maps"
)

// ModuleStatus tracks the external flattening module through its load.
type ModuleStatus string

const (
	StatusUnloaded ModuleStatus = "unloaded"
	StatusLoading  ModuleStatus = "loading"
	StatusLoaded   ModuleStatus = "loaded"
	StatusFailed   ModuleStatus = "failed"
)

// ModuleState is the recorded outcome of the conditional module load.
type ModuleState struct {
	Status ModuleStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// State is the shared UI state.
type State struct {
	Sections    map[string]bool `json:"sections"`
	ListItem    string          `json:"listItem"`
	Wasm        Flag            `json:"wasm"`
	Module      ModuleState     `json:"module"`
	PreviewData json.RawMessage `json:"preview_data"`
}

// Default section keys and list item.
const (
	SectionError    = "error"
	SectionTables   = "tables"
	DefaultListItem = "json-input"
)

// DefaultState returns the state an app starts with. The wasm flag
// defaults to true until detection reports otherwise.
func DefaultState() State {
	return State{
		Sections: map[string]bool{
			SectionError:  false,
			SectionTables: false,
		},
		ListItem:    DefaultListItem,
		Wasm:        FlagTrue,
		Module:      ModuleState{Status: StatusUnloaded},
		PreviewData: json.RawMessage("null"),
	}
}

// Clone returns a deep copy so callers can modify it freely.
func (s State) Clone() State {
	cp := s
	cp.Sections = maps.Clone(s.Sections)
	if cp.Sections == nil {
		cp.Sections = map[string]bool{}
	}
	if s.PreviewData != nil {
		cp.PreviewData = append(json.RawMessage(nil), s.PreviewData...)
	}
	return cp
}

// Section reports a section flag; unknown keys read as false.
func (s State) Section(name string) bool {
	return s.Sections[name]
}

// HasPreview reports whether preview data other than null is present.
func (s State) HasPreview() bool {
	trimmed := string(s.PreviewData)
	return trimmed != "" && trimmed != "null"
}
