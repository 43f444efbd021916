package store

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownMutation is returned by DecodeMutation for unsupported names.
var ErrUnknownMutation = errors.New("unknown mutation")

// DecodeMutation builds a mutation from its wire name and JSON payload.
// Only the user-facing mutations are accepted; the module load states are
// owned by the capability detector.
func DecodeMutation(name string, payload json.RawMessage) (Mutation, error) {
	switch name {
	case "setSection":
		var m SetSection
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		if m.Section == "" {
			return nil, fmt.Errorf("decode %s: name is required", name)
		}
		return m, nil
	case "setListItem":
		var v string
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return SetListItem(v), nil
	case "setWasm":
		var f Flag
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &f); err != nil {
				return nil, fmt.Errorf("decode %s: %w", name, err)
			}
		}
		return SetWasm(f), nil
	case "set_preview_data":
		if len(payload) > 0 && !json.Valid(payload) {
			return nil, fmt.Errorf("decode %s: invalid JSON", name)
		}
		return SetPreviewData(payload), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMutation, name)
	}
}

// Envelope is the JSON body accepted by the commit endpoint.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}
