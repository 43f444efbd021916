package flatten

import (
	"encoding/json"
	"errors"
	"strings"
)

// Guess kinds.
const (
	GuessArray  = "array"
	GuessStream = "stream"
	GuessObject = "object"
)

// Guess classifies the start of a document. For GuessObject the returned
// key names the first top level field holding an array of objects, when
// one is visible in start. Arrays of scalars are ignored.
func Guess(start string) (string, string, error) {
	trimmed := strings.TrimLeft(start, " \t\r\n\ufeff")
	if trimmed == "" {
		return "", "", errors.New("JSON input is empty")
	}
	switch trimmed[0] {
	case '[':
		return GuessArray, "", nil
	case '{':
	default:
		return "", "", errors.New("could not parse JSON: it must start with [ or {")
	}

	dec := newDecoder(strings.NewReader(trimmed))
	first, err := decodeValue(dec)
	if err == nil {
		if dec.More() {
			return GuessStream, "", nil
		}
		if obj, ok := first.(*object); ok {
			for _, key := range obj.keys {
				if items, isArray := obj.values[key].([]any); isArray && holdsObject(items) {
					return GuessObject, key, nil
				}
			}
		}
		return GuessObject, "", nil
	}
	return GuessObject, arrayKeyPrefix(trimmed), nil
}

func holdsObject(items []any) bool {
	for _, item := range items {
		if _, ok := item.(*object); ok {
			return true
		}
	}
	return false
}

// arrayKeyPrefix scans a possibly truncated object for the first top
// level key whose value opens an array starting with an object.
func arrayKeyPrefix(doc string) string {
	dec := json.NewDecoder(strings.NewReader(doc))
	if _, err := dec.Token(); err != nil {
		return ""
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return ""
		}
		key, ok := keyTok.(string)
		if !ok {
			return ""
		}
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		delim, ok := tok.(json.Delim)
		if !ok {
			continue
		}
		if delim != '[' {
			if err := skipValue(dec); err != nil {
				return ""
			}
			continue
		}
		elem, err := dec.Token()
		if err != nil {
			return ""
		}
		switch elem {
		case json.Delim('{'):
			return key
		case json.Delim(']'):
			continue
		case json.Delim('['):
			if err := skipValue(dec); err != nil {
				return ""
			}
		}
		if err := skipValue(dec); err != nil {
			return ""
		}
	}
	return ""
}

func skipValue(dec *json.Decoder) error {
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if delim, ok := tok.(json.Delim); ok {
			switch delim {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}
