package store

import "bytes"

// Flag is a boolean that may also be undefined, mirroring a JSON field
// that is true, false or absent.
type Flag int8

const (
	FlagUndefined Flag = iota
	FlagFalse
	FlagTrue
)

// FlagOf converts a plain bool.
func FlagOf(v bool) Flag {
	if v {
		return FlagTrue
	}
	return FlagFalse
}

// True reports whether the flag is defined and true.
func (f Flag) True() bool { return f == FlagTrue }

// Defined reports whether the flag holds a boolean.
func (f Flag) Defined() bool { return f == FlagTrue || f == FlagFalse }

func (f Flag) String() string {
	switch f {
	case FlagTrue:
		return "true"
	case FlagFalse:
		return "false"
	default:
		return "undefined"
	}
}

// MarshalJSON encodes an undefined flag as null.
func (f Flag) MarshalJSON() ([]byte, error) {
	if !f.Defined() {
		return []byte("null"), nil
	}
	return []byte(f.String()), nil
}

// UnmarshalJSON accepts true or false. Any other JSON value (null,
// strings, numbers) leaves the flag undefined without error.
func (f *Flag) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true":
		*f = FlagTrue
	case "false":
		*f = FlagFalse
	default:
		*f = FlagUndefined
	}
	return nil
}
