package config

import (
	"bytes"
	"strconv"
	"strings"
)

// Presence is a switch turned on by the variable being set at all, so
// OPEN_BROWSER=1, OPEN_BROWSER=yes and OPEN_BROWSER=true all enable it.
// In config.json it is a plain boolean.
type Presence bool

// UnmarshalText implements encoding.TextUnmarshaler for env parsing.
func (p *Presence) UnmarshalText([]byte) error {
	*p = true
	return nil
}

// UnmarshalJSON accepts a boolean; any other non-null value enables it.
func (p *Presence) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "false", "null", `""`:
		*p = false
	default:
		*p = true
	}
	return nil
}

// LenientInt is an integer setting whose unparsable values are ignored,
// leaving the file value or the default in place.
type LenientInt int64

// UnmarshalText implements encoding.TextUnmarshaler for env parsing.
func (n *LenientInt) UnmarshalText(text []byte) error {
	if v, err := strconv.ParseInt(strings.TrimSpace(string(text)), 10, 64); err == nil {
		*n = LenientInt(v)
	}
	return nil
}

// UnmarshalJSON accepts a number or a numeric string.
func (n *LenientInt) UnmarshalJSON(data []byte) error {
	return n.UnmarshalText(bytes.Trim(bytes.TrimSpace(data), `"`))
}
