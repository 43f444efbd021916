package logging

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Categories used for log routing.
const (
	CategoryGeneral = "general"
	CategoryHTTP    = "http"
	CategoryConvert = "convert"
	CategoryModule  = "module"
)

// event is one entry of a {"logevents":[...]} envelope. The exchange
// fields are only filled for the http category.
type event struct {
	Time     string          `json:"time"`
	ID       string          `json:"id,omitempty"`
	Category string          `json:"category,omitempty"`
	Message  string          `json:"message"`
	Source   string          `json:"source,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"`
	exchange
}

// exchange describes one side of an HTTP request/response pair.
type exchange struct {
	Direction     string `json:"direction,omitempty"`
	Method        string `json:"method,omitempty"`
	Path          string `json:"path,omitempty"`
	Query         string `json:"query,omitempty"`
	Host          string `json:"host,omitempty"`
	Proto         string `json:"proto,omitempty"`
	UserAgent     string `json:"userAgent,omitempty"`
	Referer       string `json:"referer,omitempty"`
	Remote        string `json:"remote,omitempty"`
	Status        int    `json:"status,omitempty"`
	ResponseBytes int64  `json:"responseBytes,omitempty"`
	DurationMs    int64  `json:"durationMs,omitempty"`
}

type envelope struct {
	Events []event `json:"logevents"`
}

func exchangeOf(r *http.Request, direction string) exchange {
	return exchange{
		Direction: direction,
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     r.URL.RawQuery,
		Host:      r.Host,
		Proto:     r.Proto,
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
		Remote:    r.RemoteAddr,
	}
}

// rawJSON keeps JSON text as is and quotes anything else.
func rawJSON(text string) json.RawMessage {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if json.Valid([]byte(text)) {
		return json.RawMessage(text)
	}
	quoted, err := json.Marshal(text)
	if err != nil {
		return nil
	}
	return quoted
}
