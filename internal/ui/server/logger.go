package server

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/flatterer/web/internal/logging"
)

// logRequests writes one general log line per request, tagged with the
// request id assigned by logging.WithHTTPLogging.
func logRequests(logger logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		duration := time.Since(start).Truncate(time.Millisecond)
		msg := fmt.Sprintf("[http-request] %s %s host=%s duration=%s ua=%q", r.Method, r.URL.Path, r.Host, duration, r.UserAgent())
		if logger == nil {
			log.Print(msg)
			return
		}
		if id := logging.RequestIDFromContext(r.Context()); strings.TrimSpace(id) != "" {
			logger.Printf("%s id=%s", msg, id)
			return
		}
		logger.Printf("%s", msg)
	})
}
