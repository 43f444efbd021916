package logging

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxLoggedResponseBody = 4096

type requestIDKey struct{}

var contextRequestIDKey requestIDKey

// WithHTTPLogging wraps the provided handler so every request/response pair
// is logged as one envelope in the http category.
func WithHTTPLogging(next http.Handler, logger Logger) http.Handler {
	if logger == nil || next == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.ToUpper(uuid.New().String())
		events := make([]event, 0, 2)
		// Upload bodies can be hundreds of megabytes; only headers are dumped.
		if dump, err := httputil.DumpRequest(r, false); err == nil {
			events = append(events, event{
				Time:     time.Now().UTC().Format(time.RFC3339Nano),
				ID:       requestID,
				Category: CategoryHTTP,
				Message:  fmt.Sprintf("Incoming request from %s", r.RemoteAddr),
				Raw:      rawJSON(string(dump)),
				exchange: exchangeOf(r, "request"),
			})
		} else {
			logger.Printf("failed to dump request from %s: %v", r.RemoteAddr, err)
		}

		r = r.WithContext(context.WithValue(r.Context(), contextRequestIDKey, requestID))

		lrw := newLoggingResponseWriter(w)
		lrw.Header().Set("X-Request-ID", requestID)
		start := time.Now()
		defer func() {
			status := lrw.StatusCode()
			raw := lrw.LoggedBody()
			if ct := lrw.Header().Get("Content-Type"); !loggableContentType(ct) && raw != "" {
				raw = fmt.Sprintf("%s body omitted (%s)", contentLabel(ct), requestURL(r))
			}
			resp := exchangeOf(r, "response")
			resp.Status = status
			resp.ResponseBytes = lrw.BytesWritten()
			resp.DurationMs = time.Since(start).Milliseconds()
			events = append(events, event{
				Time:     time.Now().UTC().Format(time.RFC3339Nano),
				ID:       requestID,
				Category: CategoryHTTP,
				Message:  fmt.Sprintf("Response for %s %s (%d %s)", r.Method, r.URL.Path, status, http.StatusText(status)),
				Raw:      rawJSON(raw),
				exchange: resp,
			})
			emit(logger, events...)
		}()

		next.ServeHTTP(lrw, r)
	})
}

func loggableContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "" {
		return true
	}
	return strings.HasPrefix(ct, "application/json") ||
		strings.HasPrefix(ct, "text/plain") ||
		strings.HasPrefix(ct, "text/csv")
}

func contentLabel(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "text/html"):
		return "HTML"
	case ct == "":
		return "response"
	default:
		if idx := strings.Index(ct, ";"); idx >= 0 {
			ct = ct[:idx]
		}
		return strings.TrimSpace(ct)
	}
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, r.Host, r.URL.RequestURI())
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status       int
	buf          bytes.Buffer
	truncated    bool
	bytesWritten int64
}

func newLoggingResponseWriter(w http.ResponseWriter) *loggingResponseWriter {
	return &loggingResponseWriter{ResponseWriter: w}
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	if lrw.buf.Len() < maxLoggedResponseBody {
		remaining := maxLoggedResponseBody - lrw.buf.Len()
		if len(b) > remaining {
			lrw.buf.Write(b[:remaining])
			lrw.truncated = true
		} else {
			lrw.buf.Write(b)
		}
	} else {
		lrw.truncated = true
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.bytesWritten += int64(n)
	return n, err
}

func (lrw *loggingResponseWriter) StatusCode() int {
	if lrw.status == 0 {
		return http.StatusOK
	}
	return lrw.status
}

func (lrw *loggingResponseWriter) LoggedBody() string {
	body := lrw.buf.String()
	if lrw.truncated {
		return fmt.Sprintf("%s\n-- response truncated after %d bytes --", body, maxLoggedResponseBody)
	}
	return body
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (lrw *loggingResponseWriter) BytesWritten() int64 {
	return lrw.bytesWritten
}

// RequestIDFromContext extracts the request ID stored by WithHTTPLogging.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(contextRequestIDKey).(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
