package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// statusRecorder captures what a handler wrote so the logging, tracing and
// metrics middleware can describe the response after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

// record wraps w, reusing an existing recorder so stacked middleware share
// one wrapper.
func record(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// problem reports whether the response is an RFC 7807 document.
func (rw *statusRecorder) problem() bool {
	return strings.HasPrefix(rw.Header().Get("Content-Type"), "application/problem+json")
}

// routePattern returns the matched chi route pattern, or the raw path when
// the request was not routed by chi. Only valid after the handler has run.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// vesselParam returns the {vesselId} URL parameter of a routed request.
func vesselParam(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.URLParam("vesselId")
	}
	return ""
}
