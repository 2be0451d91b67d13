// Package middleware holds the HTTP middleware chain shared by the API,
// the assistant routes and the probes.
package middleware

import (
	"context"
	"net/http"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
)

const (
	// RequestIDHeader carries the per-request correlation ID in both directions.
	RequestIDHeader = "X-Request-ID"
	// TraceIDHeader lets callers without OpenTelemetry propagate their own ID.
	TraceIDHeader = "X-Trace-ID"
)

const maxCorrelationIDLength = 128

type correlationKey int

const (
	requestIDKey correlationKey = iota
	traceIDKey
)

// RequestID tags each request with a correlation ID. A caller supplied
// X-Request-ID is kept when it is short and printable; otherwise a ULID is
// minted so IDs sort by arrival time in the logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !validCorrelationID(id) {
			id = ulid.Make().String()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)

		if traceID := r.Header.Get(TraceIDHeader); validCorrelationID(traceID) {
			w.Header().Set(TraceIDHeader, traceID)
			ctx = context.WithValue(ctx, traceIDKey, traceID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validCorrelationID admits IDs that are safe to echo into headers and logs.
func validCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.' || c == ':':
		default:
			return false
		}
	}
	return true
}

// GetRequestID returns the correlation ID assigned by RequestID, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// GetTraceID prefers the active OpenTelemetry trace and falls back to the
// X-Trace-ID the caller sent.
func GetTraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}
