package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/smartdiet/smartdiet/internal/model"
)

// statusRecorder captures what a handler wrote so the access line can
// report it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.wroteHeader {
		return
	}
	sr.status, sr.wroteHeader = code, true
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.wroteHeader {
		sr.WriteHeader(http.StatusOK)
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// Flush lets event-stream handlers push frames through the wrapper.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// accessEntry is filled in by inner middleware while the request runs.
type accessEntry struct {
	userID string
	role   model.Role
}

type accessEntryKey struct{}

// annotateCaller records the authenticated caller on the pending access
// line. It is a no-op outside Logger.
func annotateCaller(ctx context.Context, caller *model.AuthContext) {
	if entry, ok := ctx.Value(accessEntryKey{}).(*accessEntry); ok && caller != nil {
		entry.userID, entry.role = caller.UserID, caller.Role
	}
}

// probePaths are polled by orchestrators and scrapers; successful hits are
// logged at debug so they do not drown out traffic.
var probePaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// Logger writes one access line per request. Headers and query strings
// are never logged since they may carry session tokens.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := wrapResponseWriter(w)
			entry := &accessEntry{}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), accessEntryKey{}, entry)))

			level := accessLevel(r.URL.Path, rec.status)
			if !logger.Enabled(r.Context(), level) {
				return
			}

			attrs := make([]slog.Attr, 0, 12)
			attrs = append(attrs,
				slog.String("request_id", GetRequestID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", rec.status),
				slog.Int("bytes", rec.bytes),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
				slog.String("remote_addr", ClientIP(r)),
				slog.String("user_agent", r.UserAgent()),
			)
			if entry.userID != "" {
				attrs = append(attrs,
					slog.String("user_id", entry.userID),
					slog.String("role", string(entry.role)),
				)
			}
			if traceID := GetTraceID(r.Context()); traceID != "" {
				attrs = append(attrs, slog.String("trace_id", traceID))
			}

			logger.LogAttrs(r.Context(), level, "http request", attrs...)
		})
	}
}

func accessLevel(path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case probePaths[path]:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
