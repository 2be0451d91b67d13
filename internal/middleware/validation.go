// Package middleware provides HTTP middleware for the SmartDiet API.
package middleware

import (
	"errors"
	"mime"
	"net/http"
	"strings"
)

// Request body limits.
const (
	// MaxJSONBodySize bounds JSON request bodies.
	MaxJSONBodySize = 1 << 20

	// MaxWebhookURLLength is the maximum length for webhook URLs.
	MaxWebhookURLLength = 1024
)

// Validation errors.
var (
	ErrWebhookURLTooLong = errors.New("webhook URL exceeds maximum length")
	ErrWebhookURLScheme  = errors.New("webhook URL must use http or https")
)

// RequireJSON rejects write requests whose body is not JSON with 415.
// Requests without a body pass through.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength == 0 {
			next.ServeHTTP(w, r)
			return
		}

		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || !isJSONMediaType(mediaType) {
			writeJSONError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE",
				"Content-Type must be application/json")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isJSONMediaType(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// ValidateWebhookURL performs the cheap syntactic checks on a webhook
// target. Network level checks are done by webhook.TargetPolicy.
func ValidateWebhookURL(url string) error {
	if len(url) > MaxWebhookURLLength {
		return ErrWebhookURLTooLong
	}
	lower := strings.ToLower(url)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return ErrWebhookURLScheme
	}
	return nil
}
