package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/smartdiet/smartdiet/internal/auth"
	"github.com/smartdiet/smartdiet/internal/model"
)

// RequireRole returns middleware that admits callers holding any of roles.
// Must be applied after Auth.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return authorize(func(ctx context.Context) error {
		_, err := auth.Authorize(ctx, roles...)
		return err
	}, "This action requires role "+strings.Join(names, " or "))
}

// RequireVerifiedDoctor admits doctors whose credentials have been approved.
func RequireVerifiedDoctor() func(http.Handler) http.Handler {
	return authorize(func(ctx context.Context) error {
		_, err := auth.AuthorizeNutritionist(ctx)
		return err
	}, "This action requires role doctor")
}

// RequireAdmin admits operator accounts only.
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireRole(model.RoleAdmin)
}

func authorize(check func(context.Context) error, forbidden string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch err := check(r.Context()); {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, auth.ErrUnauthenticated):
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			case errors.Is(err, auth.ErrVerificationRequired):
				writeJSONError(w, http.StatusForbidden, "VERIFICATION_REQUIRED",
					"Your credentials must be verified before using nutritionist features")
			default:
				writeJSONError(w, http.StatusForbidden, "FORBIDDEN", forbidden)
			}
		})
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSONError writes the standard error envelope.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Code: code, Message: message}})
}
