package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/smartdiet/smartdiet/internal/auth"
	"github.com/smartdiet/smartdiet/internal/metrics"
	"github.com/smartdiet/smartdiet/internal/model"
)

// minAuthFailureDuration is the minimum time spent on a rejected token.
const minAuthFailureDuration = 200 * time.Millisecond

// SessionStore is the persistent side of session lookup.
type SessionStore interface {
	GetSessionsByPrefix(ctx context.Context, prefix string) ([]*model.Session, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateSessionLastUsed(ctx context.Context, id string) error
}

// AuthCache caches resolved sessions by token hash.
type AuthCache interface {
	GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error)
	SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger   *slog.Logger
	Sessions SessionStore
	Cache    AuthCache
	Metrics  metrics.Recorder

	// MinFailureDuration overrides minAuthFailureDuration when non-zero.
	MinFailureDuration time.Duration
}

// Auth returns a middleware that authenticates requests by session token.
// The token is taken from "Authorization: Bearer" or, for event streams,
// the access_token query parameter.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	minFailure := cfg.MinFailureDuration
	if minFailure == 0 {
		minFailure = minAuthFailureDuration
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()
			fail := func(reason string) {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", reason),
					slog.String("ip", ClientIP(r)),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				if elapsed := time.Since(startTime); elapsed < minFailure {
					time.Sleep(minFailure - elapsed)
				}
				writeAuthError(w)
			}

			token := extractSessionToken(r)
			if token == "" {
				fail("missing_token")
				return
			}

			parsed, err := auth.ParseSessionToken(token)
			if err != nil {
				fail("invalid_format")
				return
			}

			cacheKey := auth.QuickHash(token)
			if cfg.Cache != nil {
				if authCtx, err := cfg.Cache.GetAuthContext(r.Context(), cacheKey); err == nil && authCtx != nil {
					recorder.IncSessionCacheHit()
					annotateCaller(r.Context(), authCtx)
					ctx := auth.ContextWithAuth(r.Context(), authCtx)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}
			recorder.IncSessionCacheMiss()

			sessions, err := cfg.Sessions.GetSessionsByPrefix(r.Context(), parsed.Prefix)
			if err != nil {
				cfg.Logger.Error("database error during auth",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			// Several sessions may share a prefix; verify each hash.
			var matched *model.Session
			for _, s := range sessions {
				ok, err := auth.VerifyToken(token, s.TokenHash)
				if err == nil && ok {
					matched = s
					break
				}
			}
			if matched == nil || !matched.IsUsable(time.Now()) {
				fail("invalid_token")
				return
			}

			user, err := cfg.Sessions.GetUserByID(r.Context(), matched.UserID)
			if err != nil {
				fail("user_lookup")
				return
			}

			authCtx := NewAuthContext(matched, user)
			if cfg.Cache != nil {
				if err := cfg.Cache.SetAuthContext(r.Context(), cacheKey, authCtx); err != nil {
					cfg.Logger.Warn("failed to cache session", slog.String("error", err.Error()))
				}
			}

			sessionID := matched.ID
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = cfg.Sessions.UpdateSessionLastUsed(ctx, sessionID)
			}()

			cfg.Logger.Debug("session authenticated",
				slog.String("session_id", authCtx.SessionID),
				slog.String("user_id", authCtx.UserID),
				slog.String("role", string(authCtx.Role)),
				slog.Bool("cache_hit", false),
				slog.String("request_id", GetRequestID(r.Context())),
			)

			annotateCaller(r.Context(), authCtx)
			ctx := auth.ContextWithAuth(r.Context(), authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewAuthContext builds the request identity for a session and its owner.
func NewAuthContext(session *model.Session, user *model.User) *model.AuthContext {
	return &model.AuthContext{
		SessionID:          session.ID,
		TokenPrefix:        session.TokenPrefix,
		UserID:             user.ID,
		Name:               user.Name,
		Email:              user.Email,
		Role:               user.Role,
		VerificationStatus: user.VerificationStatus,
		ExpiresAt:          session.ExpiresAt,
	}
}

// BearerToken returns the session token carried by r, or "".
func BearerToken(r *http.Request) string {
	return extractSessionToken(r)
}

func extractSessionToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if strings.HasPrefix(header, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		}
		return ""
	}
	// EventSource cannot set headers.
	if r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

// writeAuthError writes a 401 Unauthorized response.
// Uses the same message for all auth failures to prevent enumeration.
func writeAuthError(w http.ResponseWriter) {
	writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing session token")
}
