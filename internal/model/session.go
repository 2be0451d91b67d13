package model

import (
	"slices"
	"time"
)

// RateLimitConfig defines rate limit parameters for a class of caller.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// RoleRateLimits maps roles to their API rate limits.
var RoleRateLimits = map[Role]RateLimitConfig{
	RoleUser:    {RequestsPerMinute: 60, Burst: 10},
	RolePatient: {RequestsPerMinute: 120, Burst: 20},
	RoleDoctor:  {RequestsPerMinute: 300, Burst: 50},
	RoleAdmin:   {RequestsPerMinute: 0, Burst: 0}, // 0 means unlimited
}

// Session represents a login session. The bearer token itself is never stored.
type Session struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	TokenHash   string     `json:"-"`
	TokenPrefix string     `json:"token_prefix"`
	UserAgent   string     `json:"user_agent,omitempty"`
	ClientIP    string     `json:"-"`
	ExpiresAt   time.Time  `json:"expires_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsRevoked returns true if the session has been logged out.
func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

// IsExpired returns true if the session is past its expiry at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// IsUsable reports whether the session can authenticate a request at now.
func (s *Session) IsUsable(now time.Time) bool {
	return !s.IsRevoked() && !s.IsExpired(now)
}

// AuthContext holds authenticated request context.
// This is injected into the request context by auth middleware.
type AuthContext struct {
	SessionID          string             `json:"session_id"`
	TokenPrefix        string             `json:"token_prefix"`
	UserID             string             `json:"user_id"`
	Name               string             `json:"name"`
	Email              string             `json:"email"`
	Role               Role               `json:"role"`
	VerificationStatus VerificationStatus `json:"verification_status,omitempty"`
	ExpiresAt          time.Time          `json:"expires_at"`
}

// HasRole reports whether the caller holds one of roles.
func (a *AuthContext) HasRole(roles ...Role) bool {
	return slices.Contains(roles, a.Role)
}

// IsVerifiedDoctor reports whether the caller may use nutritionist operations.
func (a *AuthContext) IsVerifiedDoctor() bool {
	return a.Role == RoleDoctor && a.VerificationStatus == VerificationVerified
}

// GetRateLimitConfig returns the rate limit configuration for the caller.
func (a *AuthContext) GetRateLimitConfig() RateLimitConfig {
	if config, ok := RoleRateLimits[a.Role]; ok {
		return config
	}
	return RoleRateLimits[RoleUser]
}
