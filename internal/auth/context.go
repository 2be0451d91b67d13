package auth

import (
	"context"
	"errors"

	"github.com/smartdiet/smartdiet/internal/model"
)

var (
	// ErrUnauthenticated means no session was attached to the request.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrRoleRequired means the caller's role is not among those allowed.
	ErrRoleRequired = errors.New("role not permitted")
	// ErrVerificationRequired means a doctor has not been approved yet.
	ErrVerificationRequired = errors.New("doctor verification required")
)

type contextKey struct{}

// ContextWithAuth attaches the caller's identity to ctx.
func ContextWithAuth(ctx context.Context, caller *model.AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, caller)
}

// AuthFromContext returns the caller, or nil on unauthenticated requests.
func AuthFromContext(ctx context.Context) *model.AuthContext {
	caller, _ := ctx.Value(contextKey{}).(*model.AuthContext)
	return caller
}

// MustAuthFromContext returns the caller and panics when the Auth
// middleware has not run. Only handlers mounted behind it may call this.
func MustAuthFromContext(ctx context.Context) *model.AuthContext {
	caller := AuthFromContext(ctx)
	if caller == nil {
		panic("auth: no caller in context; route is missing the Auth middleware")
	}
	return caller
}

// UserIDFromContext returns the caller's user ID, or "".
func UserIDFromContext(ctx context.Context) string {
	if caller := AuthFromContext(ctx); caller != nil {
		return caller.UserID
	}
	return ""
}

// Authorize returns the caller if it holds one of roles. An empty roles
// list admits any signed-in caller.
func Authorize(ctx context.Context, roles ...model.Role) (*model.AuthContext, error) {
	caller := AuthFromContext(ctx)
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	if len(roles) > 0 && !caller.HasRole(roles...) {
		return nil, ErrRoleRequired
	}
	return caller, nil
}

// AuthorizeNutritionist returns the caller if it is an approved doctor.
func AuthorizeNutritionist(ctx context.Context) (*model.AuthContext, error) {
	caller, err := Authorize(ctx, model.RoleDoctor)
	if err != nil {
		return nil, err
	}
	if !caller.IsVerifiedDoctor() {
		return nil, ErrVerificationRequired
	}
	return caller, nil
}
