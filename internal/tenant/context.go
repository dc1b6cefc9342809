package tenant

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	tenantKey contextKey = "tenant"
	userKey   contextKey = "user"
)

// WithTenant attaches the tenant ID to the request context.
func WithTenant(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantKey, id)
}

func IDFromContext(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(tenantKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

func WithUser(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userKey, id)
}

func UserIDFromContext(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(userKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}
