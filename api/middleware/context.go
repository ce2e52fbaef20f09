package middleware

import (
	"context"

	"github.com/dropone-app/dropone-backend/pkg/enums"
)

type contextKey string

const (
	ctxSellerEmail contextKey = "seller_email"
	ctxRole        contextKey = "actor_role"
	ctxTokenID     contextKey = "token_id"
	ctxRequestID   contextKey = "request_id"
)

// SellerEmailFromContext returns the authenticated account email, or "".
func SellerEmailFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxSellerEmail).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) enums.AccountRole {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(enums.AccountRole); ok {
		return v
	}
	return ""
}

func TokenIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxTokenID).(string); ok {
		return v
	}
	return ""
}

// RequestIDFromContext returns the ID assigned by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(ctxRequestID).(string)
	return v
}

// WithIdentity injects the authenticated account into the context.
func WithIdentity(ctx context.Context, email string, role enums.AccountRole) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxSellerEmail, email)
	return context.WithValue(ctx, ctxRole, role)
}
