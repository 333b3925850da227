// Package shared carries request-scoped values between the HTTP layer and services.
package shared

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
)

// Context keys for request-scoped data. Keep types unexported to avoid collisions.
type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request-id"
	ctxKeySubject   ctxKey = "subject"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// RequestID returns the request ID stored by WithRequestID, falling back to the
// one chi's RequestID middleware generated.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRequestID).(string); ok && v != "" {
		return v
	}
	return middleware.GetReqID(ctx)
}

// WithSubject records the authenticated caller (the token subject).
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ctxKeySubject, subject)
}

func Subject(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeySubject).(string)
	return v
}
