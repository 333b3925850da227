package shared

import (
	"context"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))

	chiCtx := context.WithValue(ctx, middleware.RequestIDKey, "chi-42")
	assert.Equal(t, "chi-42", RequestID(chiCtx))

	assert.Equal(t, "explicit", RequestID(WithRequestID(chiCtx, "explicit")))
	assert.Equal(t, "chi-42", RequestID(WithRequestID(chiCtx, "")))
}

func TestSubject(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, Subject(ctx))
	assert.Equal(t, "scanner-7", Subject(WithSubject(ctx, "scanner-7")))
}
