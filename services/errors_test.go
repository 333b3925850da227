package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeNotFound, "resource not found", baseErr)

	assert.Equal(t, ErrorTypeNotFound, domainErr.Type)
	assert.Equal(t, "resource not found", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	assert.Equal(t, "not_found: decision not found (db error)",
		NewDomainError(ErrorTypeNotFound, "decision not found", errors.New("db error")).Error())
	assert.Equal(t, "validation: invalid input",
		(&DomainError{Type: ErrorTypeValidation, Message: "invalid input"}).Error())
}

func TestDomainError_Is(t *testing.T) {
	err := NewDomainError(ErrorTypeNotFound, "decision 42 not found", nil)

	assert.True(t, errors.Is(err, ErrDecisionNotFound))
	assert.True(t, errors.Is(err, ErrTemplateNotFound))
	assert.False(t, errors.Is(err, ErrInvalidContext))

	wrapped := fmt.Errorf("lookup: %w", err)
	assert.True(t, errors.Is(wrapped, ErrDecisionNotFound))
	assert.True(t, IsNotFoundError(wrapped))
}

func TestDomainError_Unwrap(t *testing.T) {
	baseErr := errors.New("connection reset")
	err := WrapInternal("failed to insert decision", baseErr)

	assert.True(t, errors.Is(err, baseErr))
	assert.True(t, IsInternalError(err))
	assert.Equal(t, ErrorTypeInternal, GetErrorType(err))
}

func TestDomainError_WithDetail(t *testing.T) {
	err := (&DomainError{Type: ErrorTypeValidation, Message: "bad"}).WithDetail("slaMs", "must be > 0")
	require.NotNil(t, err.Details)
	assert.Equal(t, "must be > 0", GetErrorDetails(err)["slaMs"])
}

func TestValidationFailed(t *testing.T) {
	err := ValidationFailed("invalid task context", nil, map[string]string{
		"slaMs":   "slaMs must be greater than 0",
		"privacy": "privacy must be one of: phi_raw phi_masked deidentified",
	})

	assert.True(t, IsValidationError(err))
	assert.Len(t, err.Details, 2)
	assert.Equal(t, "slaMs must be greater than 0", err.Details["slaMs"])
}

func TestTypeHelpers(t *testing.T) {
	tests := []struct {
		err   error
		check func(error) bool
	}{
		{ErrDecisionNotFound, IsNotFoundError},
		{ErrInvalidEvent, IsValidationError},
		{ErrInvalidToken, IsUnauthorizedError},
		{NewDomainError(ErrorTypeForbidden, "no", nil), IsForbiddenError},
		{ErrRecorderStopped, IsUnavailableError},
		{ErrDatabaseError, IsInternalError},
	}
	for _, tt := range tests {
		t.Run(string(GetErrorType(tt.err)), func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
		})
	}

	plain := errors.New("plain")
	assert.False(t, IsNotFoundError(plain))
	assert.Equal(t, ErrorType(""), GetErrorType(plain))
	assert.Nil(t, GetErrorDetails(plain))
}
