package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDomainError(t *testing.T) {
	cause := errors.New("underlying")
	err := NewDomainError(ErrorTypeValidation, "bad input", cause)

	assert.Equal(t, ErrorTypeValidation, err.Type)
	assert.Equal(t, "bad input", err.Message)
	assert.Equal(t, cause, err.Err)
	assert.NotNil(t, err.Details)
}

func TestDomainError_Error(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := NewDomainError(ErrorTypeNotFound, "record not found", nil)
		assert.Equal(t, "not_found: record not found", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		err := NewDomainError(ErrorTypeInternal, "query failed", errors.New("connection reset"))
		assert.Equal(t, "internal: query failed (connection reset)", err.Error())
	})
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewDomainError(ErrorTypeInternal, "wrapper", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestDomainError_Is(t *testing.T) {
	t.Run("matches by type", func(t *testing.T) {
		err := NewDomainError(ErrorTypeNotFound, "project not found", nil)
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("different type does not match", func(t *testing.T) {
		err := NewDomainError(ErrorTypeForbidden, "nope", nil)
		assert.NotErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("non-domain target does not match", func(t *testing.T) {
		err := NewDomainError(ErrorTypeNotFound, "x", nil)
		assert.NotErrorIs(t, err, errors.New("x"))
	})
}

func TestDomainError_WithDetail(t *testing.T) {
	err := NewDomainError(ErrorTypeValidation, "bad column", nil).
		WithDetail("column", "status").
		WithDetail("table", "tasks")

	assert.Equal(t, "status", err.Details["column"])
	assert.Equal(t, "tasks", err.Details["table"])
}

func TestErrorTypeCheckers(t *testing.T) {
	testCases := []struct {
		name    string
		err     error
		checker func(error) bool
		want    bool
	}{
		{"not found sentinel", ErrRecordNotFound, IsNotFoundError, true},
		{"wrapped not found", fmt.Errorf("ctx: %w", ErrProjectNotFound), IsNotFoundError, true},
		{"validation sentinel", ErrInvalidFilename, IsValidationError, true},
		{"unauthorized sentinel", ErrInvalidToken, IsUnauthorizedError, true},
		{"forbidden sentinel", ErrNotTenantMember, IsForbiddenError, true},
		{"wrong tenant is forbidden internally", ErrWrongTenant, IsForbiddenError, true},
		{"conflict sentinel", ErrAlreadyMember, IsConflictError, true},
		{"internal sentinel", ErrDatabaseError, IsInternalError, true},
		{"plain error is nothing", errors.New("boom"), IsNotFoundError, false},
		{"nil error is nothing", nil, IsInternalError, false},
		{"cross-type check fails", ErrRecordNotFound, IsForbiddenError, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.checker(tc.err))
		})
	}
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeNotFound, GetErrorType(ErrFileNotFound))
	assert.Equal(t, ErrorTypeForbidden, GetErrorType(ErrForbidden))
	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("plain")))
}

func TestGetErrorDetails(t *testing.T) {
	err := NewDomainError(ErrorTypeValidation, "x", nil).WithDetail("field", "name")
	assert.Equal(t, "name", GetErrorDetails(err)["field"])
	assert.Nil(t, GetErrorDetails(errors.New("plain")))
}

func TestWrapError(t *testing.T) {
	cause := errors.New("io failure")
	err := WrapError(ErrorTypeInternal, "storage write failed", cause)

	assert.True(t, IsInternalError(err))
	assert.ErrorIs(t, err, cause)
}

func TestWrapInternal(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapInternal("failed to persist", cause)

	assert.True(t, IsInternalError(err))
	assert.Contains(t, err.Error(), "failed to persist")
	assert.ErrorIs(t, err, cause)
}
