package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		validation bool
		authz      bool
		conflict   bool
	}{
		{name: "validation", err: NewValidationError("content", "required"), validation: true},
		{name: "wrapped validation", err: fmt.Errorf("send: %w", NewValidationError("content", "required")), validation: true},
		{name: "authorization", err: NewAuthorizationError("update status", "not yours"), authz: true},
		{name: "forbidden sentinel", err: ErrForbidden, authz: true},
		{name: "claim conflict", err: &ConflictError{Op: "claim", Current: "active", Err: ErrClaimConflict}, conflict: true},
		{name: "bare invalid transition", err: ErrInvalidTransition, conflict: true},
		{name: "not found", err: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.validation, IsValidationError(tt.err))
			assert.Equal(t, tt.authz, IsAuthorizationError(tt.err))
			assert.Equal(t, tt.conflict, IsConflict(tt.err))
		})
	}
}

func TestConflictError_Unwrap(t *testing.T) {
	err := fmt.Errorf("controller: %w", &ConflictError{Op: "claim", Current: "active", Err: ErrClaimConflict})
	assert.True(t, errors.Is(err, ErrClaimConflict))
	assert.False(t, errors.Is(err, ErrInvalidTransition))
	assert.Contains(t, err.Error(), "claim conflict (current: active)")
}
