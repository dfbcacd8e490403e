package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	err := NewNotFoundError("partner")
	assert.Equal(t, "NOT_FOUND: partner not found", err.Error())

	wrapped := NewTransientError("transaction timed out", errors.New("context deadline exceeded"))
	assert.Equal(t, "TRANSIENT: transaction timed out: context deadline exceeded", wrapped.Error())
}

func TestHelpers_SeeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("mark paid: %w", NewAlreadyTerminalError("le_1", "paid"))

	assert.True(t, IsAlreadyTerminal(err))
	assert.False(t, IsDuplicateInvoice(err))
	assert.Equal(t, ErrCodeAlreadyTerminal, GetErrorCode(err))
}

func TestHelpers_Classification(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", NewNotFoundError("code"), IsNotFound},
		{"validation", NewValidationError("bad"), IsValidation},
		{"unauthorized", NewUnauthorizedError(), IsUnauthorized},
		{"forbidden", NewForbiddenError("no"), IsForbidden},
		{"internal", NewInternalError(errors.New("boom")), IsInternal},
		{"conflict", NewConflictError("dup"), IsConflict},
		{"transient", NewTransientError("retry", nil), IsTransient},
		{"duplicate invoice", NewDuplicateInvoiceError("p1", "in_1"), IsDuplicateInvoice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
		})
	}
}

func TestGetErrorCode_PlainError(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, GetErrorCode(errors.New("plain")))
}

func TestMessage(t *testing.T) {
	err := fmt.Errorf("accrue: %w", NewValidationError("currency must be a 3-letter code"))
	assert.Equal(t, "currency must be a 3-letter code", Message(err))
	assert.Empty(t, Message(errors.New("plain")))
}
