package domain_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/satscex/exchange/internal/domain"
)

// TestErrorPredicates_Classification checks that each sentinel in the table
// lands in exactly one of the taxonomy predicates — the HTTP layer's
// respondServiceError switch assumes these are mutually exclusive. Sentinels
// outside the table are not checked here.
func TestErrorPredicates_Classification(t *testing.T) {
	cases := []struct {
		err         error
		notFound    bool
		validation  bool
		conflict    bool
		insufficient bool
		auth        bool
	}{
		{domain.ErrMarketNotFound, true, false, false, false, false},
		{domain.ErrOrderNotFound, true, false, false, false, false},
		{domain.ErrUserNotFound, true, false, false, false, false},
		{domain.ErrInvalidSide, false, true, false, false, false},
		{domain.ErrInvalidPrice, false, true, false, false, false},
		{domain.ErrAmountTooSmall, false, true, false, false, false},
		{domain.ErrMarketUnavailable, false, true, false, false, false},
		{domain.ErrNotOwner, false, true, false, false, false},
		{domain.ErrOrderTerminal, false, true, false, false, false},
		{domain.ErrSerializationFailure, false, false, true, false, false},
		{domain.ErrServiceBusy, false, false, true, false, false},
		{domain.ErrMarketAlreadyResolved, false, false, true, false, false},
		{domain.ErrInsufficientFunds, false, false, false, true, false},
		{domain.ErrUnauthorized, false, false, false, false, true},
		{domain.ErrForbidden, false, false, false, false, true},
		{domain.ErrTokenInvalid, false, false, false, false, true},
		{domain.ErrInvalidCredentials, false, false, false, false, true},
		{domain.ErrUserInactive, false, false, false, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.notFound, domain.IsNotFound(tc.err))
			assert.Equal(t, tc.validation, domain.IsValidation(tc.err))
			assert.Equal(t, tc.conflict, domain.IsConflict(tc.err))
			assert.Equal(t, tc.insufficient, domain.IsInsufficientFunds(tc.err))
			assert.Equal(t, tc.auth, domain.IsAuthError(tc.err))
		})
	}
}

// TestErrorPredicates_WrappedErrors verifies the predicates see through
// %w-wrapping, since repository/service code always wraps sentinels with
// call-site context rather than returning them bare.
func TestErrorPredicates_WrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("engine.PlaceOrder: %w", domain.ErrMarketUnavailable)
	assert.True(t, domain.IsValidation(wrapped))
	assert.False(t, domain.IsNotFound(wrapped))
}

func TestErrorPredicates_UnrelatedError(t *testing.T) {
	err := fmt.Errorf("some unrelated failure")
	assert.False(t, domain.IsNotFound(err))
	assert.False(t, domain.IsValidation(err))
	assert.False(t, domain.IsConflict(err))
	assert.False(t, domain.IsInsufficientFunds(err))
	assert.False(t, domain.IsAuthError(err))
}
