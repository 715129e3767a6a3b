package domain

import "errors"

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors — compare with errors.Is(). Grouped by taxonomy tag so the
// transport layer can translate a bundled error into a status code and a
// machine-readable code with one switch.
// ──────────────────────────────────────────────────────────────────────────────

// Validation errors (caller fault; nothing persists)
var (
	ErrInvalidSide     = errors.New("invalid side: must be yes or no")
	ErrInvalidPrice    = errors.New("invalid price_cents: must be in [1,99]")
	ErrAmountTooSmall  = errors.New("amount_sats below minimum lot size")
	ErrMarketUnavailable = errors.New("market is not open")
	ErrNotOwner        = errors.New("caller does not own this order")
	ErrOrderTerminal   = errors.New("order is already in a terminal state")
	ErrMarketNotFound  = errors.New("market not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Resource errors (caller fault, stateful)
var (
	ErrInsufficientFunds = errors.New("insufficient balance")
)

// Conflict errors (retryable)
var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrServiceBusy          = errors.New("service busy, retry")
	ErrMarketAlreadyResolved = errors.New("market is already resolved")
)

// Invariant errors (bug — never silently corrupt state)
var (
	ErrInvariantViolation = errors.New("internal invariant violation")
)

// Auth errors
var (
	ErrEmailTaken         = errors.New("email address is already registered")
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden: insufficient permissions")
	ErrTokenInvalid       = errors.New("token is invalid")
)

// Market-maker errors (External taxonomy — logged, does not abort reconciliation)
var (
	ErrMMReserveInsufficient = errors.New("market maker reserve below minimum threshold")
)

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

var notFoundErrors = []error{
	ErrMarketNotFound,
	ErrOrderNotFound,
	ErrUserNotFound,
	ErrTransactionNotFound,
}

// IsNotFound reports whether err (or any error in its chain) is one of the
// domain "not found" errors.
func IsNotFound(err error) bool {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var validationErrors = []error{
	ErrInvalidSide,
	ErrInvalidPrice,
	ErrAmountTooSmall,
	ErrMarketUnavailable,
	ErrNotOwner,
	ErrOrderTerminal,
}

// IsValidation reports whether err represents a caller-fault validation
// error that rejects the request without persisting anything.
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var conflictErrors = []error{
	ErrSerializationFailure,
	ErrServiceBusy,
	ErrMarketAlreadyResolved,
}

// IsConflict reports whether err represents a retryable state conflict.
func IsConflict(err error) bool {
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsInsufficientFunds reports whether err is the insufficient-funds resource error.
func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ErrInsufficientFunds)
}

var authErrors = []error{
	ErrUnauthorized,
	ErrForbidden,
	ErrTokenInvalid,
	ErrInvalidCredentials,
	ErrUserInactive,
}

// IsAuthError reports whether err is an authentication/authorisation error.
func IsAuthError(err error) bool {
	for _, target := range authErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
