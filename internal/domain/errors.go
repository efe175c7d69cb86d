package domain

import "errors"

// Configuration errors. Returned synchronously by administrative operations;
// the rejected call leaves no partial state behind.
var (
	ErrZeroAddress            = errors.New("zero address")
	ErrValueTooLow            = errors.New("value too low")
	ErrValueTooHigh           = errors.New("value too high")
	ErrValueOutOfRange        = errors.New("value out of range")
	ErrTotalExceeds100Percent = errors.New("allocation must total 100 percent")
	ErrAlreadyExists          = errors.New("already exists")
	ErrTokenNotFound          = errors.New("token not found")
	ErrEmptyArray             = errors.New("empty array")
	ErrMismatchedArrayLengths = errors.New("mismatched array lengths")
)

// Timing and execution errors.
var (
	ErrTooEarly             = errors.New("rebalance too early")
	ErrReentrantCall        = errors.New("reentrant call")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrAdapterNotRegistered = errors.New("adapter not registered")
	ErrValuationUnavailable = errors.New("valuation unavailable")
)

// IsConfigurationError reports whether err is one of the validation errors
// raised by administrative calls.
func IsConfigurationError(err error) bool {
	for _, target := range []error{
		ErrZeroAddress,
		ErrValueTooLow,
		ErrValueTooHigh,
		ErrValueOutOfRange,
		ErrTotalExceeds100Percent,
		ErrAlreadyExists,
		ErrEmptyArray,
		ErrMismatchedArrayLengths,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
