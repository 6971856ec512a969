package models

import (
	"errors"
	"fmt"
)

// ErrUnsupportedSymbol is returned for a symbol outside the configured set.
// It is the only pre-network fatal error in the taxonomy.
var ErrUnsupportedSymbol = errors.New("unsupported symbol")

// ErrMarketNotFound is returned when the metadata lookup yields no market
// for a slug. Expected near window boundaries; callers treat it as
// retryable, not fatal.
var ErrMarketNotFound = errors.New("market not found")

// MalformedPayloadError reports a metadata payload whose serialized list
// fields could not be parsed into aligned outcome sequences. Recoverable:
// the caller skips the cycle.
type MalformedPayloadError struct {
	Field string
	Err   error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed market payload field %q: %v", e.Field, e.Err)
}

func (e *MalformedPayloadError) Unwrap() error {
	return e.Err
}
