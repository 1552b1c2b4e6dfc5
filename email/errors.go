package email

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the builder. The message texts are part of the
// package contract and are matched verbatim by callers.
var (
	// ErrEmptyHeaderName is returned by AddHeader for a missing header name.
	ErrEmptyHeaderName = errors.New("name can not be null or empty")

	// ErrEmptyHeaderValue is returned by AddHeader for a missing header value.
	ErrEmptyHeaderValue = errors.New("value can not be null or empty")

	// ErrMissingFrom is returned by Build when no sender has been set.
	ErrMissingFrom = errors.New("From address required")

	// ErrNoReceivers is returned by Build when no To, Cc, or Bcc recipient
	// has been added.
	ErrNoReceivers = errors.New("At least one receiver address required")

	// ErrAlreadyBuilt is returned by Build on any call after the first.
	ErrAlreadyBuilt = errors.New("The MimeMessage is already built.")

	// ErrNoHostname is returned by Session when no host name is configured
	// on the builder and the SMTP_HOST environment fallback is unset.
	ErrNoHostname = errors.New("Cannot find valid hostname for mail session")
)

// AddressError reports an input string that failed address-syntax
// validation. The offending input and the underlying parse error are kept
// for diagnostics.
type AddressError struct {
	Input string
	Err   error
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("invalid address %q: %v", e.Input, e.Err)
}

func (e *AddressError) Unwrap() error {
	return e.Err
}
