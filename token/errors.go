package token

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is the root of every claim and decode failure. Callers map it
	// to a forbidden response, never to a server error.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNoToken is returned when no ID token is available
	ErrNoToken = fmt.Errorf("%w: no id token provided", ErrInvalidArgument)

	// ErrMalformedToken is returned when the ID token cannot be decoded
	ErrMalformedToken = fmt.Errorf("%w: unable to decode provided id token", ErrInvalidArgument)

	// ErrMissingSubject is returned when the mandatory sub claim is absent
	ErrMissingSubject = fmt.Errorf("%w: no user id in provided id token", ErrInvalidArgument)

	// ErrNoSubject is returned when the policy produced no Subject
	ErrNoSubject = fmt.Errorf("%w: unable to create subject from provided id token", ErrInvalidArgument)

	// ErrEmailNotVerified is returned by the verified-email policy
	ErrEmailNotVerified = fmt.Errorf("%w: e-mail address not (yet) verified", ErrInvalidArgument)

	// ErrMissingClaim is returned by RequireClaim
	ErrMissingClaim = fmt.Errorf("%w: missing required claim", ErrInvalidArgument)

	// ErrSignature is returned when HMAC verification of an ID token fails
	ErrSignature = errors.New("id token signature rejected")
)
