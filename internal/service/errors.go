// Package service implements the device-bound session authority: it
// decides whether a caller is currently allowed in and on which
// device, reconciling the signed credential with the authoritative
// session row under concurrent and possibly conflicting requests.
package service

import "errors"

// The authority's error taxonomy. Handlers map these onto HTTP status
// codes; nothing below this package ever leaks a raw persistence or
// codec error to a caller.
var (
	// ErrMissingParameters marks absent required input. Client
	// error, never retried.
	ErrMissingParameters = errors.New("missing parameters")

	// ErrInvalidExpiration marks an expiration that does not parse,
	// or (for extension) does not lie strictly in the future.
	ErrInvalidExpiration = errors.New("invalid expiration")

	// ErrInvalidToken marks a cryptographic failure: forged,
	// tampered or structurally broken credential.
	ErrInvalidToken = errors.New("invalid token")

	// ErrNotFound marks a token with no session row. A token that
	// never existed and one that was deleted are indistinguishable.
	ErrNotFound = errors.New("unknown token")

	// ErrExpired marks a session whose expiry has passed. The row is
	// invalidated before this is returned, so the state is terminal.
	ErrExpired = errors.New("session expired")

	// ErrRevoked marks a session soft-revoked by an administrative
	// or expiry-driven invalidation.
	ErrRevoked = errors.New("session revoked")

	// ErrDeviceMismatch is returned under the reject migration
	// policy when a verify arrives from a device other than the one
	// currently bound.
	ErrDeviceMismatch = errors.New("device mismatch")

	// ErrStoreUnavailable wraps infrastructure failures. Safe for
	// the caller to retry; never retried here because a replayed
	// insert or migration decision is not idempotent.
	ErrStoreUnavailable = errors.New("session store unavailable")
)
