// Package repository defines error types that are reused across
// multiple repositories. These sentinel values allow higher layers
// such as the authority service to distinguish between different
// failure scenarios without inspecting driver errors.
// ErrSessionNotFound covers both a token that never existed and one
// that was hard-deleted; callers cannot tell the two apart.
package repository

import "errors"

// ErrSessionNotFound is returned when no session row exists for a
// token. A deleted token never re-validates, so absence is terminal.
var ErrSessionNotFound = errors.New("session not found")

// ErrUserNotFound is returned when a username has never been
// observed by the authority.
var ErrUserNotFound = errors.New("user not found")
