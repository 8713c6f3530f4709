// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios. For
// example, ErrForbidden indicates that the current user is not
// authorized to perform an operation on a resource owned by someone
// else, while ErrStaleStatus signals that a guarded status update
// matched no row because another writer got there first.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrSessionNotFound is returned when a session id does not exist.
var ErrSessionNotFound = errors.New("session not found")

// ErrRequestNotFound is returned when a request id does not exist.
var ErrRequestNotFound = errors.New("request not found")

// ErrRoomBusy is returned when a host tries to start a session in a room
// where another host's session is still ACTIVE. A host never force-ends
// someone else's live session; the occupying host has to end it first.
var ErrRoomBusy = errors.New("room busy")

// ErrStaleStatus is returned by guarded status updates when the row was
// not in the expected source status. This is how concurrent hosts and
// duplicate deliveries are kept monotonic: the losing writer sees
// ErrStaleStatus instead of overwriting a newer state.
var ErrStaleStatus = errors.New("stale status")
