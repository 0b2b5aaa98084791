package registry

import "errors"

var (
	// ErrNotFound is returned by Get, Unregister, and Heartbeat for an id
	// with no live entry (absent, or already garbage-collected as stale).
	ErrNotFound = errors.New("registry: agent not found")

	// ErrProtocolVersionImmutable is returned when a republish of an
	// already-registered id carries a different protocol-version tag than
	// the one it was first published with.
	ErrProtocolVersionImmutable = errors.New("registry: protocol version is immutable once published")
)
