package engine

import "errors"

// Sentinel error taxonomy. Callers branch with errors.Is, never on message
// text.
var (
	// ErrInvalidInput marks a bad adapter-supplied value: missing mandatory
	// field, out-of-range coordinate, malformed url map.
	ErrInvalidInput = errors.New("engine: invalid input")

	// ErrUpstreamTimeout marks a network deadline hit on an external call.
	// Never cached; propagated so the scheduler retries on its own cadence.
	ErrUpstreamTimeout = errors.New("engine: upstream timeout")

	// ErrUsageLimit marks an external API signalling rate exhaustion.
	// Cached with a short TTL so repeated calls fail fast until it expires.
	ErrUsageLimit = errors.New("engine: usage limit")

	// ErrUpstreamError marks any other upstream failure. Cached with a long
	// TTL to avoid hammering a broken endpoint.
	ErrUpstreamError = errors.New("engine: upstream error")

	// ErrTransientStorage marks a storage write failure. Not retried inline;
	// the scheduler records a misfire and retries at the next cadence.
	ErrTransientStorage = errors.New("engine: transient storage error")
)
