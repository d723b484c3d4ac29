package oracle

import "errors"

var (
	// ErrOracleUnavailable wraps transport failures, timeouts, bad status
	// codes and undecodable replies. The caller keeps its last density.
	ErrOracleUnavailable = errors.New("density oracle unavailable")
	// ErrStaleResponse marks a reply that arrived after its satellite left
	// the ACTIVE state or the registry. It is discarded, never surfaced.
	ErrStaleResponse = errors.New("stale oracle response")
)
