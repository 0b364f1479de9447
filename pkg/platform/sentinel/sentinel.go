package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Storage backends return these
// (optionally wrapped) so callers can translate them into domain behavior.
//
// - ErrNotFound: the entry does not exist in the substrate
// - ErrInvalidState: the operation is not allowed in the current state
// - ErrUnavailable: the substrate is temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
