package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped) so
// services can translate them into domain errors:
// - ErrNotFound: row does not exist
// - ErrAlreadyUsed: a unique key (national id, tax id, registration) is taken
// - ErrConflict: a single-active constraint would be violated
// - ErrInvalidState: a status-guarded update matched no row
// - ErrUnavailable: backing service unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
