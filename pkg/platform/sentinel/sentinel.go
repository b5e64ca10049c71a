package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, sinks and transactors
// return these (optionally wrapped) and services translate them into domain
// errors at their boundary:
//   - ErrNotFound: entity does not exist in store
//   - ErrConflict: write collided with an existing entity
//   - ErrCorrupt: stored data failed a self-consistency check on read
//   - ErrTxClosed: write attempted on a committed or rolled back transaction
//   - ErrUnavailable: backing service temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrCorrupt     = errors.New("corrupt")
	ErrTxClosed    = errors.New("transaction closed")
	ErrUnavailable = errors.New("unavailable")
)
