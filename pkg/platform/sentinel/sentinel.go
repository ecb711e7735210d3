package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors or rejection reasons.
//
//   - ErrNotFound: row does not exist (event, attendance binding, profile)
//   - ErrAlreadyUsed: the conditional check-in update matched no unchecked row
//   - ErrUnavailable: backing store unreachable or timed out
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrAlreadyUsed = errors.New("already used")
	ErrUnavailable = errors.New("unavailable")
)
