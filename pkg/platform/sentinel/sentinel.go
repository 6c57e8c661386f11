package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors:
//   - ErrNotFound: no row matched, including a conditional update that lost its race
//   - ErrAlreadyUsed: a unique key is taken (national ID, threshold date)
//   - ErrExpired: a one-time code or token is past its expiry
//   - ErrInvalidState: entity in wrong state for the requested transition
//   - ErrUnavailable: backing service unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyUsed  = errors.New("already used")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
