package model

import "errors"

// Error taxonomy shared by every pipeline stage. Stages wrap one of these
// with context so callers can classify failures with errors.Is.
var (
	// ErrInvalidParameter covers non-positive spans or capital and empty series.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidInput covers malformed bars, duplicate timestamps and
	// unclosed trades handed to the aggregator.
	ErrInvalidInput = errors.New("invalid input")
)
