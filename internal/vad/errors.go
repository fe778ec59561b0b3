package vad

import "errors"

var (
	// ErrConfiguration reports an unusable chunk size, sample rate or threshold range.
	ErrConfiguration = errors.New("configuration error")
	// ErrEmptyInput reports an RMS request on a zero-length signal.
	ErrEmptyInput = errors.New("empty input")
	// ErrNonFinite reports a signal whose energy is NaN or infinite.
	ErrNonFinite = errors.New("non-finite signal energy")
)
