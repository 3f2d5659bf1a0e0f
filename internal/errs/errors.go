package errs

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrEmptyCorpus   = errors.New("empty corpus")
	ErrEmptyTable    = errors.New("negative sampling table is empty")
	ErrShapeMismatch = errors.New("shape mismatch")
)
