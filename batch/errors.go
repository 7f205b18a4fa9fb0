package batch

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrFlushFailed wraps the write error of a batch under the abort policy.
	ErrFlushFailed = errors.New("batch flush failed")

	// ErrChecksumMismatch is returned when a batch file does not match its
	// recorded checksum.
	ErrChecksumMismatch = errors.New("batch checksum mismatch")

	// ErrAssemblerRequired is returned when a manager is created without an assembler.
	ErrAssemblerRequired = errors.New("assembler required")
)
