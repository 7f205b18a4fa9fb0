package config

import "errors"

var (
	// ErrInvalidConfig is returned when a configuration value is missing or out of range.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnknownFlushPolicy is returned for a flush policy other than continue or abort.
	ErrUnknownFlushPolicy = errors.New("unknown flush policy")
)
