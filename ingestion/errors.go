package ingestion

import "errors"

var (
	// ErrSourceRequired is returned when a run has neither a source nor resume enabled.
	ErrSourceRequired = errors.New("source file required")

	// ErrSourceNotFound is returned when the source file does not exist.
	ErrSourceNotFound = errors.New("source file not found")

	// ErrInputIsDirectory is returned when the source path is a directory.
	ErrInputIsDirectory = errors.New("source is a directory, expected a file")

	// ErrUnsupportedExtension is returned when the source extension is not accepted.
	ErrUnsupportedExtension = errors.New("unsupported source file extension")

	// ErrResumeUnavailable is returned when resume is requested but there are
	// no batches to resume from and no source to parse.
	ErrResumeUnavailable = errors.New("nothing to resume and no source to parse")

	// ErrDuplicateSource is returned when two sources of one multi-source run
	// would write to the same output directory.
	ErrDuplicateSource = errors.New("duplicate source name")
)
