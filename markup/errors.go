package markup

import "errors"

var (
	// ErrMalformedDocument wraps syntax errors reported by the XML tokenizer.
	ErrMalformedDocument = errors.New("malformed markup document")

	// ErrNilHandler is returned when Decode is called without a handler.
	ErrNilHandler = errors.New("handler required")
)
