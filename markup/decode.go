package markup

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html/charset"
)

// ctxCheckInterval is how many tokens are read between context checks.
const ctxCheckInterval = 1024

// Decode tokenizes r and pushes every element and text event to h in
// document order, then calls h.EndDocument at the end of input.
//
// The tokenizer runs in non-strict mode so that mismatched end tags and
// unknown entities do not abort a large corpus. Decode stops early when ctx
// is cancelled or when h latches an error through Failer.
func Decode(ctx context.Context, r io.Reader, h Handler) error {
	if h == nil {
		return ErrNilHandler
	}

	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charset.NewReaderLabel

	for n := 0; ; n++ {
		if n%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		tok, err := dec.Token()
		if err == io.EOF {
			h.EndDocument()
			return handlerErr(h)
		}
		if err != nil {
			var syntaxErr *xml.SyntaxError
			if errors.As(err, &syntaxErr) {
				return fmt.Errorf("%w: line %d: %s", ErrMalformedDocument, syntaxErr.Line, syntaxErr.Msg)
			}
			return fmt.Errorf("read markup: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			h.StartElement(t.Name.Local)
		case xml.EndElement:
			h.EndElement(t.Name.Local)
		case xml.CharData:
			h.CharData(string(t))
		}

		if err := handlerErr(h); err != nil {
			return err
		}
	}
}
