package segment

import (
	"context"

	"github.com/poiesic/medline/config"
	"github.com/poiesic/medline/markup"
)

const ctxCheckInterval = 256

// Emit replays every record of s as markup events on h: a unit start, one
// start/text/end triple per non-empty field, and a unit end. EndDocument is
// called once the input is exhausted.
//
// Records without a permalink are still emitted so that the handler counts
// them as invalid units.
func Emit(ctx context.Context, s *Segmenter, p Parser, tags config.Tags, h markup.Handler) error {
	if h == nil {
		return markup.ErrNilHandler
	}

	n := 0
	for rec, err := range s.All() {
		if err != nil {
			return err
		}
		if n%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		n++

		f := p.Parse(rec)
		h.StartElement(tags.Unit)
		emitField(h, tags.Title, f.Title)
		emitField(h, tags.Content, f.Content)
		emitField(h, tags.ID, f.Permalink)
		h.EndElement(tags.Unit)

		if err := failed(h); err != nil {
			return err
		}
	}

	h.EndDocument()
	return failed(h)
}

func emitField(h markup.Handler, name, value string) {
	if value == "" {
		return
	}
	h.StartElement(name)
	h.CharData(value)
	h.EndElement(name)
}

func failed(h markup.Handler) error {
	if f, ok := h.(markup.Failer); ok {
		return f.Err()
	}
	return nil
}
