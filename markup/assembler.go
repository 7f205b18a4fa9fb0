package markup

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/medline/config"
	"github.com/poiesic/medline/core"
)

type state int

const (
	stateIdle state = iota
	stateInUnit
	stateInField
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateInUnit:
		return "in-unit"
	case stateInField:
		return "in-field"
	}
	return "unknown"
}

// Stats counts what the assembler has seen so far.
type Stats struct {
	Seen     int // units opened
	Retained int // units that passed the completion policy
	Orphans  int // field or unit end tags with no open unit
}

// Invalid returns the number of units that were dropped.
func (s Stats) Invalid() int {
	return s.Seen - s.Retained
}

// Assembler builds one Record per unit from a stream of parser events.
//
// The unit element opens a record at the next index. Field elements collect
// their text; the text of any nested element counts as part of the field.
// When the unit closes, absent content is filled from the title, and the
// record is deleted from the store unless it has both content and a
// permalink.
//
// An Assembler holds the state of a single run and is not safe for
// concurrent use.
type Assembler struct {
	tags    config.Tags
	records map[int]*core.Record
	current *core.Record
	index   int
	state   state
	field   string
	buf     strings.Builder
	stats   Stats
	logger  *slog.Logger
}

var _ Handler = (*Assembler)(nil)

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) AssemblerOption {
	return func(a *Assembler) {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
	}
}

// NewAssembler creates an assembler for the given element names.
func NewAssembler(tags config.Tags, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		tags:    tags,
		records: make(map[int]*core.Record),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Assembler) isField(name string) bool {
	switch name {
	case a.tags.Title, a.tags.Content, a.tags.ID:
		return true
	}
	return a.tags.Date != "" && name == a.tags.Date
}

// StartElement handles an opening tag.
func (a *Assembler) StartElement(name string) {
	switch {
	case name == a.tags.Unit:
		if a.current != nil {
			a.logger.Warn("unit opened before previous unit closed; dropping previous",
				"index", a.current.Index)
			delete(a.records, a.current.Index)
		}
		a.index++
		a.current = &core.Record{Index: a.index}
		a.records[a.index] = a.current
		a.stats.Seen++
		a.state = stateInUnit
		a.field = ""
	case a.isField(name):
		a.buf.Reset()
		a.field = name
		a.state = stateInField
	}
}

// CharData appends text to the open field. Each piece is trimmed and
// pieces are joined by a single space.
func (a *Assembler) CharData(text string) {
	if a.state != stateInField {
		return
	}
	piece := strings.TrimSpace(text)
	if piece == "" {
		return
	}
	if a.buf.Len() > 0 {
		a.buf.WriteByte(' ')
	}
	a.buf.WriteString(piece)
}

// EndElement handles a closing tag.
func (a *Assembler) EndElement(name string) {
	switch {
	case name == a.tags.Unit:
		a.closeUnit()
	case a.isField(name):
		a.closeField(name)
	}
}

func (a *Assembler) closeField(name string) {
	if a.current == nil {
		a.stats.Orphans++
		a.logger.Warn("field closed with no open unit", "tag", name)
		a.reset()
		return
	}
	if a.state != stateInField || a.field != name {
		a.logger.Debug("ignoring unmatched field end tag", "tag", name, "state", a.state, "index", a.current.Index)
		return
	}

	value := a.buf.String()
	a.buf.Reset()
	a.field = ""
	a.state = stateInUnit

	switch name {
	case a.tags.Title:
		if a.current.Title == nil {
			a.current.Title = core.StringPtr(value)
		}
	case a.tags.Content:
		switch {
		case value == "":
		case a.current.Content == nil:
			a.current.Content = core.StringPtr(value)
		default:
			joined := *a.current.Content + " " + value
			a.current.Content = &joined
		}
	case a.tags.ID:
		if a.current.Permalink == nil {
			a.current.Permalink = core.StringPtr(value)
		}
	}
	// the date field is accepted and discarded
}

func (a *Assembler) closeUnit() {
	if a.current == nil {
		a.stats.Orphans++
		a.logger.Warn("unit closed with no open unit", "tag", a.tags.Unit)
		a.reset()
		return
	}

	record := a.current
	if err := core.Complete(record); err != nil {
		delete(a.records, record.Index)
		a.logger.Debug("dropping invalid unit", "index", record.Index, "err", err)
	} else {
		a.stats.Retained++
	}
	a.reset()
}

// EndDocument drops a unit left open at the end of input.
func (a *Assembler) EndDocument() {
	if a.current != nil {
		a.logger.Warn("document ended inside an open unit; dropping it", "index", a.current.Index)
		delete(a.records, a.current.Index)
	}
	a.reset()
}

func (a *Assembler) reset() {
	a.current = nil
	a.field = ""
	a.buf.Reset()
	a.state = stateIdle
}

// Index returns the index of the most recently opened unit.
func (a *Assembler) Index() int {
	return a.index
}

// Stats returns the running counters.
func (a *Assembler) Stats() Stats {
	return a.stats
}

// Len returns the number of completed records held in memory.
func (a *Assembler) Len() int {
	n := len(a.records)
	if a.current != nil {
		n--
	}
	return n
}

// Records returns the completed records keyed by index.
// The map is owned by the assembler and is replaced by Reset.
func (a *Assembler) Records() map[int]*core.Record {
	if a.current == nil {
		return a.records
	}
	done := make(map[int]*core.Record, len(a.records))
	for idx, r := range a.records {
		if idx != a.current.Index {
			done[idx] = r
		}
	}
	return done
}

// Sorted returns copies of the completed records in index order.
func (a *Assembler) Sorted() []core.Record {
	done := a.Records()
	out := make([]core.Record, 0, len(done))
	for _, r := range done {
		out = append(out, *r)
	}
	slices.SortFunc(out, func(x, y core.Record) int {
		return x.Index - y.Index
	})
	return out
}

// Reset discards the completed records. A unit that is still open is kept.
func (a *Assembler) Reset() {
	a.records = make(map[int]*core.Record)
	if a.current != nil {
		a.records[a.current.Index] = a.current
	}
}
