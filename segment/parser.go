package segment

import (
	"regexp"
	"strings"

	"github.com/poiesic/medline/config"
)

var pmidPattern = regexp.MustCompile(`PMID:\s*(\d+)`)

// Fields holds the values extracted from one raw record.
// An empty string means the field is absent.
type Fields struct {
	Title     string
	Content   string
	Permalink string
}

// Parser extracts fields from a raw record.
type Parser interface {
	Parse(record string) Fields
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(record string) Fields

// Parse calls f(record).
func (f ParserFunc) Parse(record string) Fields {
	return f(record)
}

// AbstractsParser reads PubMed abstract text exports. A record is split on
// the separator token into paragraphs and each field is taken from the
// paragraph at its configured position.
type AbstractsParser struct {
	sep     string
	indices config.ParserIndices
}

var _ Parser = (*AbstractsParser)(nil)

// NewAbstractsParser creates a parser for records segmented with sep.
func NewAbstractsParser(sep string, indices config.ParserIndices) *AbstractsParser {
	return &AbstractsParser{sep: sep, indices: indices}
}

// Parse extracts title, content and PMID. A position outside the record, or
// a permalink paragraph without a PMID, leaves the field empty.
func (p *AbstractsParser) Parse(record string) Fields {
	parts := strings.Split(record, p.sep)

	var f Fields
	f.Title = strings.TrimSpace(pick(parts, p.indices.Title))
	f.Content = strings.TrimSpace(pick(parts, p.indices.Content))
	if m := pmidPattern.FindStringSubmatch(pick(parts, p.indices.Permalink)); m != nil {
		f.Permalink = m[1]
	}
	return f
}

// pick returns parts[i], counting from the end when i is negative.
func pick(parts []string, i int) string {
	if i < 0 {
		i += len(parts)
	}
	if i < 0 || i >= len(parts) {
		return ""
	}
	return parts[i]
}
