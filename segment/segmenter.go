// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package segment

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"strings"
)

// Segmenter splits a line-oriented stream into raw records.
//
// Two or more consecutive blank lines end a record. A single blank line
// between two content lines is replaced by the separator token. Content
// lines of one paragraph are joined by a newline.
//
// A Segmenter is single-pass and not safe for concurrent use.
type Segmenter struct {
	r      *bufio.Reader
	sep    string
	buf    strings.Builder
	blanks int
	done   bool
}

// NewSegmenter creates a segmenter reading from r.
func NewSegmenter(r io.Reader, sep string) *Segmenter {
	return &Segmenter{
		r:   bufio.NewReaderSize(r, 64*1024),
		sep: sep,
	}
}

// Next returns the next record, or io.EOF when the input is exhausted.
func (s *Segmenter) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for {
		line, err := s.r.ReadString('\n')
		if err != nil && err != io.EOF {
			s.done = true
			return "", fmt.Errorf("read segment: %w", err)
		}

		if line != "" {
			if rec, ok := s.push(line); ok {
				return rec, nil
			}
		}

		if err == io.EOF {
			s.done = true
			if s.buf.Len() > 0 {
				return s.take(), nil
			}
			return "", io.EOF
		}
	}
}

// push adds one line and reports a finished record, if any.
func (s *Segmenter) push(line string) (string, bool) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		s.blanks++
		if s.blanks >= 2 && s.buf.Len() > 0 {
			return s.take(), true
		}
		return "", false
	}

	if s.buf.Len() > 0 {
		if s.blanks == 1 {
			s.buf.WriteString(s.sep)
		} else {
			s.buf.WriteByte('\n')
		}
	}
	s.buf.WriteString(line)
	s.blanks = 0
	return "", false
}

func (s *Segmenter) take() string {
	rec := s.buf.String()
	s.buf.Reset()
	return rec
}

// All returns an iterator over the remaining records.
// Iteration stops after the first read error, which is yielded.
func (s *Segmenter) All() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			rec, err := s.Next()
			if err == io.EOF {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}
