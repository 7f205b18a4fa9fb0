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

package stream

import (
	"errors"
	"iter"
	"log/slog"
	"path/filepath"

	"github.com/poiesic/medline/batch"
	"github.com/poiesic/medline/core"
)

// ErrEndOfStream is returned by Next once every batch has been drained.
// It marks the normal end of the sequence, not a failure.
var ErrEndOfStream = errors.New("end of stream")

// Reader streams the records of an ordered list of batch files.
//
// Only one batch is held in memory at a time: the next file is loaded when
// the records of the current one are exhausted. The sequence is single-pass.
// A file that cannot be read or decoded ends the stream with an error, and
// every later call to Next returns that same error.
type Reader struct {
	pending   []string
	checksums map[string][]byte
	current   []core.Record
	pos       int
	ids       []string
	loaded    int
	err       error
	logger    *slog.Logger
}

// Option configures a Reader.
type Option func(*Reader)

// WithChecksums verifies every file listed in batches against its recorded
// checksum before decoding it. Paths are compared in absolute form. Files not
// listed are read unverified, with a warning. An empty manifest disables
// verification.
func WithChecksums(batches []core.BatchInfo) Option {
	return func(r *Reader) {
		if len(batches) == 0 {
			r.checksums = nil
			return
		}
		r.checksums = make(map[string][]byte, len(batches))
		for _, b := range batches {
			if len(b.Checksum) > 0 {
				r.checksums[absPath(b.Path)] = b.Checksum
			}
		}
	}
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reader) {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
	}
}

// NewReader creates a reader over paths, read in the given order.
func NewReader(paths []string, opts ...Option) *Reader {
	r := &Reader{
		pending: append([]string(nil), paths...),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next returns the next (identifier, text) pair. It returns ErrEndOfStream
// when all batches have been read.
func (r *Reader) Next() (core.Pair, error) {
	if r.err != nil {
		return core.Pair{}, r.err
	}

	for r.pos >= len(r.current) {
		if len(r.pending) == 0 {
			r.current = nil
			return core.Pair{}, ErrEndOfStream
		}
		if err := r.load(); err != nil {
			r.err = err
			return core.Pair{}, err
		}
	}

	pair := r.current[r.pos].Pair()
	r.current[r.pos] = core.Record{}
	r.pos++
	r.ids = append(r.ids, pair.ID)
	return pair, nil
}

func (r *Reader) load() error {
	path := r.pending[0]
	r.pending = r.pending[1:]

	var checksum []byte
	if r.checksums != nil {
		var ok bool
		if checksum, ok = r.checksums[absPath(path)]; !ok {
			r.logger.Warn("batch file missing from manifest, reading unverified", "path", path)
		}
	}

	records, err := batch.ReadFile(path, checksum)
	if err != nil {
		return err
	}
	r.current = records
	r.pos = 0
	r.loaded++
	r.logger.Debug("loaded batch", "path", path, "records", len(records), "remaining", len(r.pending))
	return nil
}

// IDs returns the identifiers yielded so far, in order.
func (r *Reader) IDs() []string {
	return r.ids
}

// Loaded returns the number of batch files read so far.
func (r *Reader) Loaded() int {
	return r.loaded
}

// Err returns the error that ended the stream, if any.
func (r *Reader) Err() error {
	return r.err
}

// Pairs returns an iterator over the remaining pairs. A read error is
// yielded once and ends the iteration.
func (r *Reader) Pairs() iter.Seq2[core.Pair, error] {
	return func(yield func(core.Pair, error) bool) {
		for {
			pair, err := r.Next()
			if errors.Is(err, ErrEndOfStream) {
				return
			}
			if !yield(pair, err) || err != nil {
				return
			}
		}
	}
}

// Texts returns an iterator over the remaining texts, for consumers that do
// not need the identifiers. Iteration stops at the first read error, which
// is then available from Err.
func (r *Reader) Texts() iter.Seq[string] {
	return func(yield func(string) bool) {
		for pair, err := range r.Pairs() {
			if err != nil || !yield(pair.Text) {
				return
			}
		}
	}
}

// Count returns the number of records stored in paths. Files are decoded
// one at a time.
func Count(paths []string) (int, error) {
	total := 0
	for _, path := range paths {
		records, err := batch.ReadFile(path, nil)
		if err != nil {
			return total, err
		}
		total += len(records)
	}
	return total, nil
}
