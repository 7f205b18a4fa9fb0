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

package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/poiesic/medline/config"
	"github.com/poiesic/medline/core"
	"github.com/poiesic/medline/markup"
	"github.com/poiesic/medline/storage"
)

// Result summarizes the batches of one run.
type Result struct {
	Files     []string
	Batches   []core.BatchInfo
	Processed int // valid records written to batch files
	Invalid   int // units dropped by the completion policy
	Orphans   int // end tags seen outside any unit
	Lost      int // valid records in batches that could not be written
	Resumed   bool
}

// Manager decorates an Assembler with threshold-triggered persistence.
//
// Every time a unit closes at an index that is a multiple of the threshold,
// the records held by the assembler are written to the next numbered batch
// file and the assembler is reset. The remaining records are written when the
// document ends. An empty record set is never written.
//
// A Manager owns the state of one run and is not safe for concurrent use.
type Manager struct {
	ctx    context.Context
	cfg    *config.Config
	asm    *markup.Assembler
	repo   storage.CheckpointRepository
	logger *slog.Logger
	write  func(path string, records []core.Record) ([]byte, error)

	source   string
	key      string
	part     int
	boundary int
	batches  []core.BatchInfo
	written  int
	lost     int
	err      error
}

var (
	_ markup.Handler = (*Manager)(nil)
	_ markup.Failer  = (*Manager)(nil)
)

// Option configures a Manager.
type Option func(*Manager)

// WithCheckpoints saves a checkpoint to repo after every written batch.
func WithCheckpoints(repo storage.CheckpointRepository) Option {
	return func(m *Manager) {
		m.repo = repo
	}
}

// WithSource records the source path in checkpoints.
func WithSource(path string) Option {
	return func(m *Manager) {
		m.source = path
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
	}
}

// NewManager creates a manager writing into cfg.OutputDir. The output
// directory is created if needed. ctx bounds the write retries.
func NewManager(ctx context.Context, cfg *config.Config, asm *markup.Assembler, opts ...Option) (*Manager, error) {
	if asm == nil {
		return nil, ErrAssemblerRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	m := &Manager{
		ctx:      ctx,
		cfg:      cfg,
		asm:      asm,
		logger:   slog.Default(),
		write:    WriteFile,
		key:      CheckpointKey(cfg.OutputDir),
		part:     1,
		boundary: cfg.Threshold,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// CheckpointKey returns the key under which the checkpoint of an output
// directory is stored.
func CheckpointKey(outputDir string) string {
	if abs, err := filepath.Abs(outputDir); err == nil {
		return abs
	}
	return filepath.Clean(outputDir)
}

// StartElement delegates to the assembler.
func (m *Manager) StartElement(name string) {
	m.asm.StartElement(name)
}

// CharData delegates to the assembler.
func (m *Manager) CharData(text string) {
	m.asm.CharData(text)
}

// EndElement delegates to the assembler and flushes when a closing unit has
// reached or crossed the next multiple of the threshold. A boundary unit that
// never closes does not postpone the flush past the next closing unit.
func (m *Manager) EndElement(name string) {
	m.asm.EndElement(name)
	if name != m.cfg.Tags.Unit || m.err != nil {
		return
	}
	if idx := m.asm.Index(); idx >= m.boundary {
		m.boundary = (idx/m.cfg.Threshold + 1) * m.cfg.Threshold
		m.Flush()
	}
}

// EndDocument delegates to the assembler and writes the remaining records.
func (m *Manager) EndDocument() {
	m.asm.EndDocument()
	if m.err == nil {
		m.Flush()
	}
}

// Err returns the error that stopped the run under the abort policy.
func (m *Manager) Err() error {
	return m.err
}

// Flush writes the completed records held by the assembler to the next
// batch file. It does nothing when there are no completed records.
//
// If the file cannot be written, the continue policy logs the failure and
// discards the records without consuming the part number; the abort policy
// latches the error and keeps the records.
func (m *Manager) Flush() {
	records := m.asm.Sorted()
	if len(records) == 0 {
		return
	}

	path := filepath.Join(m.cfg.OutputDir, FileName(m.cfg.FilePrefix, m.part))
	var checksum []byte
	err := RetryWithBackoff(m.ctx, m.logger, func() error {
		var writeErr error
		checksum, writeErr = m.write(path, records)
		return writeErr
	}, m.cfg.FlushRetries, m.cfg.FlushRetryDelay)

	if err != nil {
		if m.cfg.FlushPolicy == config.FlushAbort {
			m.err = fmt.Errorf("%w: part %d: %w", ErrFlushFailed, m.part, err)
			return
		}
		m.logger.Error("failed to write batch, records lost",
			"part", m.part, "records", len(records), "error", err)
		m.lost += len(records)
		m.asm.Reset()
		return
	}

	m.batches = append(m.batches, core.BatchInfo{
		Part:     m.part,
		Path:     path,
		Records:  len(records),
		Checksum: checksum,
	})
	m.written += len(records)
	m.part++
	m.asm.Reset()

	m.logger.Info("batch written", "path", path, "records", len(records), "processed", m.written)
	m.saveCheckpoint()
}

func (m *Manager) saveCheckpoint() {
	if m.repo == nil {
		return
	}
	if err := m.repo.SaveCheckpoint(m.ctx, m.Checkpoint()); err != nil {
		m.logger.Warn("failed to save checkpoint", "outputDir", m.key, "error", err)
	}
}

// Pending returns the number of completed records not yet written.
func (m *Manager) Pending() int {
	return m.asm.Len()
}

// Checkpoint returns the current state of the run.
func (m *Manager) Checkpoint() *core.Checkpoint {
	return &core.Checkpoint{
		OutputDir: m.key,
		Source:    m.source,
		Processed: m.written,
		Invalid:   m.asm.Stats().Invalid(),
		Batches:   append([]core.BatchInfo(nil), m.batches...),
	}
}

// Result returns the summary of the run so far.
func (m *Manager) Result() *Result {
	stats := m.asm.Stats()
	files := make([]string, len(m.batches))
	for i, b := range m.batches {
		files[i] = b.Path
	}
	return &Result{
		Files:     files,
		Batches:   append([]core.BatchInfo(nil), m.batches...),
		Processed: m.written,
		Invalid:   stats.Invalid(),
		Orphans:   stats.Orphans,
		Lost:      m.lost,
	}
}
