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

package medline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/medline/batch"
	"github.com/poiesic/medline/config"
	"github.com/poiesic/medline/core"
	"github.com/poiesic/medline/ingestion"
	"github.com/poiesic/medline/storage"
	"github.com/poiesic/medline/storage/badger"
	"github.com/poiesic/medline/stream"
)

// Workspace ties a configuration to its checkpoint store. It builds
// ingestion pipelines that record checkpoints and readers that verify batch
// files against them.
type Workspace struct {
	cfg            *config.Config
	backend        *badger.Backend
	checkpointRepo storage.CheckpointRepository
	logger         *slog.Logger
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the logger of the workspace, its checkpoint store, and the
// pipelines and readers it builds.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workspace) {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger
	}
}

// Open validates cfg and opens the checkpoint store in cfg.StateDir.
func Open(cfg *config.Config, opts ...Option) (*Workspace, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	w := &Workspace{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	backend, err := badger.OpenBackend(cfg.StateDir, false, badger.WithLogger(w.logger.With("store", cfg.StateDir)))
	if err != nil {
		return nil, err
	}
	w.backend = backend
	w.checkpointRepo = badger.NewCheckpointRepository(backend)
	return w, nil
}

func (w *Workspace) Close() error {
	if err := w.checkpointRepo.Close(); err != nil {
		w.logger.Error("error closing checkpoint repository", "err", err)
		return err
	}
	if err := w.backend.Close(); err != nil {
		w.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (w *Workspace) Config() *config.Config {
	return w.cfg
}

func (w *Workspace) CheckpointRepository() storage.CheckpointRepository {
	return w.checkpointRepo
}

func (w *Workspace) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	opts = append([]ingestion.Option{
		ingestion.WithCheckpoints(w.checkpointRepo),
		ingestion.WithLogger(w.logger),
	}, opts...)
	return ingestion.NewPipeline(w.cfg, opts...)
}

// Batches returns the batch files in dir and the manifest recorded for them,
// if any. An empty dir means the configured output directory.
func (w *Workspace) Batches(ctx context.Context, dir string) ([]string, []core.BatchInfo, error) {
	if dir == "" {
		dir = w.cfg.OutputDir
	}
	files, err := batch.ListFiles(dir, w.cfg.FilePrefix)
	if err != nil {
		return nil, nil, err
	}
	cp, err := w.checkpointRepo.LoadCheckpoint(ctx, batch.CheckpointKey(dir))
	if err != nil {
		return nil, nil, err
	}
	if cp == nil {
		return files, nil, nil
	}
	return files, cp.Batches, nil
}

// Runs returns the checkpoints of every run recorded in the state directory,
// including the per-source runs of IngestAll.
func (w *Workspace) Runs(ctx context.Context) ([]*core.Checkpoint, error) {
	return w.checkpointRepo.ListCheckpoints(ctx)
}

// RunDirs returns the output directory when it holds batch files, followed
// by every run subdirectory written by IngestAll.
func (w *Workspace) RunDirs() ([]string, error) {
	return batch.RunDirs(w.cfg.OutputDir, w.cfg.FilePrefix)
}

// NewReader returns a reader over the batches in dir, verifying each file
// against its recorded checksum. An empty dir means every run under the
// configured output directory, read run after run in RunDirs order.
func (w *Workspace) NewReader(ctx context.Context, dir string, opts ...stream.Option) (*stream.Reader, error) {
	dirs := []string{dir}
	if dir == "" {
		var err error
		if dirs, err = w.RunDirs(); err != nil {
			return nil, err
		}
	}

	var files []string
	var manifest []core.BatchInfo
	for _, d := range dirs {
		f, m, err := w.Batches(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("batches of %s: %w", d, err)
		}
		files = append(files, f...)
		manifest = append(manifest, m...)
	}
	w.logger.Debug("opening batch reader", "runs", len(dirs), "files", len(files))

	opts = append([]stream.Option{
		stream.WithChecksums(manifest),
		stream.WithLogger(w.logger),
	}, opts...)
	return stream.NewReader(files, opts...), nil
}
