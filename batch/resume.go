package batch

import (
	"context"
	"log/slog"

	"github.com/poiesic/medline/config"
	"github.com/poiesic/medline/storage"
)

// Resume looks for the batches of a previous run. When cfg.Resume is set and
// cfg.OutputDir holds at least one batch file, it returns those files and the
// processed count recorded for them, and parsing should be skipped. It
// returns nil when a fresh parse is required.
//
// The processed count comes from the checkpoint in repo when there is one,
// and from cfg.SkipKnownCount otherwise. repo may be nil.
func Resume(ctx context.Context, cfg *config.Config, repo storage.CheckpointRepository, logger *slog.Logger) (*Result, error) {
	if !cfg.Resume {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	files, err := ListFiles(cfg.OutputDir, cfg.FilePrefix)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}

	res := &Result{
		Files:     files,
		Processed: cfg.SkipKnownCount,
		Resumed:   true,
	}

	if repo != nil {
		cp, err := repo.LoadCheckpoint(ctx, CheckpointKey(cfg.OutputDir))
		if err != nil {
			logger.Warn("failed to load checkpoint, using skip count", "outputDir", cfg.OutputDir, "error", err)
		} else if cp != nil {
			res.Processed = cp.Processed
			res.Invalid = cp.Invalid
			res.Batches = cp.Batches
			if len(cp.Batches) != len(files) {
				logger.Warn("checkpoint does not match batch files",
					"checkpointBatches", len(cp.Batches), "files", len(files))
			}
		}
	}

	logger.Info("resuming from existing batches", "outputDir", cfg.OutputDir,
		"files", len(files), "processed", res.Processed)
	return res, nil
}
