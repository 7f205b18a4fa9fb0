package storage

import (
	"context"

	"github.com/poiesic/medline/core"
)

// CheckpointRepository persists ingestion run checkpoints.
// Implementations must be thread-safe; concurrent runs write checkpoints
// for different output directories.
type CheckpointRepository interface {
	// SaveCheckpoint stores the checkpoint under its OutputDir,
	// replacing any previous one. UpdatedAt is set on save.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint returns the checkpoint for an output directory.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, outputDir string) (*core.Checkpoint, error)

	// DeleteCheckpoint removes the checkpoint for an output directory.
	// Returns ErrNotFound if none exists.
	DeleteCheckpoint(ctx context.Context, outputDir string) error

	// ListCheckpoints returns all stored checkpoints ordered by output directory.
	ListCheckpoints(ctx context.Context) ([]*core.Checkpoint, error)

	// Close releases resources held by the repository.
	Close() error
}
