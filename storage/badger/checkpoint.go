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

package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/medline/core"
	"github.com/poiesic/medline/storage"
)

// CheckpointRepository implements storage.CheckpointRepository for BadgerDB.
type CheckpointRepository struct {
	backend *Backend
}

var _ storage.CheckpointRepository = (*CheckpointRepository)(nil)

// NewCheckpointRepository creates a new CheckpointRepository.
func NewCheckpointRepository(backend *Backend) *CheckpointRepository {
	return &CheckpointRepository{
		backend: backend,
	}
}

// SaveCheckpoint persists the checkpoint of an output directory.
func (r *CheckpointRepository) SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error {
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		checkpoint.UpdatedAt = time.Now().UTC()
		key := makeCheckpointKey(checkpoint.OutputDir)
		value := storage.MarshalCheckpoint(checkpoint)
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// LoadCheckpoint retrieves the checkpoint for an output directory.
// Returns nil, nil if no checkpoint exists.
func (r *CheckpointRepository) LoadCheckpoint(ctx context.Context, outputDir string) (*core.Checkpoint, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	var checkpoint *core.Checkpoint
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeCheckpointKey(outputDir)
		item, err := tx.Get(key)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}

		return item.Value(func(val []byte) error {
			var unmarshalErr error
			checkpoint, unmarshalErr = storage.UnmarshalCheckpoint(val)
			return unmarshalErr
		})
	}, false)

	return checkpoint, err
}

// DeleteCheckpoint removes the checkpoint for an output directory.
func (r *CheckpointRepository) DeleteCheckpoint(ctx context.Context, outputDir string) error {
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeCheckpointKey(outputDir)
		if _, err := tx.Get(key); err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// ListCheckpoints returns every stored checkpoint in key order.
func (r *CheckpointRepository) ListCheckpoints(ctx context.Context) ([]*core.Checkpoint, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	var checkpoints []*core.Checkpoint
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = checkpointKeyPrefix()
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			err := iter.Item().Value(func(val []byte) error {
				checkpoint, err := storage.UnmarshalCheckpoint(val)
				if err != nil {
					return err
				}
				checkpoints = append(checkpoints, checkpoint)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)

	return checkpoints, err
}

// Close is a no-op; the backend is owned and closed by the caller.
func (r *CheckpointRepository) Close() error {
	return nil
}
