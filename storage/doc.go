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

// Package storage provides the persistence layer for medline.
//
// It has two halves:
//
//   - Binary codecs (MUS format) for records, batch files and checkpoints.
//     Batch files are written once by the batch manager and read back by the
//     stream reader, possibly in a later process.
//   - The CheckpointRepository interface, which records what each ingestion
//     run persisted so that a resumed run can report counts without touching
//     the source again. The BadgerDB implementation lives in storage/badger.
//
// # Batch file layout
//
//	"MDLB" | version (1 byte) | varint count | count × record
//
// where a record is
//
//	varint index | title? | content? | permalink?
//
// and each optional string is a one-byte presence flag followed, when set,
// by a length-prefixed UTF-8 string.
//
// # Usage
//
//	data := storage.MarshalBatch(records)
//	records, err := storage.UnmarshalBatch(data)
//
//	repo, err := badger.NewCheckpointRepository(backend)
//	cp, err := repo.LoadCheckpoint(ctx, outputDir)
//
// # Thread Safety
//
// Codecs are stateless. Repository implementations must be safe for
// concurrent use.
package storage
