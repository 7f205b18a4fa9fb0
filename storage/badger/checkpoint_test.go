package badger

import (
	"context"
	"sync"
	"testing"

	"github.com/poiesic/medline/core"
	"github.com/poiesic/medline/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCheckpointRepository(t *testing.T) *CheckpointRepository {
	repo, backend, err := NewMemoryCheckpointRepository()
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})
	return repo
}

func TestCheckpointRepository_SaveLoad(t *testing.T) {
	repo := setupCheckpointRepository(t)
	ctx := context.Background()

	cp := &core.Checkpoint{
		OutputDir: "/tmp/out",
		Source:    "/data/corpus.xml",
		Processed: 7,
		Invalid:   1,
		Batches: []core.BatchInfo{
			{Part: 1, Path: "/tmp/out/pubmed_tempfile1", Records: 3, Checksum: []byte{0xaa}},
			{Part: 2, Path: "/tmp/out/pubmed_tempfile2", Records: 4, Checksum: []byte{0xbb}},
		},
	}
	require.NoError(t, repo.SaveCheckpoint(ctx, cp))
	assert.False(t, cp.UpdatedAt.IsZero(), "save should stamp UpdatedAt")

	loaded, err := repo.LoadCheckpoint(ctx, "/tmp/out")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, cp.Processed, loaded.Processed)
	assert.Equal(t, cp.Invalid, loaded.Invalid)
	assert.Equal(t, cp.Batches, loaded.Batches)
	assert.Equal(t, []string{"/tmp/out/pubmed_tempfile1", "/tmp/out/pubmed_tempfile2"}, loaded.Files())
}

func TestCheckpointRepository_LoadMissing(t *testing.T) {
	repo := setupCheckpointRepository(t)

	loaded, err := repo.LoadCheckpoint(context.Background(), "/nowhere")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestCheckpointRepository_Overwrite(t *testing.T) {
	repo := setupCheckpointRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveCheckpoint(ctx, &core.Checkpoint{OutputDir: "/o", Processed: 1}))
	require.NoError(t, repo.SaveCheckpoint(ctx, &core.Checkpoint{OutputDir: "/o", Processed: 5}))

	loaded, err := repo.LoadCheckpoint(ctx, "/o")
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.Processed)
}

func TestCheckpointRepository_Delete(t *testing.T) {
	repo := setupCheckpointRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveCheckpoint(ctx, &core.Checkpoint{OutputDir: "/o"}))
	require.NoError(t, repo.DeleteCheckpoint(ctx, "/o"))

	loaded, err := repo.LoadCheckpoint(ctx, "/o")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	err = repo.DeleteCheckpoint(ctx, "/o")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCheckpointRepository_List(t *testing.T) {
	repo := setupCheckpointRepository(t)
	ctx := context.Background()

	for _, dir := range []string{"/b", "/a", "/c"} {
		require.NoError(t, repo.SaveCheckpoint(ctx, &core.Checkpoint{OutputDir: dir}))
	}

	all, err := repo.ListCheckpoints(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "/a", all[0].OutputDir)
	assert.Equal(t, "/b", all[1].OutputDir)
	assert.Equal(t, "/c", all[2].OutputDir)
}

func TestCheckpointRepository_Concurrent(t *testing.T) {
	repo := setupCheckpointRepository(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cp := &core.Checkpoint{OutputDir: string(rune('a' + i)), Processed: i}
			assert.NoError(t, repo.SaveCheckpoint(ctx, cp))
		}(i)
	}
	wg.Wait()

	all, err := repo.ListCheckpoints(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 8)
}

func TestCheckpointRepository_Closed(t *testing.T) {
	repo, backend, err := NewMemoryCheckpointRepository()
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	err = repo.SaveCheckpoint(context.Background(), &core.Checkpoint{OutputDir: "/o"})
	assert.ErrorIs(t, err, storage.ErrStorageClosed)

	_, err = repo.LoadCheckpoint(context.Background(), "/o")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}
