package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/medline/config"
	"github.com/poiesic/medline/core"
	"github.com/poiesic/medline/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestListFiles_NumericOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"part10", "part2", "part1", "part01", "part", "other3", "part3.tmp"} {
		touch(t, filepath.Join(dir, name))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "part4"), 0o755))

	files, err := ListFiles(dir, "part")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "part1"),
		filepath.Join(dir, "part2"),
		filepath.Join(dir, "part10"),
	}, files)
}

func TestListFiles_MissingDirectory(t *testing.T) {
	files, err := ListFiles(filepath.Join(t.TempDir(), "nope"), "part")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRunDirs(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "part1"))
	for _, sub := range []string{"b", "a", "empty", ".state"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, sub), 0o755))
	}
	touch(t, filepath.Join(dir, "a", "part1"))
	touch(t, filepath.Join(dir, "b", "part2"))
	touch(t, filepath.Join(dir, ".state", "part1"))
	touch(t, filepath.Join(dir, "empty", "notes"))

	dirs, err := RunDirs(dir, "part")
	require.NoError(t, err)
	assert.Equal(t, []string{
		dir,
		filepath.Join(dir, "a"),
		filepath.Join(dir, "b"),
	}, dirs)

	t.Run("only subdirectories", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(dir, "part1")))
		dirs, err := RunDirs(dir, "part")
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "a"), filepath.Join(dir, "b")}, dirs)
	})

	t.Run("missing directory", func(t *testing.T) {
		dirs, err := RunDirs(filepath.Join(dir, "nope"), "part")
		require.NoError(t, err)
		assert.Empty(t, dirs)
	})
}

func TestClean(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "part1"))
	touch(t, filepath.Join(dir, "part2"))
	touch(t, filepath.Join(dir, "keep.txt"))

	n, err := Clean(dir, "part")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "keep.txt", entries[0].Name())
}

func TestWriteReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "part1")
	records := []core.Record{
		{Index: 1, Title: core.StringPtr("t"), Content: core.StringPtr("c1"), Permalink: core.StringPtr("1")},
		{Index: 2, Content: core.StringPtr("c2"), Permalink: core.StringPtr("2")},
	}

	sum, err := WriteFile(path, records)
	require.NoError(t, err)
	assert.Len(t, sum, 32)

	got, err := ReadFile(path, sum)
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestReadFile_ChecksumMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "part1")
	_, err := WriteFile(path, []core.Record{{Index: 1, Content: core.StringPtr("c"), Permalink: core.StringPtr("1")}})
	require.NoError(t, err)

	_, err = ReadFile(path, Checksum([]byte("something else")))
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestReadFile_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "part1")
	require.NoError(t, os.WriteFile(path, []byte("not a batch"), 0o644))

	_, err := ReadFile(path, nil)
	assert.ErrorIs(t, err, storage.ErrSerializationFailed)
}

func TestPartOf(t *testing.T) {
	tests := []struct {
		name string
		part int
		ok   bool
	}{
		{"pubmed_tempfile1", 1, true},
		{"pubmed_tempfile42", 42, true},
		{"pubmed_tempfile0", 0, false},
		{"pubmed_tempfile007", 0, false},
		{"pubmed_tempfile-1", 0, false},
		{"pubmed_tempfile", 0, false},
		{"other1", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			part, ok := partOf(tt.name, config.DefaultFilePrefix)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.part, part)
		})
	}
}
