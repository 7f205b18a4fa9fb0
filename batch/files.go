package batch

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/go-crypt/x/blake2b"
	"github.com/natefinch/atomic"
	"github.com/poiesic/medline/core"
	"github.com/poiesic/medline/storage"
)

// FileName returns the name of the batch file for a part number.
func FileName(prefix string, part int) string {
	return prefix + strconv.Itoa(part)
}

// partOf returns the part number encoded in a batch file name.
func partOf(name, prefix string) (int, bool) {
	suffix, ok := strings.CutPrefix(name, prefix)
	if !ok || suffix == "" {
		return 0, false
	}
	part, err := strconv.Atoi(suffix)
	if err != nil || part < 1 || strconv.Itoa(part) != suffix {
		return 0, false
	}
	return part, true
}

// ListFiles returns the batch files in dir ordered by part number.
// A missing directory holds no batch files.
func ListFiles(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list batch files in %s: %w", dir, err)
	}

	type numbered struct {
		part int
		path string
	}
	var found []numbered
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if part, ok := partOf(e.Name(), prefix); ok {
			found = append(found, numbered{part, filepath.Join(dir, e.Name())})
		}
	}
	slices.SortFunc(found, func(a, b numbered) int {
		return a.part - b.part
	})

	files := make([]string, len(found))
	for i, f := range found {
		files[i] = f.path
	}
	return files, nil
}

// RunDirs returns the directories under dir that hold the batches of a run:
// dir itself when it holds batch files, followed by every immediate
// subdirectory that does, in name order. Hidden directories are skipped.
// A missing directory holds no runs.
func RunDirs(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list runs in %s: %w", dir, err)
	}

	var dirs []string
	candidates := []string{dir}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			candidates = append(candidates, filepath.Join(dir, e.Name()))
		}
	}
	for _, d := range candidates {
		files, err := ListFiles(d, prefix)
		if err != nil {
			return nil, err
		}
		if len(files) > 0 {
			dirs = append(dirs, d)
		}
	}
	return dirs, nil
}

// Clean removes every batch file in dir and returns how many were removed.
func Clean(dir, prefix string) (int, error) {
	files, err := ListFiles(dir, prefix)
	if err != nil {
		return 0, err
	}
	for i, f := range files {
		if err := os.Remove(f); err != nil {
			return i, fmt.Errorf("remove stale batch file: %w", err)
		}
	}
	return len(files), nil
}

// Checksum returns the BLAKE2b-256 digest of data.
func Checksum(data []byte) []byte {
	h, _ := blake2b.New(32, nil)
	h.Write(data)
	return h.Sum(nil)
}

// WriteFile encodes records into a batch file at path. The file is written
// to a temporary name and renamed into place, so a reader never sees a
// partial batch. It returns the checksum of the written bytes.
func WriteFile(path string, records []core.Record) ([]byte, error) {
	data := storage.MarshalBatch(records)
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("write batch %s: %w", path, err)
	}
	return Checksum(data), nil
}

// ReadFile decodes a batch file. When checksum is non-nil the file contents
// must match it.
func ReadFile(path string, checksum []byte) ([]core.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch %s: %w", path, err)
	}
	if checksum != nil && !bytes.Equal(Checksum(data), checksum) {
		return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, path)
	}
	records, err := storage.UnmarshalBatch(data)
	if err != nil {
		return nil, fmt.Errorf("decode batch %s: %w", path, err)
	}
	return records, nil
}
