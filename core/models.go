package core

import (
	"time"
)

// Record is one bibliographic unit assembled from a source document.
// Nil fields are absent; an empty string is never stored in place of nil.
type Record struct {
	Index     int
	Title     *string
	Content   *string
	Permalink *string
}

// Pair is the view of a record handed to feature extraction.
type Pair struct {
	ID   string
	Text string
}

// Pair returns the (permalink, content) pair of a valid record.
// Absent fields map to empty strings.
func (r *Record) Pair() Pair {
	var p Pair
	if r.Permalink != nil {
		p.ID = *r.Permalink
	}
	if r.Content != nil {
		p.Text = *r.Content
	}
	return p
}

// BatchInfo describes one flushed batch file.
type BatchInfo struct {
	Part     int
	Path     string
	Records  int
	Checksum []byte // BLAKE2b-256 of the file contents
}

// Checkpoint summarizes an ingestion run into one output directory.
// It is saved after every successful flush and when the run ends.
type Checkpoint struct {
	OutputDir string
	Source    string
	Processed int // valid records persisted
	Invalid   int // units dropped by the completion policy
	Batches   []BatchInfo
	UpdatedAt time.Time
}

// Files returns the batch paths in part order.
func (c *Checkpoint) Files() []string {
	files := make([]string, len(c.Batches))
	for i, b := range c.Batches {
		files[i] = b.Path
	}
	return files
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
