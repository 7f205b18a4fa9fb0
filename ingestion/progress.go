package ingestion

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const mib = 1 << 20

// ProgressTracker reports how much of a source has been consumed.
// Progress is measured in bytes of the source file as stored on disk.
type ProgressTracker struct {
	writer         io.Writer
	label          string
	total          int64
	current        int64
	reportInterval int64
	lastReported   int64
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

// NewProgressTracker creates a new progress tracker.
// writer: where to write progress output (typically os.Stderr)
// total: size of the source in bytes
// The tracker reports every time another percent of total has been read.
func NewProgressTracker(writer io.Writer, label string, total int64) *ProgressTracker {
	return &ProgressTracker{
		writer:         writer,
		label:          label,
		total:          total,
		reportInterval: max(total/100, 1),
	}
}

// Start begins tracking progress.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.current = 0
	p.lastReported = 0
}

// Increment increases the current progress by n bytes.
func (p *ProgressTracker) Increment(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.current = min(p.current+n, p.total)
	if p.current-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.current
	}
}

// Finish marks the source as fully read and prints final progress.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.current = p.total
	p.report()
	fmt.Fprintln(p.writer)
}

// report prints the current progress. Must be called with lock held.
func (p *ProgressTracker) report() {
	elapsed := time.Since(p.startTime)
	rate := float64(p.current) / mib / elapsed.Seconds()

	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100.0
	}

	fmt.Fprintf(p.writer, "\r%s: %.1f/%.1f MiB (%.1f%%) - %.1f MiB/s",
		p.label, float64(p.current)/mib, float64(p.total)/mib, percentage, rate)
}

// progressReader counts the bytes read through it.
type progressReader struct {
	r       io.Reader
	tracker *ProgressTracker
}

func (pr *progressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	if n > 0 {
		pr.tracker.Increment(int64(n))
	}
	return n, err
}
