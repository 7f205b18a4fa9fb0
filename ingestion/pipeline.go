package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/medline/batch"
	"github.com/poiesic/medline/config"
	"github.com/poiesic/medline/markup"
	"github.com/poiesic/medline/segment"
	"github.com/poiesic/medline/storage"
)

// Pipeline turns source files into batch files.
// Each source is parsed in one pass by a dedicated assembler and batch
// manager; several sources run concurrently on a worker pool.
type Pipeline struct {
	cfg      *config.Config
	repo     storage.CheckpointRepository
	pool     *ants.Pool
	parser   segment.Parser
	progress io.Writer
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the number of sources ingested concurrently by IngestAll.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		if p.pool != nil {
			p.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithCheckpoints saves run checkpoints to repo and uses them on resume.
func WithCheckpoints(repo storage.CheckpointRepository) Option {
	return func(p *Pipeline) error {
		p.repo = repo
		return nil
	}
}

// WithParser sets the field parser for text sources.
// Default is an AbstractsParser built from the configuration.
func WithParser(parser segment.Parser) Option {
	return func(p *Pipeline) error {
		p.parser = parser
		return nil
	}
}

// WithProgress writes a progress line for every source to w.
func WithProgress(w io.Writer) Option {
	return func(p *Pipeline) error {
		p.progress = w
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline. The configuration is
// validated before any source is touched.
func NewPipeline(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:    cfg,
		pool:   pool,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	if p.parser == nil {
		p.parser = segment.NewAbstractsParser(cfg.RecordSeparator, cfg.Parser)
	}
	return p, nil
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// Ingest parses source into batch files in the configured output directory.
//
// With resume enabled and batch files already present, the source is not
// opened and the existing files are returned. source may then be empty.
//
// A source that ends in a syntax error still yields the batches completed
// before the error; they are returned together with the error.
func (p *Pipeline) Ingest(ctx context.Context, source string) (*batch.Result, error) {
	return p.ingest(ctx, p.cfg, source, p.logger)
}

func (p *Pipeline) ingest(ctx context.Context, cfg *config.Config, source string, logger *slog.Logger) (*batch.Result, error) {
	if err := p.checkSource(cfg, source); err != nil {
		return nil, err
	}

	res, err := batch.Resume(ctx, cfg, p.repo, logger)
	if err != nil {
		return nil, err
	}
	if res != nil {
		return res, nil
	}

	if source == "" {
		if cfg.Resume {
			return nil, fmt.Errorf("%w: %s", ErrResumeUnavailable, cfg.OutputDir)
		}
		return nil, ErrSourceRequired
	}

	f, err := os.Open(source)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, source)
		}
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	if err := p.clearOutput(ctx, cfg, logger); err != nil {
		return nil, err
	}

	var r io.Reader = f
	var tracker *ProgressTracker
	if p.progress != nil {
		if info, statErr := f.Stat(); statErr == nil {
			tracker = NewProgressTracker(p.progress, filepath.Base(source), info.Size())
			tracker.Start()
			r = &progressReader{r: f, tracker: tracker}
		}
	}
	if config.Compressed(source) {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open gzip source: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	asm := markup.NewAssembler(cfg.Tags, markup.WithLogger(logger))
	mgr, err := batch.NewManager(ctx, cfg, asm,
		batch.WithCheckpoints(p.repo),
		batch.WithSource(absPath(source)),
		batch.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	h := &reportingHandler{Manager: mgr, asm: asm, unit: cfg.Tags.Unit, every: cfg.ReportInterval, logger: logger}

	start := time.Now()
	logger.Info("ingesting source", "path", source, "format", cfg.Format(source), "outputDir", cfg.OutputDir)

	switch cfg.Format(source) {
	case "txt":
		err = segment.Emit(ctx, segment.NewSegmenter(r, cfg.RecordSeparator), p.parser, cfg.Tags, h)
	default:
		err = markup.Decode(ctx, r, h)
	}

	// Input that breaks off, whether by a syntax error, a truncated
	// stream or a read error, keeps the records completed before it.
	// Cancellation and a failed flush under the abort policy write nothing.
	if err != nil && mgr.Err() == nil && ctx.Err() == nil {
		logger.Error("source ended with an error, keeping records read so far",
			"path", source, "records", mgr.Pending(), "error", err)
		mgr.Flush()
	}
	if tracker != nil && err == nil {
		tracker.Finish()
	}

	if p.repo != nil && mgr.Err() == nil {
		if saveErr := p.repo.SaveCheckpoint(ctx, mgr.Checkpoint()); saveErr != nil {
			logger.Warn("failed to save final checkpoint", "error", saveErr)
		}
	}

	res = mgr.Result()
	logger.Info("ingestion finished",
		"path", source,
		"valid", res.Processed,
		"invalid", res.Invalid,
		"orphans", res.Orphans,
		"lost", res.Lost,
		"batches", len(res.Files),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	if err != nil {
		return res, fmt.Errorf("ingest %s: %w", source, err)
	}
	return res, nil
}

// checkSource fails fast on a source that could never be parsed.
func (p *Pipeline) checkSource(cfg *config.Config, source string) error {
	if source == "" {
		return nil
	}
	if info, err := os.Stat(source); err == nil && info.IsDir() {
		return fmt.Errorf("%w: %s", ErrInputIsDirectory, source)
	}
	if !cfg.Supports(source) {
		return fmt.Errorf("%w: %s (supported: %s)", ErrUnsupportedExtension,
			filepath.Base(source), strings.Join(cfg.InputExtensions, ", "))
	}
	return nil
}

// clearOutput removes the batches and checkpoint of an earlier run so that
// the output directory only ever holds the batches of one run.
func (p *Pipeline) clearOutput(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	n, err := batch.Clean(cfg.OutputDir, cfg.FilePrefix)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Warn("removed batch files of a previous run", "outputDir", cfg.OutputDir, "files", n)
	}
	if p.repo != nil {
		err := p.repo.DeleteCheckpoint(ctx, batch.CheckpointKey(cfg.OutputDir))
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("delete stale checkpoint: %w", err)
		}
	}
	return nil
}

// IngestAll ingests several sources concurrently. Every source writes into
// its own subdirectory of the output directory, named after the source file
// without its extensions. Results are returned in the order of sources; the
// result of a failed source is nil and its error is joined into the
// returned error.
func (p *Pipeline) IngestAll(ctx context.Context, sources []string) ([]*batch.Result, error) {
	dirs := make(map[string]string, len(sources))
	for _, source := range sources {
		name := sourceName(source)
		if prev, ok := dirs[name]; ok {
			return nil, fmt.Errorf("%w: %s and %s", ErrDuplicateSource, prev, source)
		}
		dirs[name] = source
	}

	results := make([]*batch.Result, len(sources))
	errs := make([]error, len(sources))
	var wg sync.WaitGroup

	for i, source := range sources {
		cfg := *p.cfg
		cfg.OutputDir = filepath.Join(p.cfg.OutputDir, sourceName(source))
		logger := p.logger.With("source", filepath.Base(source))

		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			results[i], errs[i] = p.ingest(ctx, &cfg, source, logger)
		})
		if err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("submit %s: %w", source, err)
		}
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			results[i] = nil
		}
	}
	return results, errors.Join(errs...)
}

// ResumeAll resumes the runs in dirs, typically the output directory and
// the per-source subdirectories of an earlier IngestAll. Every directory is
// resumed as if cfg.Resume were set; a directory without batch files fails
// with ErrResumeUnavailable. Results are returned in the order of dirs.
func (p *Pipeline) ResumeAll(ctx context.Context, dirs []string) ([]*batch.Result, error) {
	results := make([]*batch.Result, len(dirs))
	errs := make([]error, len(dirs))
	for i, dir := range dirs {
		cfg := *p.cfg
		cfg.OutputDir = dir
		cfg.Resume = true
		results[i], errs[i] = p.ingest(ctx, &cfg, "", p.logger.With("run", dir))
	}
	return results, errors.Join(errs...)
}

// sourceName returns the base name of a source without its extensions.
func sourceName(source string) string {
	name := filepath.Base(source)
	if config.Compressed(name) {
		name = name[:len(name)-len(".gz")]
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// reportingHandler logs progress every few units on top of a batch manager.
type reportingHandler struct {
	*batch.Manager
	asm    *markup.Assembler
	unit   string
	every  int
	logger *slog.Logger
}

func (h *reportingHandler) EndElement(name string) {
	h.Manager.EndElement(name)
	if name != h.unit || h.every <= 0 {
		return
	}
	if idx := h.asm.Index(); idx%h.every == 0 {
		stats := h.asm.Stats()
		h.logger.Info("ingestion progress", "units", idx, "retained", stats.Retained, "invalid", stats.Invalid())
	}
}
