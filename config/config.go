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

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FlushPolicy decides what happens when a batch file cannot be written.
type FlushPolicy string

const (
	// FlushContinue logs the failure, drops the batch and keeps ingesting.
	FlushContinue FlushPolicy = "continue"
	// FlushAbort stops the run on the first failed batch.
	FlushAbort FlushPolicy = "abort"
)

// Default values.
const (
	DefaultThreshold       = 100000
	DefaultRecordSeparator = "[RECORD_SEP]"
	DefaultFilePrefix      = "pubmed_tempfile"
	DefaultReportInterval  = 10000
	DefaultFlushRetries    = 3
	DefaultFlushRetryDelay = 200 * time.Millisecond
)

// ParserIndices locates fields inside a separator-split text record.
// Negative values count from the end.
type ParserIndices struct {
	Content   int `yaml:"content"`
	Permalink int `yaml:"permalink"`
	Title     int `yaml:"title"`
}

// Tags names the markup elements that make up a unit.
type Tags struct {
	Unit    string `yaml:"unit"`
	Title   string `yaml:"title"`
	Content string `yaml:"content"`
	ID      string `yaml:"id"`
	Date    string `yaml:"date"`
}

// Config holds configuration for an ingestion run.
type Config struct {
	// RecordSeparator replaces single blank lines inside a text record.
	RecordSeparator string `yaml:"record_separator"`

	// Parser holds the field positions for the text format.
	Parser ParserIndices `yaml:"parser"`

	// InputExtensions lists the accepted source extensions without the dot.
	// A trailing ".gz" on the source is accepted for any of them.
	InputExtensions []string `yaml:"input_extensions"`

	// Tags holds the element names for the markup format.
	Tags Tags `yaml:"tags"`

	// Threshold is the record index interval at which a batch is flushed.
	// Default: 100000
	Threshold int `yaml:"threshold"`

	// OutputDir receives the batch files.
	OutputDir string `yaml:"output_dir"`

	// StateDir holds the checkpoint store. Defaults to OutputDir/.medline.
	StateDir string `yaml:"state_dir"`

	// FilePrefix is prepended to the part number of every batch file.
	FilePrefix string `yaml:"file_prefix"`

	// Resume skips parsing when OutputDir already holds batch files.
	Resume bool `yaml:"resume"`

	// SkipKnownCount is reported as the processed count of a resumed run
	// when no checkpoint was recorded.
	SkipKnownCount int `yaml:"skip_known_count"`

	// FlushPolicy is either "continue" or "abort".
	FlushPolicy FlushPolicy `yaml:"flush_policy"`

	// FlushRetries is the number of write attempts per batch.
	FlushRetries int `yaml:"flush_retries"`

	// FlushRetryDelay is the base delay between write attempts.
	FlushRetryDelay time.Duration `yaml:"flush_retry_delay"`

	// ReportInterval logs progress every N units.
	ReportInterval int `yaml:"report_interval"`
}

// Option is a functional option for configuring a Config.
type Option func(*Config)

// WithOutputDir sets the batch output directory.
func WithOutputDir(dir string) Option {
	return func(c *Config) {
		c.OutputDir = dir
	}
}

// WithStateDir sets the checkpoint store directory.
func WithStateDir(dir string) Option {
	return func(c *Config) {
		c.StateDir = dir
	}
}

// WithThreshold sets the batch threshold.
func WithThreshold(n int) Option {
	return func(c *Config) {
		c.Threshold = n
	}
}

// WithResume enables resume mode with a fallback processed count.
func WithResume(skipKnownCount int) Option {
	return func(c *Config) {
		c.Resume = true
		c.SkipKnownCount = skipKnownCount
	}
}

// WithFlushPolicy sets the persistence failure policy.
func WithFlushPolicy(p FlushPolicy) Option {
	return func(c *Config) {
		c.FlushPolicy = p
	}
}

// WithFlushRetries sets the write attempts and base backoff for each batch.
func WithFlushRetries(attempts int, delay time.Duration) Option {
	return func(c *Config) {
		c.FlushRetries = attempts
		c.FlushRetryDelay = delay
	}
}

// WithRecordSeparator sets the text record separator token.
func WithRecordSeparator(sep string) Option {
	return func(c *Config) {
		c.RecordSeparator = sep
	}
}

// WithParserIndices sets the text field positions.
func WithParserIndices(idx ParserIndices) Option {
	return func(c *Config) {
		c.Parser = idx
	}
}

// WithTags sets the markup element names.
func WithTags(tags Tags) Option {
	return func(c *Config) {
		c.Tags = tags
	}
}

// WithFilePrefix sets the batch file name prefix.
func WithFilePrefix(prefix string) Option {
	return func(c *Config) {
		c.FilePrefix = prefix
	}
}

// WithReportInterval sets the progress log interval.
func WithReportInterval(n int) Option {
	return func(c *Config) {
		c.ReportInterval = n
	}
}

// DefaultTags returns the PubMed XML element names.
func DefaultTags() Tags {
	return Tags{
		Unit:    "PubmedArticle",
		Title:   "ArticleTitle",
		Content: "AbstractText",
		ID:      "PMID",
		Date:    "DateCompleted",
	}
}

// DefaultConfig returns a Config with defaults matching PubMed abstract
// text exports and PubMed XML.
func DefaultConfig() *Config {
	return &Config{
		RecordSeparator: DefaultRecordSeparator,
		Parser: ParserIndices{
			Title:     1,
			Content:   4,
			Permalink: -1,
		},
		InputExtensions: []string{"txt", "xml"},
		Tags:            DefaultTags(),
		Threshold:       DefaultThreshold,
		FilePrefix:      DefaultFilePrefix,
		FlushPolicy:     FlushContinue,
		FlushRetries:    DefaultFlushRetries,
		FlushRetryDelay: DefaultFlushRetryDelay,
		ReportInterval:  DefaultReportInterval,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithOutputDir("/var/tmp/pubmed"),
//	    WithThreshold(50000),
//	)
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Load reads a YAML file over the defaults and applies opts afterwards.
// Keys missing from the file keep their default values.
func Load(path string, opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}

	for _, opt := range opts {
		opt(cfg)
	}
	return cfg, nil
}

// Normalize puts the configuration in canonical form: extensions are
// lower-cased without a leading dot, directories are cleaned, and StateDir
// defaults to a hidden directory inside OutputDir.
func (c *Config) Normalize() {
	exts := c.InputExtensions[:0:0]
	for _, ext := range c.InputExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	c.InputExtensions = exts

	if c.OutputDir != "" {
		c.OutputDir = filepath.Clean(c.OutputDir)
	}
	if c.StateDir == "" && c.OutputDir != "" {
		c.StateDir = filepath.Join(c.OutputDir, ".medline")
	}
	if c.FlushPolicy == "" {
		c.FlushPolicy = FlushContinue
	}
}

// Validate checks that the configuration is valid and complete.
// It normalizes the configuration first.
func (c *Config) Validate() error {
	c.Normalize()

	if c.OutputDir == "" {
		return fmt.Errorf("%w: output directory is required", ErrInvalidConfig)
	}
	if c.Threshold < 1 {
		return fmt.Errorf("%w: threshold must be at least 1", ErrInvalidConfig)
	}
	if c.RecordSeparator == "" {
		return fmt.Errorf("%w: record separator is required", ErrInvalidConfig)
	}
	if c.FilePrefix == "" || strings.ContainsRune(c.FilePrefix, filepath.Separator) {
		return fmt.Errorf("%w: invalid file prefix %q", ErrInvalidConfig, c.FilePrefix)
	}
	if len(c.InputExtensions) == 0 {
		return fmt.Errorf("%w: at least one input extension is required", ErrInvalidConfig)
	}
	if c.Tags.Unit == "" || c.Tags.Title == "" || c.Tags.Content == "" || c.Tags.ID == "" {
		return fmt.Errorf("%w: unit, title, content and id tags are required", ErrInvalidConfig)
	}
	if c.FlushPolicy != FlushContinue && c.FlushPolicy != FlushAbort {
		return fmt.Errorf("%w: %q", ErrUnknownFlushPolicy, c.FlushPolicy)
	}
	if c.FlushRetries < 1 {
		return fmt.Errorf("%w: flush retries must be at least 1", ErrInvalidConfig)
	}
	if c.SkipKnownCount < 0 {
		return fmt.Errorf("%w: skip known count cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// Supports reports whether a source file name has an accepted extension.
// A ".gz" suffix is ignored.
func (c *Config) Supports(name string) bool {
	return c.Format(name) != ""
}

// Format returns the accepted extension of a source file name, or "" when
// the extension is not supported.
func (c *Config) Format(name string) string {
	base := strings.ToLower(filepath.Base(name))
	base = strings.TrimSuffix(base, ".gz")
	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	for _, e := range c.InputExtensions {
		if strings.ToLower(strings.TrimPrefix(e, ".")) == ext {
			return ext
		}
	}
	return ""
}

// Compressed reports whether a source file name carries a gzip suffix.
func Compressed(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".gz")
}
