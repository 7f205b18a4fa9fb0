// Package ingestion provides pipeline orchestration for turning bibliographic
// source files into batch files.
//
// The Pipeline type manages one ingestion run per source, including:
//   - Failing fast on sources that cannot be parsed
//   - Resuming from the batches of a previous run
//   - Driving the text segmenter or the markup decoder into a batch manager
//   - Reporting the valid and invalid record totals
//
// IngestAll processes several sources concurrently using a worker pool. Each
// source gets its own assembler, batch manager and output directory, so runs
// never share mutable state.
package ingestion
