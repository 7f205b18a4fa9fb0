// Package batch persists assembled records as numbered, immutable batch files.
//
// A Manager wraps a markup.Assembler and flushes its records every time the
// unit index crosses a multiple of the configured threshold, plus once at the
// end of the document. Batch files are named <prefix><part>, with parts
// numbered from 1, and are written atomically with a BLAKE2b checksum
// recorded in the run checkpoint.
//
// Resume returns the files of a previous run so that the source does not
// have to be parsed again.
package batch
