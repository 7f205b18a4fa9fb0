// Package stream re-reads persisted batches as a lazy sequence of
// (identifier, text) pairs for feature extraction.
package stream
