// Package segment reads the flat text export format.
//
// A Segmenter cuts the stream into raw records on blank-line boundaries. A
// Parser turns each raw record into fields, and Emit replays those fields as
// markup events so that the same handlers serve both input formats.
package segment
