// Package stream provides lazily opened byte sources that compose into a single
// response: files, remote fetches, a tee that persists what it forwards, time
// and parameter filters for CSV and fixed-width binary records, concatenation,
// and a comment-prefixed header block. Nothing performs I/O until Open is
// called, so a chain can be assembled before deciding what will actually run.
package stream
