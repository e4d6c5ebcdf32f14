// Package cache maps HAPI requests onto the on-disk granule layout
//
//	<root>/<protocol>/<host[:port]>/<hapi-path>/<dataset>/<yyyy>/<mm>/<bucket>.<ext>
//
// and answers the questions the orchestrator asks before any byte moves: which
// files cover a request, which remote sub-request fills each one, and whether
// an existing file is still fresh under the caller's Directive. Writing is left
// to the tee in package stream; the store only hands out per-path locks so
// concurrent fills of the same granule serialize.
package cache
