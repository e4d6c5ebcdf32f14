// Package hapi models the pieces of the HAPI protocol the cache needs to reason
// about: parsing an endpoint URL into a Request, rewriting its query for
// per-day sub-requests, the restricted ISO-8601 time forms HAPI servers emit,
// and the info descriptor (parameter names, types, widths) used to size binary
// records and to build filtered headers.
//
// Nothing in this package performs I/O; callers hand it URLs, strings and raw
// JSON bytes.
package hapi
