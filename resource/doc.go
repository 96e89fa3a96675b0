// Package resource accounts for the memory, worker slots and snapshot IO an
// index consumes.
//
// A Controller may be shared by several indexes so that a benchmark run stays
// within one memory budget and one query parallelism limit.
package resource
