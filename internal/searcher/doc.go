// Package searcher provides pooled, per-goroutine scratch state for graph search.
package searcher
