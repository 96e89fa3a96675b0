//go:build !unix

package resource

import "runtime"

// PeakRSS approximates the resident set size with the memory obtained from the OS.
func PeakRSS() (int64, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.Sys), nil
}
