//go:build !linux

package resource

import (
	"errors"
	"runtime"
)

// errNoProcfs is returned where per-process memory needs /proc.
var errNoProcfs = errors.New("resource: process memory requires procfs")

// CurrentRSS approximates the resident set size with the memory obtained from
// the OS minus what the heap has returned.
func CurrentRSS() (int64, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.Sys - ms.HeapReleased), nil
}

// ProgramRSS is only available on Linux.
func ProgramRSS(string) (int64, error) { return 0, errNoProcfs }

// CgroupMemory reads the cgroup in dir; the own cgroup is only resolved on Linux.
func CgroupMemory(dir string) (int64, error) {
	if dir == "" {
		return 0, errNoProcfs
	}
	return readCgroupMemory(dir)
}
