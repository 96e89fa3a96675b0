//go:build linux

package resource

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/prometheus/procfs"
)

// cgroupRoot is where the cgroup filesystem is mounted.
const cgroupRoot = "/sys/fs/cgroup"

// CurrentRSS returns the resident set size of the process in bytes.
func CurrentRSS() (int64, error) {
	p, err := procfs.Self()
	if err != nil {
		return 0, err
	}
	stat, err := p.Stat()
	if err != nil {
		return 0, err
	}
	return int64(stat.ResidentMemory()), nil
}

// ProgramRSS sums the resident set size of every process whose command line
// contains name. Processes that exit during the scan are skipped.
func ProgramRSS(name string) (int64, error) {
	if name == "" {
		return 0, errors.New("resource: empty program name")
	}
	procs, err := procfs.AllProcs()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, p := range procs {
		cmdline, err := p.CmdLine()
		if err != nil || !strings.Contains(strings.Join(cmdline, " "), name) {
			continue
		}
		stat, err := p.Stat()
		if err != nil {
			continue
		}
		total += int64(stat.ResidentMemory())
	}
	return total, nil
}

// CgroupMemory returns the memory charged to the cgroup in dir. An empty dir
// selects the cgroup of the current process, which inside a container is the
// container itself.
func CgroupMemory(dir string) (int64, error) {
	if dir == "" {
		own, err := ownCgroupDir()
		if err != nil {
			return 0, err
		}
		dir = own
	}
	return readCgroupMemory(dir)
}

// ownCgroupDir resolves the memory cgroup of the current process, preferring
// the unified (v2) hierarchy.
func ownCgroupDir() (string, error) {
	p, err := procfs.Self()
	if err != nil {
		return "", err
	}
	groups, err := p.Cgroups()
	if err != nil {
		return "", err
	}
	for _, g := range groups {
		if g.HierarchyID == 0 {
			return filepath.Join(cgroupRoot, g.Path), nil
		}
	}
	for _, g := range groups {
		if slices.Contains(g.Controllers, "memory") {
			return filepath.Join(cgroupRoot, "memory", g.Path), nil
		}
	}
	return "", fmt.Errorf("resource: no memory cgroup in %d entries", len(groups))
}
