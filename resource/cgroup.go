package resource

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// cgroupMemoryFiles lists the usage files of cgroup v2 and v1.
var cgroupMemoryFiles = []string{"memory.current", "memory.usage_in_bytes"}

func readCgroupMemory(dir string) (int64, error) {
	for _, name := range cgroupMemoryFiles {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(string(bytes.TrimSpace(data)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("resource: parse %s: %w", name, err)
		}
		return v, nil
	}
	return 0, fmt.Errorf("resource: no memory usage file in %s: %w", dir, os.ErrNotExist)
}
