package persistence

import (
	"context"
	"os"
	"path/filepath"
)

// SaveToFile writes s to filename atomically: the snapshot goes to a temp file
// in the same directory which is synced and renamed over the target.
func SaveToFile(ctx context.Context, filename string, s *IndexSnapshot, optFns ...Option) error {
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	_ = tmp.Chmod(0644)

	if err := Write(ctx, tmp, s, optFns...); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, filename); err != nil {
		return err
	}

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	tmpName = ""
	return nil
}

// LoadFromFile reads a snapshot written by SaveToFile.
func LoadFromFile(ctx context.Context, filename string, optFns ...Option) (*IndexSnapshot, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(ctx, f, optFns...)
}
