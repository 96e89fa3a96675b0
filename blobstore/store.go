package blobstore

import (
	"context"
	"errors"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store is an abstraction for immutable snapshot blobs.
// Implementations must be safe for concurrent use.
type Store interface {
	// Open opens a blob for sequential reading.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Create starts a new blob. It replaces any blob of the same name once closed.
	Create(ctx context.Context, name string) (WritableBlob, error)
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names of all blobs with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// WritableBlob is a blob being written.
type WritableBlob interface {
	io.Writer
	// Close commits the blob.
	Close() error
	// Abort discards the blob. It is a no-op after Close.
	Abort() error
}

// Write creates name in s and fills it with fn. The blob is aborted if fn fails.
func Write(ctx context.Context, s Store, name string, fn func(w io.Writer) error) error {
	wb, err := s.Create(ctx, name)
	if err != nil {
		return err
	}
	if err := fn(wb); err != nil {
		return errors.Join(err, wb.Abort())
	}
	return wb.Close()
}

// Read opens name in s and hands it to fn.
func Read(ctx context.Context, s Store, name string, fn func(r io.Reader) error) error {
	rc, err := s.Open(ctx, name)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	return fn(rc)
}
