package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Open(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	payload := bytes.Repeat([]byte("snapshot"), 1000)
	require.NoError(t, Write(ctx, s, "runs/a.annb", func(w io.Writer) error {
		_, err := w.Write(payload)
		return err
	}))
	require.NoError(t, Write(ctx, s, "runs/b.annb", func(w io.Writer) error {
		_, err := w.Write([]byte("b"))
		return err
	}))
	require.NoError(t, Write(ctx, s, "other.annb", func(w io.Writer) error { return nil }))

	var got []byte
	require.NoError(t, Read(ctx, s, "runs/a.annb", func(r io.Reader) error {
		got, err = io.ReadAll(r)
		return err
	}))
	assert.Equal(t, payload, got)

	names, err := s.List(ctx, "runs/")
	require.NoError(t, err)
	assert.Equal(t, []string{"runs/a.annb", "runs/b.annb"}, names)

	boom := errors.New("boom")
	err = Write(ctx, s, "runs/c.annb", func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, err = s.Open(ctx, "runs/c.annb")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(ctx, "runs/b.annb"))
	require.NoError(t, s.Delete(ctx, "runs/b.annb"))
	names, err = s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"other.annb", "runs/a.annb"}, names)
}

func TestLocalStore(t *testing.T) {
	testStore(t, NewLocalStore(t.TempDir()))
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestLocalStore_ListMissingRoot(t *testing.T) {
	s := NewLocalStore(filepath.Join(t.TempDir(), "nope"))
	names, err := s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLocalStore_AbortLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)

	wb, err := s.Create(context.Background(), "x.annb")
	require.NoError(t, err)
	_, err = wb.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, wb.Abort())
	assert.NoError(t, wb.Abort())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWritableBlob_CloseTwice(t *testing.T) {
	for name, s := range map[string]Store{"local": NewLocalStore(t.TempDir()), "memory": NewMemoryStore()} {
		t.Run(name, func(t *testing.T) {
			wb, err := s.Create(context.Background(), "x")
			require.NoError(t, err)
			require.NoError(t, wb.Close())
			assert.ErrorIs(t, wb.Close(), os.ErrClosed)
			_, err = wb.Write([]byte("late"))
			assert.ErrorIs(t, err, os.ErrClosed)
		})
	}
}
