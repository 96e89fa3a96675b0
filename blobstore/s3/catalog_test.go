package s3

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_CommitAndLatest(t *testing.T) {
	ctx := context.Background()
	catalog := NewCatalog(newMockDDBClient(), "annbench-snapshots")

	_, err := catalog.Latest(ctx, "glove")
	assert.ErrorIs(t, err, ErrNoVersion)

	v1, err := catalog.Commit(ctx, "glove", "glove/1.annb", "run-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v1.Number)

	v2, err := catalog.Commit(ctx, "glove", "glove/2.annb", "run-2")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v2.Number)

	_, err = catalog.Commit(ctx, "sift", "sift/1.annb", "run-3")
	require.NoError(t, err)

	latest, err := catalog.Latest(ctx, "glove")
	require.NoError(t, err)
	assert.Equal(t, &Version{Index: "glove", Number: 2, Snapshot: "glove/2.annb", RunID: "run-2"}, latest)
}

func TestCatalog_ConcurrentModification(t *testing.T) {
	ctx := context.Background()
	client := newMockDDBClient()
	catalog := NewCatalog(client, "annbench-snapshots")

	// Another writer commits version 1 between our read and our write.
	client.beforePut = func() {
		_, err := NewCatalog(client, "annbench-snapshots").Commit(ctx, "glove", "other.annb", "run-x")
		require.NoError(t, err)
	}

	_, err := catalog.Commit(ctx, "glove", "mine.annb", "run-y")
	assert.ErrorIs(t, err, ErrConcurrentModification)

	latest, err := catalog.Latest(ctx, "glove")
	require.NoError(t, err)
	assert.Equal(t, "other.annb", latest.Snapshot)
}
