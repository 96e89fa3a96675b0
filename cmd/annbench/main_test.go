package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/annbench"
	"github.com/hupe1980/annbench/benchmark"
	"github.com/hupe1980/annbench/blobstore"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	doc := `
dataset:
  train: 300
  test: 10
  dimension: 8
k: 5
algorithms:
  - M: [8]
    efConstruction: [40]
    ef: [10, 40]
store:
  kind: file
  path: ` + dir + `
  compression: lz4
`
	path := filepath.Join(dir, "bench.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	report := filepath.Join(dir, "report.json")

	out, err := execute(t, "run", "--config", cfg, "--output", report, "--batch")
	require.NoError(t, err)
	assert.Contains(t, out, "hnsw ({'M': 8, 'efConstruction': 40})")
	assert.FileExists(t, report)
}

func TestBuildAndQueryCommands(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)

	out, err := execute(t, "build", "--config", cfg, "--out", "snap.annb", "--ef", "20")
	require.NoError(t, err)
	assert.Contains(t, out, "saved snap.annb (lz4, file store)")

	names, err := blobstore.NewLocalStore(dir).List(context.Background(), "snap")
	require.NoError(t, err)
	assert.Equal(t, []string{"snap.annb"}, names)

	out, err = execute(t, "query", "--config", cfg, "--snapshot", "snap.annb")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "hnsw(metric=L2, M=8, efConstruction=40, ef=20)"), out)
	assert.Contains(t, out, "recall@5")
}

func TestQueryCommand_MissingSnapshot(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)

	_, err := execute(t, "query", "--config", cfg)
	assert.ErrorContains(t, err, "--snapshot or --latest is required")

	_, err = execute(t, "query", "--config", cfg, "--snapshot", "absent.annb")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := execute(t, "run", "--log-level", "loud")
	assert.ErrorContains(t, err, "invalid --log-level")
}

func TestRunCommand_Limits(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)

	_, err := execute(t, "run", "--config", cfg, "--memory-limit", "1KiB")
	assert.ErrorIs(t, err, annbench.ErrMemoryLimit)

	_, err = execute(t, "run", "--config", cfg, "--memory-limit", "lots")
	assert.ErrorContains(t, err, "invalid --memory-limit")

	_, err = execute(t, "run", "--config", cfg, "--io-limit", "fast")
	assert.ErrorContains(t, err, "invalid --io-limit")

	out, err := execute(t, "build", "--config", cfg, "--out", "limited.annb",
		"--memory-limit", "256MiB", "--io-limit", "64MiB", "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Contains(t, out, "saved limited.annb")
}

func TestGlobalFlags_Controller(t *testing.T) {
	g := &globalFlags{}
	rc, err := g.controller()
	require.NoError(t, err)
	assert.Nil(t, rc)

	g = &globalFlags{memoryLimit: "1MiB", ioLimit: "2MiB"}
	rc, err = g.controller()
	require.NoError(t, err)
	require.NotNil(t, rc)
	assert.Equal(t, int64(1<<20), rc.Config().MemoryLimitBytes)
	assert.Equal(t, int64(2<<20), rc.Config().IOLimitBytesPerSec)
}

func TestServeMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	mc, err := annbench.NewPrometheusMetricsCollector(reg, "annbench")
	require.NoError(t, err)

	addr, shutdown, err := serveMetrics("127.0.0.1:0", reg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, shutdown(ctx)) }()

	idx, err := annbench.New(annbench.WithMetricsCollector(mc))
	require.NoError(t, err)
	require.NoError(t, idx.Fit(ctx, [][]float32{{0, 0}, {1, 1}}))

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `annbench_operations_total{op="fit"} 1`)
	assert.Contains(t, string(body), "annbench_indexed_vectors_total 2")
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	s, err := openStore(ctx, benchmark.StoreConfig{Kind: "file", Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &blobstore.LocalStore{}, s)

	_, err = openStore(ctx, benchmark.StoreConfig{Kind: "s3"})
	assert.ErrorContains(t, err, "bucket")

	_, err = openStore(ctx, benchmark.StoreConfig{Kind: "minio", Bucket: "b"})
	assert.ErrorContains(t, err, "endpoint")

	_, err = openStore(ctx, benchmark.StoreConfig{Kind: "tape"})
	assert.Error(t, err)

	c, err := openCatalog(ctx, benchmark.StoreConfig{Kind: "file"})
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = openCatalog(ctx, benchmark.StoreConfig{Kind: "file", CatalogTable: "t"})
	assert.ErrorContains(t, err, "requires store kind s3")
}
