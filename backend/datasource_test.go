package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~whereswaldon/sensorview/sensors"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestNewDatasourceRequiresPaths(t *testing.T) {
	_, err := NewDatasource(Config{})
	assert.Error(t, err)
}

func TestDatasourceLoad(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "manifest.yaml")
	data := filepath.Join(dir, "data.csv")
	writeFile(t, manifest, testManifest)
	writeFile(t, data, testCSV)

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	ds, err := NewDatasource(Config{ManifestPath: manifest, DataPath: data}, WithMetrics(metrics))
	require.NoError(t, err)

	view, err := ds.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, view.Sensors().Len())
	assert.Equal(t, 10, view.SampleCount())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.loadsTotal.WithLabelValues(SourceCSV, "ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.sensors))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.channels))
	assert.Equal(t, 10.0, testutil.ToFloat64(metrics.samples))
	assert.Greater(t, testutil.ToFloat64(metrics.lastLoadUnix), 0.0)

	require.NoError(t, os.Remove(data))
	_, err = ds.Load(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.loadsTotal.WithLabelValues(SourceCSV, "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.sensors), "failed loads leave the gauges alone")
}

func TestDatasourceLoadSQLite(t *testing.T) {
	ctx := context.Background()
	db := filepath.Join(t.TempDir(), "snapshot.db")
	require.NoError(t, SaveSQLite(ctx, db, readTestView(t)))

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	// The database wins over CSV paths.
	ds, err := NewDatasource(Config{DBPath: db, DataPath: "ignored.csv"}, WithMetrics(metrics))
	require.NoError(t, err)
	view, err := ds.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, view.SampleCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.loadsTotal.WithLabelValues(SourceSQLite, "ok")))
}

func receiveView(t *testing.T, views <-chan *sensors.MemoryView) *sensors.MemoryView {
	t.Helper()
	select {
	case view, ok := <-views:
		require.True(t, ok, "view channel closed early")
		return view
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a view")
		return nil
	}
}

func TestDatasourceWatch(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data.csv")
	writeFile(t, data, "time,a/x\n2024-01-01T00:00:00Z,1\n")

	ds, err := NewDatasource(Config{DataPath: data, Debounce: 10 * time.Millisecond})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	views, err := ds.Watch(ctx)
	require.NoError(t, err)

	first := receiveView(t, views)
	assert.Equal(t, 1, first.SampleCount())

	f, err := os.OpenFile(data, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("2024-01-01T00:00:01Z,2\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	second := receiveView(t, views)
	assert.Equal(t, 2, second.SampleCount())
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, 1, first.SampleCount(), "published views never change")

	cancel()
	select {
	case _, ok := <-views:
		for ok {
			_, ok = <-views
		}
	case <-time.After(5 * time.Second):
		t.Fatal("view channel was not closed after cancel")
	}
}

func TestDatasourceWatchInitialFailure(t *testing.T) {
	dir := t.TempDir()
	ds, err := NewDatasource(Config{DataPath: filepath.Join(dir, "missing.csv")})
	require.NoError(t, err)
	_, err = ds.Watch(context.Background())
	assert.Error(t, err)
}
