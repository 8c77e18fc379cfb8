package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/notargets/RPTKernel/checkpoint"
	"github.com/notargets/RPTKernel/element"
	"github.com/notargets/RPTKernel/field"
	"github.com/notargets/RPTKernel/locate"
	"github.com/notargets/RPTKernel/mesh"
	"github.com/notargets/RPTKernel/storage"
	"github.com/notargets/RPTKernel/storage/minio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

const sample = `
cost_function: relative
search_policy: global_only
proximity_level: 2
tolerance_scale: 1.5
workers: 4
detectors: 2
checkpoint:
  dir: ckpt
  compression: lz4
  count_files: [a.counts, b.counts]
measurements: data/counts.txt
export:
  positions: out/positions.dat
  sqlite: out/positions.db
log:
  level: debug
  format: json
  verbose: true
`

func TestDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "local_first", cfg.SearchPolicy)
	assert.Equal(t, 1, cfg.ProximityLevel)
	assert.Equal(t, DefaultToleranceScale, cfg.ToleranceScale)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rpt.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "relative", cfg.CostFunction)
	assert.Equal(t, 2, cfg.ProximityLevel)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, []string{"a.counts", "b.counts"}, cfg.Checkpoint.CountFiles)
	assert.Equal(t, filepath.Join(dir, "ckpt"), cfg.Checkpoint.Dir)
	assert.Equal(t, filepath.Join(dir, "data", "counts.txt"), cfg.Measurements)
	assert.Equal(t, filepath.Join(dir, "out", "positions.dat"), cfg.Export.Positions)
	assert.Empty(t, cfg.Export.Plot)
	assert.True(t, cfg.Log.Verbose)
	// Omitted fields keep their defaults
	assert.Equal(t, checkpoint.MeshFile, cfg.Checkpoint.MeshFile)

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, locate.GlobalOnly, policy)

	mgr, err := cfg.Manager(nil)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.CompressionLZ4, mgr.Compression)
	assert.IsType(t, &storage.LocalStore{}, mgr.Store)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestMinioStoreSelected(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
checkpoint:
  minio:
    endpoint: localhost:9000
    bucket: rpt
    access_key: k
    secret_key: s
`))
	require.NoError(t, err)
	assert.Equal(t, "k", cfg.Checkpoint.Minio.AccessKey)
	store, err := cfg.Store()
	require.NoError(t, err)
	assert.IsType(t, &minio.Store{}, store)
}

func TestValidate(t *testing.T) {
	for name, doc := range map[string]string{
		"cost":        "cost_function: squared",
		"policy":      "search_policy: nearest",
		"proximity":   "proximity_level: 0",
		"tolerance":   "tolerance: -1",
		"scale":       "tolerance_scale: 0",
		"workers":     "workers: -2",
		"detectors":   "detectors: 0",
		"compression": "checkpoint: {compression: gzip}",
		"level":       "log: {level: loud}",
		"unknown key": "tolerence: 0.1",
		"files":       "detectors: 3\ncheckpoint: {count_files: [a, b]}",
	} {
		_, err := Parse(strings.NewReader(doc))
		assert.Error(t, err, name)
	}

	_, err := Parse(strings.NewReader("detectors: 3\ncheckpoint: {count_files: [a, b]}"))
	assert.ErrorIs(t, err, checkpoint.ErrDetectorCountMismatch)
}

func TestResolvedTolerance(t *testing.T) {
	cfg := Default()
	assert.Equal(t, FallbackTolerance, cfg.ResolvedTolerance())

	cfg.ReactorHeight, cfg.ZCells = 2, 40
	assert.InDelta(t, DefaultToleranceScale*0.05, cfg.ResolvedTolerance(), 1e-15)

	cfg.Tolerance = 0.01
	assert.Equal(t, 0.01, cfg.ResolvedTolerance())

	opts, err := cfg.SearchOptions()
	require.NoError(t, err)
	assert.Equal(t, locate.Options{Mode: locate.Absolute, Tolerance: 0.01, ProximityLevel: 1}, opts)
}

// The default tolerance bounds a dimensionless violation, so acceptance must
// not change with the length unit of the mesh
func TestDefaultToleranceIndependentOfMeshUnits(t *testing.T) {
	for _, size := range []float64{1, 1000} {
		m, err := mesh.NewBox(element.D3, [3]int{2, 2, 2}, r3.Vec{}, r3.Vec{X: size, Y: size, Z: size})
		require.NoError(t, err)
		models := []field.CountModel{
			field.CountFunc(func(p r3.Vec) float64 { return 10*size + 5*p.X + p.Y }),
			field.CountFunc(func(p r3.Vec) float64 { return 20*size + 4*p.Y - p.Z }),
			field.CountFunc(func(p r3.Vec) float64 { return 5*size + p.X + p.Y + 6*p.Z }),
		}
		fs, err := field.Sample(context.Background(), m, models, 1)
		require.NoError(t, err)

		opts, err := Default().SearchOptions()
		require.NoError(t, err)
		sr, err := locate.NewSearcher(fs, opts)
		require.NoError(t, err)

		observe := func(p r3.Vec) []float64 {
			obs := make([]float64, len(models))
			for d, model := range models {
				obs[d] = model.Count(p)
			}
			return obs
		}
		inside := sr.Global(observe(r3.Vec{X: 0.3 * size, Y: 0.4 * size, Z: 0.7 * size}))
		assert.True(t, inside.Found, "size %v", size)
		assert.InDelta(t, 0.3*size, inside.Position.X, 1e-9*size)

		outside := sr.Global(observe(r3.Vec{X: 1.6 * size, Y: 0.5 * size, Z: 0.5 * size}))
		assert.False(t, outside.Found, "size %v", size)
		assert.True(t, outside.Defined)
	}
}
