package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/notargets/RPTKernel/checkpoint"
	"github.com/notargets/RPTKernel/locate"
	"github.com/notargets/RPTKernel/storage"
	"github.com/notargets/RPTKernel/storage/minio"
	"github.com/notargets/RPTKernel/utils"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultToleranceScale multiplies the uniform axial cell spacing
	DefaultToleranceScale = 1.15
	// FallbackTolerance is used when no uniform spacing is configured
	FallbackTolerance = 0.005
)

// Config is the run configuration, read from YAML
type Config struct {
	CostFunction   string  `yaml:"cost_function"`
	SearchPolicy   string  `yaml:"search_policy"`
	ProximityLevel int     `yaml:"proximity_level"`
	Tolerance      float64 `yaml:"tolerance"`       // > 0 overrides the derived value
	ToleranceScale float64 `yaml:"tolerance_scale"` // Multiplier on the axial spacing
	ReactorHeight  float64 `yaml:"reactor_height"`  // With ZCells, gives a uniform axial spacing
	ZCells         int     `yaml:"z_cells"`
	Workers        int     `yaml:"workers"`
	Detectors      int     `yaml:"detectors"`

	Checkpoint   Checkpoint `yaml:"checkpoint"`
	Measurements string     `yaml:"measurements"`
	Export       Export     `yaml:"export"`
	Log          Log        `yaml:"log"`
}

// Checkpoint locates the checkpoint archives
type Checkpoint struct {
	Dir         string        `yaml:"dir"`
	Minio       *minio.Config `yaml:"minio"`
	Compression string        `yaml:"compression"`
	MeshFile    string        `yaml:"mesh_file"`
	CountFiles  []string      `yaml:"count_files"` // Empty: use the manifest
}

// Export names the trajectory outputs
type Export struct {
	Positions string `yaml:"positions"`
	SQLite    string `yaml:"sqlite"`
	Plot      string `yaml:"plot"`
}

// Log configures the logger
type Log struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Verbose bool   `yaml:"verbose"`
}

// Default returns the configuration used for omitted fields
func Default() *Config {
	return &Config{
		CostFunction:   "absolute",
		SearchPolicy:   "local_first",
		ProximityLevel: 1,
		ToleranceScale: DefaultToleranceScale,
		Detectors:      1,
		Checkpoint: Checkpoint{
			Dir:         "checkpoint",
			Compression: "zstd",
			MeshFile:    checkpoint.MeshFile,
		},
		Measurements: "counts.txt",
		Export:       Export{Positions: "positions.csv"},
		Log:          Log{Level: "info", Format: "text"},
	}
}

// Load reads and validates a YAML configuration file. Relative paths in the
// file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	defer f.Close()
	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.resolve(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown keys
// are rejected.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolve(base string) {
	abs := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
	abs(&c.Checkpoint.Dir)
	abs(&c.Measurements)
	abs(&c.Export.Positions)
	abs(&c.Export.SQLite)
	abs(&c.Export.Plot)
}

// Validate checks every value the run depends on
func (c *Config) Validate() error {
	var errs []error
	if _, err := locate.ParseCostMode(c.CostFunction); err != nil {
		errs = append(errs, err)
	}
	if _, err := locate.ParsePolicy(c.SearchPolicy); err != nil {
		errs = append(errs, err)
	}
	if _, err := checkpoint.ParseCompression(c.Checkpoint.Compression); err != nil {
		errs = append(errs, err)
	}
	if _, err := utils.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.ProximityLevel < 1 {
		errs = append(errs, fmt.Errorf("proximity_level must be >= 1, got %d", c.ProximityLevel))
	}
	if c.Tolerance < 0 {
		errs = append(errs, fmt.Errorf("tolerance must be >= 0, got %v", c.Tolerance))
	}
	if !(c.ToleranceScale > 0) {
		errs = append(errs, fmt.Errorf("tolerance_scale must be positive, got %v", c.ToleranceScale))
	}
	if c.ReactorHeight < 0 || c.ZCells < 0 {
		errs = append(errs, fmt.Errorf("reactor_height and z_cells must not be negative"))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be >= 0, got %d", c.Workers))
	}
	if c.Detectors < 1 {
		errs = append(errs, fmt.Errorf("detectors must be >= 1, got %d", c.Detectors))
	}
	if n := len(c.Checkpoint.CountFiles); n > 0 && n != c.Detectors {
		errs = append(errs, fmt.Errorf("%w: %d count_files for %d detectors",
			checkpoint.ErrDetectorCountMismatch, n, c.Detectors))
	}
	return errors.Join(errs...)
}

// ResolvedTolerance returns the validity tolerance on the reference
// coordinate violation: the explicit value when set, else ToleranceScale
// times ReactorHeight/ZCells for a uniform axial spacing, else
// FallbackTolerance
func (c *Config) ResolvedTolerance() float64 {
	switch {
	case c.Tolerance > 0:
		return c.Tolerance
	case c.ReactorHeight > 0 && c.ZCells > 0:
		return c.ToleranceScale * c.ReactorHeight / float64(c.ZCells)
	}
	return FallbackTolerance
}

// SearchOptions builds the searcher options
func (c *Config) SearchOptions() (locate.Options, error) {
	mode, err := locate.ParseCostMode(c.CostFunction)
	if err != nil {
		return locate.Options{}, err
	}
	return locate.Options{
		Mode:           mode,
		Tolerance:      c.ResolvedTolerance(),
		ProximityLevel: c.ProximityLevel,
		Workers:        c.Workers,
	}, nil
}

// Policy returns the parsed search policy
func (c *Config) Policy() (locate.Policy, error) {
	return locate.ParsePolicy(c.SearchPolicy)
}

// Store opens the checkpoint blob store: MinIO when configured, else the
// local directory
func (c *Config) Store() (storage.Store, error) {
	if c.Checkpoint.Minio != nil && c.Checkpoint.Minio.Endpoint != "" {
		s, err := minio.New(*c.Checkpoint.Minio)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return storage.NewLocalStore(c.Checkpoint.Dir), nil
}

// Manager builds the checkpoint manager for the configured store
func (c *Config) Manager(logger *slog.Logger) (*checkpoint.Manager, error) {
	comp, err := checkpoint.ParseCompression(c.Checkpoint.Compression)
	if err != nil {
		return nil, err
	}
	store, err := c.Store()
	if err != nil {
		return nil, err
	}
	return checkpoint.NewManager(store, comp, logger), nil
}

// Logger builds the configured logger writing to w
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	return utils.NewLogger(c.Log.Level, c.Log.Format, w)
}
