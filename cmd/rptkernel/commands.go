package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/notargets/RPTKernel/config"
	"github.com/notargets/RPTKernel/field"
	"github.com/notargets/RPTKernel/locate"
	"github.com/notargets/RPTKernel/mesh/readers"
	"github.com/notargets/RPTKernel/record"
)

// setup holds what every subcommand derives from the configuration file
type setup struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fset := flag.NewFlagSet(name, flag.ContinueOnError)
	fset.SetOutput(stderr)
	cfgPath := fset.String("config", "", "YAML configuration file (defaults when empty)")
	return fset, cfgPath
}

func loadSetup(cfgPath string, stderr io.Writer) (*setup, error) {
	cfg := config.Default()
	if cfgPath != "" {
		var err error
		if cfg, err = config.Load(cfgPath); err != nil {
			return nil, err
		}
	}
	logger, err := cfg.Logger(stderr)
	if err != nil {
		return nil, err
	}
	return &setup{cfg: cfg, logger: logger}, nil
}

// loadCheckpoint restores the field store named by the configuration. The
// detector count is checked against the archive list before any archive is
// read.
func (s *setup) loadCheckpoint(ctx context.Context) (*field.Store, error) {
	mgr, err := s.cfg.Manager(s.logger)
	if err != nil {
		return nil, err
	}
	if files := s.cfg.Checkpoint.CountFiles; len(files) > 0 {
		return mgr.Load(ctx, s.cfg.Checkpoint.MeshFile, files, s.cfg.Detectors)
	}
	return mgr.LoadAll(ctx, s.cfg.Detectors)
}

func runImport(ctx context.Context, args []string, _, stderr io.Writer) error {
	fset, cfgPath := newFlagSet("import", stderr)
	meshPath := fset.String("mesh", "", "gmsh 2.2 ASCII mesh file")
	countsPath := fset.String("counts", "", "nodal count table, one column per detector")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if *meshPath == "" || *countsPath == "" {
		return fmt.Errorf("both -mesh and -counts are required")
	}
	s, err := loadSetup(*cfgPath, stderr)
	if err != nil {
		return err
	}

	m, err := readers.ReadMeshFile(*meshPath)
	if err != nil {
		return err
	}
	s.logger.Info("mesh read", "path", *meshPath, "mesh", m.String())
	counts, err := field.ReadNodalCountsFile(*countsPath, m.NumNodes, s.cfg.Detectors)
	if err != nil {
		return err
	}
	fs, err := field.NewStore(m, counts)
	if err != nil {
		return err
	}
	mgr, err := s.cfg.Manager(s.logger)
	if err != nil {
		return err
	}
	_, err = mgr.Save(ctx, fs)
	return err
}

func runReconstruct(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fset, cfgPath := newFlagSet("reconstruct", stderr)
	measurements := fset.String("measurements", "", "measured counts file (overrides the configuration)")
	positions := fset.String("out", "", "positions file (overrides the configuration)")
	if err := fset.Parse(args); err != nil {
		return err
	}
	s, err := loadSetup(*cfgPath, stderr)
	if err != nil {
		return err
	}
	cfg := s.cfg
	if *measurements != "" {
		cfg.Measurements = *measurements
	}
	if *positions != "" {
		cfg.Export.Positions = *positions
	}

	fs, err := s.loadCheckpoint(ctx)
	if err != nil {
		return err
	}
	observations, err := record.ReadMeasurementsFile(cfg.Measurements, cfg.Detectors)
	if err != nil {
		return err
	}

	opts, err := cfg.SearchOptions()
	if err != nil {
		return err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}
	searcher, err := locate.NewSearcher(fs, opts)
	if err != nil {
		return err
	}
	s.logger.Info("searcher ready",
		"cost", opts.Mode,
		"policy", policy,
		"tolerance", opts.Tolerance,
		"proximity_level", opts.ProximityLevel,
		"workers", opts.Workers,
		"mean_edge", fs.Mesh.CharacteristicLength())

	driver := locate.NewDriver(searcher, policy, cfg.Detectors, int(fs.Mesh.Dim), s.logger)
	driver.SetVerbose(cfg.Log.Verbose)
	traj, err := driver.Run(ctx, observations)
	if err != nil {
		return err
	}

	path, err := record.ExportTrajectory(cfg.Export.Positions, traj)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d of %d positions found, written to %s\n", traj.Found(), traj.Len(), path)

	if cfg.Export.SQLite != "" {
		runID := uuid.NewString()
		if err = writeSQLite(ctx, cfg.Export.SQLite, runID, traj); err != nil {
			return err
		}
		s.logger.Info("trajectory stored", "path", cfg.Export.SQLite, "run_id", runID)
	}
	if cfg.Export.Plot != "" {
		if err = mkdirFor(cfg.Export.Plot); err != nil {
			return err
		}
		files, err := record.PlotTrajectory(cfg.Export.Plot, traj)
		if err != nil {
			return err
		}
		s.logger.Info("trajectory plotted", "files", files)
	}
	return nil
}

func writeSQLite(ctx context.Context, path, runID string, traj *locate.Trajectory) error {
	if err := mkdirFor(path); err != nil {
		return err
	}
	sink, err := record.OpenSQLite(path)
	if err != nil {
		return err
	}
	if err = sink.Write(ctx, runID, traj); err != nil {
		sink.Close()
		return err
	}
	return sink.Close()
}

func runRaw(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fset, cfgPath := newFlagSet("raw", stderr)
	out := fset.String("out", "", "output file (stdout when empty)")
	if err := fset.Parse(args); err != nil {
		return err
	}
	s, err := loadSetup(*cfgPath, stderr)
	if err != nil {
		return err
	}
	fs, err := s.loadCheckpoint(ctx)
	if err != nil {
		return err
	}
	if *out == "" {
		return field.WriteRaw(stdout, fs)
	}
	if err = mkdirFor(*out); err != nil {
		return err
	}
	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err = field.WriteRaw(f, fs); err != nil {
		f.Close()
		return err
	}
	s.logger.Info("raw counts written", "path", *out, "nodes", fs.Mesh.NumNodes)
	return f.Close()
}

func mkdirFor(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

// parseFloats reads a comma separated list of exactly n numbers
func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("%q: want %d comma separated values", s, n)
	}
	vals := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", s, err)
		}
		vals[i] = v
	}
	return vals, nil
}
