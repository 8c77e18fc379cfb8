package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/notargets/RPTKernel/field"
	"github.com/notargets/RPTKernel/storage"
	"github.com/notargets/RPTKernel/utils"
)

var (
	// ErrDetectorCountMismatch is returned when the number of detector files
	// differs from the configured detector count
	ErrDetectorCountMismatch = errors.New("detector file count mismatch")
	// ErrNodeCountMismatch is returned when a count field does not cover the
	// node index space of the mesh
	ErrNodeCountMismatch = errors.New("nodal count field does not match mesh nodes")
	// ErrCorrupt is returned for archives that fail to decode or verify
	ErrCorrupt = errors.New("corrupt checkpoint archive")
)

const (
	// MeshFile is the default mesh archive name
	MeshFile = "mesh.ckpt"
	// ManifestFile describes the archives of one checkpoint
	ManifestFile = "MANIFEST.json"
)

// CountFile names the archive of detector d
func CountFile(d int) string {
	return fmt.Sprintf("nodal_counts_detector%02d.counts", d)
}

// Manifest records what a checkpoint holds
type Manifest struct {
	RunID       string    `json:"run_id"`
	Version     int       `json:"version"`
	Created     time.Time `json:"created"`
	Dim         int       `json:"dim"`
	Cells       int       `json:"cells"`
	Vertices    int       `json:"vertices"`
	Nodes       int       `json:"nodes"`
	Detectors   int       `json:"detectors"`
	Compression string    `json:"compression"`
	MeshFile    string    `json:"mesh_file"`
	CountFiles  []string  `json:"count_files"`
}

// Manager saves and restores field stores through a blob store
type Manager struct {
	Store       storage.Store
	Compression Compression
	Logger      *slog.Logger
}

// NewManager creates a manager; a nil logger discards output
func NewManager(store storage.Store, c Compression, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return &Manager{Store: store, Compression: c, Logger: logger}
}

// Save writes the mesh archive, one archive per detector and the manifest
func (mgr *Manager) Save(ctx context.Context, fs *field.Store) (*Manifest, error) {
	m := fs.Mesh
	man := &Manifest{
		RunID:       uuid.NewString(),
		Version:     archiveVersion,
		Created:     time.Now().UTC(),
		Dim:         int(m.Dim),
		Cells:       m.NumElements,
		Vertices:    m.NumVertices,
		Nodes:       m.NumNodes,
		Detectors:   fs.NumDetectors(),
		Compression: mgr.Compression.String(),
		MeshFile:    MeshFile,
	}

	data, err := EncodeMesh(m, mgr.Compression)
	if err != nil {
		return nil, fmt.Errorf("encode mesh: %w", err)
	}
	if err = mgr.Store.Put(ctx, MeshFile, data); err != nil {
		return nil, fmt.Errorf("write %s: %w", MeshFile, err)
	}
	bytesWritten := len(data)

	for d, counts := range fs.Counts {
		name := CountFile(d)
		if data, err = EncodeCounts(d, counts, mgr.Compression); err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		if err = mgr.Store.Put(ctx, name, data); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
		man.CountFiles = append(man.CountFiles, name)
		bytesWritten += len(data)
	}

	js, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return nil, err
	}
	if err = mgr.Store.Put(ctx, ManifestFile, js); err != nil {
		return nil, fmt.Errorf("write %s: %w", ManifestFile, err)
	}

	mgr.Logger.Info("checkpoint saved",
		"run_id", man.RunID,
		"detectors", man.Detectors,
		"nodes", man.Nodes,
		"cells", man.Cells,
		"compression", man.Compression,
		"bytes", bytesWritten)
	return man, nil
}

// Load restores a field store from a mesh archive and one count archive per
// detector, in detector order. The file count is checked against
// expectedDetectors before anything is read.
func (mgr *Manager) Load(ctx context.Context, meshName string, countNames []string, expectedDetectors int) (*field.Store, error) {
	if len(countNames) != expectedDetectors {
		return nil, fmt.Errorf("%w: %d detector files, %d detectors configured",
			ErrDetectorCountMismatch, len(countNames), expectedDetectors)
	}

	data, err := mgr.Store.Get(ctx, meshName)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", meshName, err)
	}
	m, err := DecodeMesh(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", meshName, err)
	}

	counts := make([][]float64, len(countNames))
	for d, name := range countNames {
		if data, err = mgr.Store.Get(ctx, name); err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		det, c, err := DecodeCounts(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if det != d {
			return nil, fmt.Errorf("%s: %w: holds detector %d at position %d", name, ErrCorrupt, det, d)
		}
		if len(c) != m.NumNodes {
			return nil, fmt.Errorf("%s: %w: %d counts, mesh has %d nodes", name, ErrNodeCountMismatch, len(c), m.NumNodes)
		}
		counts[d] = c
	}

	fs, err := field.NewStore(m, counts)
	if err != nil {
		return nil, err
	}
	mgr.Logger.Info("checkpoint loaded",
		"mesh", meshName,
		"detectors", len(countNames),
		"nodes", m.NumNodes,
		"cells", m.NumElements)
	return fs, nil
}

// LoadManifest reads the manifest written by Save
func (mgr *Manager) LoadManifest(ctx context.Context) (*Manifest, error) {
	data, err := mgr.Store.Get(ctx, ManifestFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ManifestFile, err)
	}
	var man Manifest
	if err = json.Unmarshal(data, &man); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", ManifestFile, ErrCorrupt, err)
	}
	return &man, nil
}

// LoadAll restores the checkpoint described by the manifest
func (mgr *Manager) LoadAll(ctx context.Context, expectedDetectors int) (*field.Store, error) {
	man, err := mgr.LoadManifest(ctx)
	if err != nil {
		return nil, err
	}
	return mgr.Load(ctx, man.MeshFile, man.CountFiles, expectedDetectors)
}
