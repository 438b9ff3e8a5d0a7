package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the folio home directory.
	DefaultDirName = ".folio"

	// DataDirName is the subdirectory for scan data and stage output.
	DataDirName = "data"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// MetricsDBName is the SQLite database holding per-call metrics.
	MetricsDBName = "metrics.sqlite"
)

// Dir represents the folio home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.folio).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// DataPath returns the path to the data directory.
func (d *Dir) DataPath() string {
	return filepath.Join(d.path, DataDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// MetricsDBPath returns the path to the metrics database.
func (d *Dir) MetricsDBPath() string {
	return filepath.Join(d.path, MetricsDBName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.DataPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// ScanDir returns the data directory for a scan.
func (d *Dir) ScanDir(scanID string) string {
	return filepath.Join(d.DataPath(), scanID)
}

// SourceImagesDir returns the directory for source page images of a scan.
func (d *Dir) SourceImagesDir(scanID string) string {
	return filepath.Join(d.ScanDir(scanID), "source_images")
}

// SourceImagePath returns the path to a specific page image.
// Page numbers are 1-indexed.
func (d *Dir) SourceImagePath(scanID string, pageNum int) string {
	return filepath.Join(d.SourceImagesDir(scanID), fmt.Sprintf("page_%04d.png", pageNum))
}

// SourceImagePaths returns paths for all pages of a scan.
func (d *Dir) SourceImagePaths(scanID string, pageCount int) []string {
	paths := make([]string, pageCount)
	for i := 1; i <= pageCount; i++ {
		paths[i-1] = d.SourceImagePath(scanID, i)
	}
	return paths
}

// EnsureSourceImagesDir creates the source images directory for a scan.
func (d *Dir) EnsureSourceImagesDir(scanID string) error {
	return os.MkdirAll(d.SourceImagesDir(scanID), 0o755)
}

// OriginalsDir returns the directory for original PDF files of a scan.
func (d *Dir) OriginalsDir(scanID string) string {
	return filepath.Join(d.ScanDir(scanID), "originals")
}

// EnsureOriginalsDir creates the originals directory for a scan's PDFs.
func (d *Dir) EnsureOriginalsDir(scanID string) error {
	return os.MkdirAll(d.OriginalsDir(scanID), 0o755)
}

// StageOutputDir returns the output directory for one pipeline stage of a scan.
func (d *Dir) StageOutputDir(scanID, stage string) string {
	return filepath.Join(d.ScanDir(scanID), stage)
}

// PageOutputPath returns the per-page output artifact for a stage.
// Page numbers are 1-indexed.
func (d *Dir) PageOutputPath(scanID, stage string, pageNum int) string {
	return filepath.Join(d.StageOutputDir(scanID, stage), fmt.Sprintf("page_%04d.json", pageNum))
}

// PageOutputPattern returns the glob pattern matching a stage's page artifacts.
func (d *Dir) PageOutputPattern(scanID, stage string) string {
	return filepath.Join(d.StageOutputDir(scanID, stage), "page_*.json")
}

// EnsureStageOutputDir creates the output directory for a stage.
func (d *Dir) EnsureStageOutputDir(scanID, stage string) error {
	return os.MkdirAll(d.StageOutputDir(scanID, stage), 0o755)
}

// CheckpointsDir returns the directory holding checkpoint files for a scan.
func (d *Dir) CheckpointsDir(scanID string) string {
	return filepath.Join(d.ScanDir(scanID), "checkpoints")
}

// CheckpointPath returns the checkpoint file for one (scan, stage) pair.
func (d *Dir) CheckpointPath(scanID, stage string) string {
	return filepath.Join(d.CheckpointsDir(scanID), fmt.Sprintf("%s_checkpoint.json", stage))
}

// ManifestPath returns the scan manifest file for a scan.
func (d *Dir) ManifestPath(scanID string) string {
	return filepath.Join(d.ScanDir(scanID), "scan.json")
}

// MergedDocumentPath returns the path of the assembled document for a scan.
func (d *Dir) MergedDocumentPath(scanID string) string {
	return filepath.Join(d.ScanDir(scanID), "document.json")
}

// ReconciliationReportPath returns the path of the overlap reconciliation report.
func (d *Dir) ReconciliationReportPath(scanID string) string {
	return filepath.Join(d.ScanDir(scanID), "reconciliation.json")
}

// ListScans returns the IDs of all scans present under the data directory.
func (d *Dir) ListScans() ([]string, error) {
	entries, err := os.ReadDir(d.DataPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}
	var scans []string
	for _, e := range entries {
		if e.IsDir() {
			scans = append(scans, e.Name())
		}
	}
	return scans, nil
}
