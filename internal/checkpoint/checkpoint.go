// Package checkpoint provides the durable progress ledger that makes
// multi-hour pipeline runs resumable. One ledger tracks one (scan, stage)
// pair and records which pages have confirmed output on disk.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// SchemaVersion is the checkpoint file schema version. Files written with a
// different version are discarded and replaced with fresh state.
const SchemaVersion = "1.0"

// Status represents the lifecycle state of a stage run.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Progress summarizes completion counts for status reporting.
type Progress struct {
	Completed int     `json:"completed"`
	Remaining int     `json:"remaining"`
	Percent   float64 `json:"percent"`
}

// Costs accumulates spend attributed to this stage run.
type Costs struct {
	TotalUSD float64 `json:"total_usd"`
}

// Validation records where this stage's output artifacts live, so external
// tools can re-derive completion without the ledger.
type Validation struct {
	OutputDir   string `json:"output_dir"`
	FilePattern string `json:"file_pattern"`
}

// State is the on-disk checkpoint document for one (scan, stage) pair.
type State struct {
	Version        string         `json:"version"`
	ScanID         string         `json:"scan_id"`
	Stage          string         `json:"stage"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Status         Status         `json:"status"`
	CompletedPages []int          `json:"completed_pages"`
	TotalPages     int            `json:"total_pages"`
	Progress       Progress       `json:"progress"`
	Costs          Costs          `json:"costs"`
	Metadata       map[string]any `json:"metadata"`
	Validation     Validation     `json:"validation"`
	Error          string         `json:"error,omitempty"`
}

// ValidateFunc reports whether a page's output artifact exists, parses, and
// is non-empty. The filesystem, not the checkpoint file, is the source of
// truth on resume.
type ValidateFunc func(pageNum int) bool

const (
	// DefaultPersistEvery is how many MarkCompleted calls may elapse
	// between checkpoint writes.
	DefaultPersistEvery = 10

	// DefaultCostFlushUSD forces an immediate write when a single item's
	// cost meets this threshold.
	DefaultCostFlushUSD = 0.50
)

// LedgerConfig configures a new Ledger.
type LedgerConfig struct {
	ScanID string
	Stage  string
	// Path is the checkpoint file location.
	Path   string
	Logger *slog.Logger

	// Validation is recorded in the state for external tooling.
	Validation Validation

	// PersistEvery overrides DefaultPersistEvery when > 0.
	PersistEvery int
	// CostFlushUSD overrides DefaultCostFlushUSD when > 0.
	CostFlushUSD float64
}

// Ledger is the durable, resumable progress ledger for one (scan, stage)
// pair. All reads and writes are serialized behind one mutex; separate
// ledgers never contend with each other.
type Ledger struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
	state  *State

	completed map[int]struct{}

	persistEvery int
	costFlushUSD float64
	marksSince   int
}

// LoadOrCreate opens the ledger at cfg.Path. A missing file, unparseable
// JSON, or schema version mismatch all fall back to freshly initialized
// state; the returned ledger is always usable.
func LoadOrCreate(cfg LedgerConfig) *Ledger {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("scan_id", cfg.ScanID, "stage", cfg.Stage)

	l := &Ledger{
		path:         cfg.Path,
		logger:       logger,
		persistEvery: cfg.PersistEvery,
		costFlushUSD: cfg.CostFlushUSD,
	}
	if l.persistEvery <= 0 {
		l.persistEvery = DefaultPersistEvery
	}
	if l.costFlushUSD <= 0 {
		l.costFlushUSD = DefaultCostFlushUSD
	}

	state, err := readState(cfg.Path)
	switch {
	case err == nil && state.Version == SchemaVersion:
		l.state = state
		logger.Debug("checkpoint loaded",
			"status", state.Status,
			"completed", len(state.CompletedPages))
	case err == nil:
		logger.Warn("checkpoint version mismatch, starting fresh",
			"found", state.Version, "want", SchemaVersion)
		l.state = freshState(cfg)
	case os.IsNotExist(err):
		l.state = freshState(cfg)
	default:
		logger.Warn("checkpoint unreadable, starting fresh", "error", err)
		l.state = freshState(cfg)
	}

	l.completed = make(map[int]struct{}, len(l.state.CompletedPages))
	for _, p := range l.state.CompletedPages {
		l.completed[p] = struct{}{}
	}
	l.recomputeLocked()

	return l
}

func freshState(cfg LedgerConfig) *State {
	now := time.Now().UTC()
	return &State{
		Version:        SchemaVersion,
		ScanID:         cfg.ScanID,
		Stage:          cfg.Stage,
		CreatedAt:      now,
		UpdatedAt:      now,
		Status:         StatusNotStarted,
		CompletedPages: []int{},
		Metadata:       map[string]any{},
		Validation:     cfg.Validation,
	}
}

func readState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	return &state, nil
}

// RemainingPages returns the pages in [startPage, endPage] still needing
// work, and moves the stage to in_progress.
//
// With resume=false the full requested range is returned regardless of any
// recorded progress. With resume=true the completed set is re-derived by
// running validate against every page in [1, totalPages]; the re-derived
// set overwrites whatever the checkpoint recorded, is persisted, and the
// remaining pages are the requested range minus that set.
//
// startPage <= 0 means page 1; endPage <= 0 means totalPages. Both are
// clamped to [1, totalPages].
func (l *Ledger) RemainingPages(totalPages int, resume bool, startPage, endPage int, validate ValidateFunc) []int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if startPage <= 0 {
		startPage = 1
	}
	if endPage <= 0 || endPage > totalPages {
		endPage = totalPages
	}

	l.state.TotalPages = totalPages
	l.state.Status = StatusInProgress

	if !resume {
		if err := l.persistLocked(); err != nil {
			l.logger.Warn("checkpoint write failed", "error", err)
		}
		pages := make([]int, 0, endPage-startPage+1)
		for p := startPage; p <= endPage; p++ {
			pages = append(pages, p)
		}
		return pages
	}

	// Resume: trust on-disk artifacts over recorded state.
	l.completed = make(map[int]struct{})
	for p := 1; p <= totalPages; p++ {
		if validate != nil && validate(p) {
			l.completed[p] = struct{}{}
		}
	}
	l.recomputeLocked()
	if err := l.persistLocked(); err != nil {
		l.logger.Warn("checkpoint write failed", "error", err)
	}

	l.logger.Info("resume validated output on disk",
		"verified_complete", len(l.completed),
		"total", totalPages)

	var pages []int
	for p := startPage; p <= endPage; p++ {
		if _, done := l.completed[p]; !done {
			pages = append(pages, p)
		}
	}
	return pages
}

// MarkCompleted records a page as done and adds its cost. Membership is
// idempotent; cost is not: a retried page that was paid for twice is counted
// twice. The checkpoint is written every persistEvery calls, or immediately
// when costUSD crosses the flush threshold. Use Flush for a guaranteed write.
func (l *Ledger) MarkCompleted(pageNum int, costUSD float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, done := l.completed[pageNum]; !done {
		l.completed[pageNum] = struct{}{}
	}
	l.state.Costs.TotalUSD += costUSD
	l.recomputeLocked()

	l.marksSince++
	if l.marksSince >= l.persistEvery || costUSD >= l.costFlushUSD {
		if err := l.persistLocked(); err != nil {
			l.logger.Warn("checkpoint write failed", "error", err)
		}
	}
}

// Flush writes the current state to disk unconditionally.
func (l *Ledger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.persistLocked()
}

// MarkStageComplete transitions the stage to completed and persists.
func (l *Ledger) MarkStageComplete(metadata map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state.Status = StatusCompleted
	for k, v := range metadata {
		l.state.Metadata[k] = v
	}
	l.state.Metadata["completed_at"] = time.Now().UTC().Format(time.RFC3339)
	return l.persistLocked()
}

// MarkStageFailed transitions the stage to failed and persists.
func (l *Ledger) MarkStageFailed(stageErr error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state.Status = StatusFailed
	if stageErr != nil {
		l.state.Error = stageErr.Error()
	}
	l.state.Metadata["failed_at"] = time.Now().UTC().Format(time.RFC3339)
	return l.persistLocked()
}

// Reset returns the ledger to a fresh not_started state and persists it.
func (l *Ledger) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	fresh := freshState(LedgerConfig{
		ScanID:     l.state.ScanID,
		Stage:      l.state.Stage,
		Validation: l.state.Validation,
	})
	l.state = fresh
	l.completed = make(map[int]struct{})
	l.marksSince = 0
	l.recomputeLocked()
	return l.persistLocked()
}

// Status returns a defensive copy of the current state, safe for concurrent
// readers.
func (l *Ledger) Status() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := *l.state
	out.CompletedPages = append([]int(nil), l.state.CompletedPages...)
	out.Metadata = make(map[string]any, len(l.state.Metadata))
	for k, v := range l.state.Metadata {
		out.Metadata[k] = v
	}
	return out
}

// EstimateCostSaved returns an informational estimate of spend avoided by
// not redoing completed pages.
func (l *Ledger) EstimateCostSaved(avgCostPerItem float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return float64(len(l.completed)) * avgCostPerItem
}

// recomputeLocked rebuilds the sorted completed slice and progress counters.
// Caller must hold l.mu.
func (l *Ledger) recomputeLocked() {
	pages := make([]int, 0, len(l.completed))
	for p := range l.completed {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	l.state.CompletedPages = pages

	l.state.Progress.Completed = len(pages)
	if l.state.TotalPages > 0 {
		l.state.Progress.Remaining = l.state.TotalPages - len(pages)
		l.state.Progress.Percent = 100 * float64(len(pages)) / float64(l.state.TotalPages)
	} else {
		l.state.Progress.Remaining = 0
		l.state.Progress.Percent = 0
	}
}

// persistLocked writes state via temp file + atomic rename. A process killed
// mid-write leaves the prior valid file intact. Caller must hold l.mu.
func (l *Ledger) persistLocked() error {
	l.state.UpdatedAt = time.Now().UTC()
	l.marksSince = 0

	data, err := json.MarshalIndent(l.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*.json")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}
