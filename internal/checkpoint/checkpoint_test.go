package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func testLedger(t *testing.T, cfg LedgerConfig) *Ledger {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "ocr_checkpoint.json")
	}
	if cfg.ScanID == "" {
		cfg.ScanID = "scan-test"
	}
	if cfg.Stage == "" {
		cfg.Stage = "ocr"
	}
	return LoadOrCreate(cfg)
}

func TestLoadOrCreate_FreshState(t *testing.T) {
	l := testLedger(t, LedgerConfig{})

	state := l.Status()
	if state.Status != StatusNotStarted {
		t.Errorf("status = %s, want %s", state.Status, StatusNotStarted)
	}
	if state.Version != SchemaVersion {
		t.Errorf("version = %s, want %s", state.Version, SchemaVersion)
	}
	if len(state.CompletedPages) != 0 {
		t.Errorf("completed_pages = %v, want empty", state.CompletedPages)
	}
}

func TestLoadOrCreate_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ocr_checkpoint.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := testLedger(t, LedgerConfig{Path: path})
	if got := l.Status().Status; got != StatusNotStarted {
		t.Errorf("status = %s, want fresh not_started", got)
	}
}

func TestLoadOrCreate_VersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ocr_checkpoint.json")
	stale := map[string]any{
		"version":         "0.9",
		"scan_id":         "scan-test",
		"stage":           "ocr",
		"status":          "in_progress",
		"completed_pages": []int{1, 2, 3},
	}
	data, _ := json.Marshal(stale)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	l := testLedger(t, LedgerConfig{Path: path})
	state := l.Status()
	if state.Status != StatusNotStarted {
		t.Errorf("status = %s, want not_started after version mismatch", state.Status)
	}
	if len(state.CompletedPages) != 0 {
		t.Errorf("completed_pages = %v, want discarded", state.CompletedPages)
	}
}

func TestLoadOrCreate_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "correct_checkpoint.json")

	l := testLedger(t, LedgerConfig{Path: path, Stage: "correct"})
	l.RemainingPages(20, false, 0, 0, nil)
	l.MarkCompleted(3, 0.25)
	l.MarkCompleted(7, 0.5)
	if err := l.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	reloaded := testLedger(t, LedgerConfig{Path: path, Stage: "correct"})
	state := reloaded.Status()
	if !reflect.DeepEqual(state.CompletedPages, []int{3, 7}) {
		t.Errorf("completed_pages = %v, want [3 7]", state.CompletedPages)
	}
	if state.Costs.TotalUSD != 0.75 {
		t.Errorf("total_usd = %f, want 0.75", state.Costs.TotalUSD)
	}
	if state.Status != StatusInProgress {
		t.Errorf("status = %s, want in_progress", state.Status)
	}
}

func TestRemainingPages_NoResume(t *testing.T) {
	l := testLedger(t, LedgerConfig{})

	// Recorded progress is ignored when resume is off.
	l.MarkCompleted(2, 0)
	l.MarkCompleted(4, 0)

	pages := l.RemainingPages(5, false, 0, 0, nil)
	want := []int{1, 2, 3, 4, 5}
	if !reflect.DeepEqual(pages, want) {
		t.Errorf("RemainingPages() = %v, want %v", pages, want)
	}
	if got := l.Status().Status; got != StatusInProgress {
		t.Errorf("status = %s, want in_progress", got)
	}
}

func TestRemainingPages_ResumeTrustsDisk(t *testing.T) {
	l := testLedger(t, LedgerConfig{})

	// Record a stale completed set that disagrees with "disk".
	l.MarkCompleted(1, 0)
	l.MarkCompleted(2, 0)
	l.MarkCompleted(9, 0)

	// Disk truth: only even pages have valid output.
	validate := func(page int) bool { return page%2 == 0 }

	pages := l.RemainingPages(10, true, 1, 10, validate)
	want := []int{1, 3, 5, 7, 9}
	if !reflect.DeepEqual(pages, want) {
		t.Errorf("RemainingPages() = %v, want %v", pages, want)
	}

	state := l.Status()
	if !reflect.DeepEqual(state.CompletedPages, []int{2, 4, 6, 8, 10}) {
		t.Errorf("completed_pages = %v, want disk truth", state.CompletedPages)
	}
	if state.Progress.Completed != 5 || state.Progress.Remaining != 5 {
		t.Errorf("progress = %+v, want 5/5", state.Progress)
	}
	if state.Progress.Percent != 50 {
		t.Errorf("percent = %f, want 50", state.Progress.Percent)
	}
}

func TestRemainingPages_SubRange(t *testing.T) {
	l := testLedger(t, LedgerConfig{})

	validate := func(page int) bool { return page == 4 }
	pages := l.RemainingPages(10, true, 3, 6, validate)
	want := []int{3, 5, 6}
	if !reflect.DeepEqual(pages, want) {
		t.Errorf("RemainingPages() = %v, want %v", pages, want)
	}
}

func TestMarkCompleted_IdempotentMembershipNonIdempotentCost(t *testing.T) {
	l := testLedger(t, LedgerConfig{})
	l.RemainingPages(10, false, 0, 0, nil)

	l.MarkCompleted(5, 0.10)
	l.MarkCompleted(5, 0.10)

	state := l.Status()
	if !reflect.DeepEqual(state.CompletedPages, []int{5}) {
		t.Errorf("completed_pages = %v, want [5] exactly once", state.CompletedPages)
	}
	// Cost is added both times: retries that really did cost money twice.
	if state.Costs.TotalUSD != 0.20 {
		t.Errorf("total_usd = %f, want 0.20", state.Costs.TotalUSD)
	}
}

func TestMarkCompleted_PersistInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ocr_checkpoint.json")
	l := testLedger(t, LedgerConfig{Path: path, PersistEvery: 3})
	l.RemainingPages(10, false, 0, 0, nil)

	l.MarkCompleted(1, 0)
	l.MarkCompleted(2, 0)
	// Two marks: file should still show zero completed pages.
	onDisk := testLedger(t, LedgerConfig{Path: path})
	if got := len(onDisk.Status().CompletedPages); got != 0 {
		t.Errorf("on-disk completed before interval = %d, want 0", got)
	}

	l.MarkCompleted(3, 0)
	onDisk = testLedger(t, LedgerConfig{Path: path})
	if got := len(onDisk.Status().CompletedPages); got != 3 {
		t.Errorf("on-disk completed after interval = %d, want 3", got)
	}
}

func TestMarkCompleted_CostThresholdFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ocr_checkpoint.json")
	l := testLedger(t, LedgerConfig{Path: path, PersistEvery: 100, CostFlushUSD: 1.0})
	l.RemainingPages(10, false, 0, 0, nil)

	l.MarkCompleted(1, 2.50)

	onDisk := testLedger(t, LedgerConfig{Path: path})
	if got := onDisk.Status().Costs.TotalUSD; got != 2.50 {
		t.Errorf("on-disk cost = %f, want immediate flush of 2.50", got)
	}
}

func TestMarkStageComplete(t *testing.T) {
	l := testLedger(t, LedgerConfig{})
	l.RemainingPages(2, false, 0, 0, nil)

	if err := l.MarkStageComplete(map[string]any{"pages": 2}); err != nil {
		t.Fatalf("MarkStageComplete() error = %v", err)
	}

	state := l.Status()
	if state.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", state.Status)
	}
	if _, ok := state.Metadata["completed_at"]; !ok {
		t.Error("metadata missing completed_at timestamp")
	}
	if state.Metadata["pages"] != 2 {
		t.Errorf("metadata pages = %v, want 2", state.Metadata["pages"])
	}
}

func TestMarkStageFailed(t *testing.T) {
	l := testLedger(t, LedgerConfig{})

	if err := l.MarkStageFailed(os.ErrDeadlineExceeded); err != nil {
		t.Fatalf("MarkStageFailed() error = %v", err)
	}

	state := l.Status()
	if state.Status != StatusFailed {
		t.Errorf("status = %s, want failed", state.Status)
	}
	if state.Error == "" {
		t.Error("error message not recorded")
	}
}

func TestReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ocr_checkpoint.json")
	l := testLedger(t, LedgerConfig{Path: path})
	l.RemainingPages(10, false, 0, 0, nil)
	l.MarkCompleted(1, 1.0)

	if err := l.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	state := l.Status()
	if state.Status != StatusNotStarted {
		t.Errorf("status = %s, want not_started", state.Status)
	}
	if len(state.CompletedPages) != 0 || state.Costs.TotalUSD != 0 {
		t.Errorf("state not reset: pages=%v cost=%f", state.CompletedPages, state.Costs.TotalUSD)
	}

	// Reset is persisted.
	onDisk := testLedger(t, LedgerConfig{Path: path})
	if got := onDisk.Status().Status; got != StatusNotStarted {
		t.Errorf("on-disk status = %s, want not_started", got)
	}
}

func TestEstimateCostSaved(t *testing.T) {
	l := testLedger(t, LedgerConfig{})
	l.MarkCompleted(1, 0)
	l.MarkCompleted(2, 0)
	l.MarkCompleted(3, 0)

	if got := l.EstimateCostSaved(0.05); got != 0.15 {
		t.Errorf("EstimateCostSaved() = %f, want 0.15", got)
	}
}

func TestStatus_DefensiveCopy(t *testing.T) {
	l := testLedger(t, LedgerConfig{})
	l.MarkCompleted(1, 0)

	state := l.Status()
	state.CompletedPages[0] = 999
	state.Metadata["mutated"] = true

	fresh := l.Status()
	if fresh.CompletedPages[0] != 1 {
		t.Error("mutating Status() copy affected ledger state")
	}
	if _, ok := fresh.Metadata["mutated"]; ok {
		t.Error("mutating Status() metadata affected ledger state")
	}
}

// TestPersist_CrashSafety simulates a crash between temp write and rename:
// a stray temp file next to the checkpoint must not affect the next load.
func TestPersist_CrashSafety(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ocr_checkpoint.json")

	l := testLedger(t, LedgerConfig{Path: path})
	l.RemainingPages(10, false, 0, 0, nil)
	l.MarkCompleted(1, 0)
	if err := l.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	// Leave a half-written temp file behind, as an interrupted write would.
	tmp := filepath.Join(dir, ".checkpoint-crash.json")
	if err := os.WriteFile(tmp, []byte(`{"version":"1.0","truncat`), 0o644); err != nil {
		t.Fatal(err)
	}

	reloaded := testLedger(t, LedgerConfig{Path: path})
	state := reloaded.Status()
	if !reflect.DeepEqual(state.CompletedPages, []int{1}) {
		t.Errorf("completed_pages = %v, want prior valid state [1]", state.CompletedPages)
	}
}
