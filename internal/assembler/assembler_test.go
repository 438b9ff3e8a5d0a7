package assembler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/jackzampolin/folio/internal/dispatch"
)

type stubExtractor struct {
	mu       sync.Mutex
	calls    int
	failIDs  map[int]bool
	renderFn func(batch WorkBatch, page int) string
	cost     float64
}

func (s *stubExtractor) ExtractBatch(_ context.Context, batch WorkBatch, pages []PageRecord) (*Extraction, float64, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.failIDs[batch.BatchID] {
		return nil, 0, fmt.Errorf("simulated extraction failure")
	}

	ex := &Extraction{}
	for _, p := range pages {
		text := p.Text
		if s.renderFn != nil {
			text = s.renderFn(batch, p.PageNum)
		}
		ex.Paragraphs = append(ex.Paragraphs, Paragraph{Text: text, OriginPage: p.PageNum})
	}
	return ex, s.cost, nil
}

func testPages(n int) []PageRecord {
	pages := make([]PageRecord, 0, n)
	for p := 1; p <= n; p++ {
		pages = append(pages, PageRecord{PageNum: p, Text: pageText(p)})
	}
	return pages
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAssemble_EndToEnd(t *testing.T) {
	extractor := &stubExtractor{cost: 0.25}
	asm, err := New(Config{
		WindowSize: 4,
		Overlap:    1,
		Pool:       dispatch.New(dispatch.Config{MaxWorkers: 3, Logger: quietLogger()}),
		Extractor:  extractor,
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := asm.Assemble(context.Background(), testPages(10))
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(result.Batches))
	}
	for i, b := range result.Batches {
		if b.BatchID != i {
			t.Errorf("batches out of order: index %d has BatchID %d", i, b.BatchID)
		}
		if b.Status != BatchSuccess {
			t.Errorf("batch %d status = %q", i, b.Status)
		}
	}

	// Identical renderings on the overlap pages => every pair reaches
	// consensus without an arbiter.
	if len(result.Reconciliations) != 2 {
		t.Fatalf("got %d reconciliations, want 2", len(result.Reconciliations))
	}
	for i, r := range result.Reconciliations {
		if r.Status != ReconConsensus {
			t.Errorf("reconciliation %d status = %q, want consensus", i, r.Status)
		}
	}
	if result.Batches[0].Reconciliation != nil {
		t.Error("first batch must not carry a reconciliation")
	}
	if result.Batches[1].Reconciliation == nil || result.Batches[2].Reconciliation == nil {
		t.Error("later batches must carry their overlap reconciliation")
	}

	doc := result.Document
	for p := 1; p <= 10; p++ {
		if n := strings.Count(doc.Text, pageText(p)); n != 1 {
			t.Errorf("page %d content appears %d times in merged text, want 1", p, n)
		}
	}
	if len(doc.CoverageGaps) != 0 {
		t.Errorf("CoverageGaps = %v, want none", doc.CoverageGaps)
	}

	if result.Stats.Succeeded != 3 || result.Stats.Failed != 0 {
		t.Errorf("Stats = %+v", result.Stats)
	}
	if got, want := result.Stats.TotalCost, 0.75; got != want {
		t.Errorf("TotalCost = %v, want %v", got, want)
	}
}

func TestAssemble_FailedBatchIsolated(t *testing.T) {
	extractor := &stubExtractor{failIDs: map[int]bool{1: true}}
	asm, err := New(Config{
		WindowSize: 4,
		Overlap:    1,
		Pool:       dispatch.New(dispatch.Config{MaxWorkers: 2, Logger: quietLogger()}),
		Extractor:  extractor,
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := asm.Assemble(context.Background(), testPages(10))
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(result.Batches))
	}
	if result.Batches[1].Status != BatchFailed {
		t.Errorf("batch 1 status = %q, want failed", result.Batches[1].Status)
	}
	if result.Batches[0].Status != BatchSuccess || result.Batches[2].Status != BatchSuccess {
		t.Error("neighbors of a failed batch must still succeed")
	}

	// No successful adjacent pair remains, so nothing reconciles.
	if len(result.Reconciliations) != 0 {
		t.Errorf("got %d reconciliations, want 0", len(result.Reconciliations))
	}

	if len(result.Document.CoverageGaps) == 0 {
		t.Error("failed middle batch must leave a coverage gap")
	}
	if result.Stats.Failed != 1 || result.Stats.Succeeded != 2 {
		t.Errorf("Stats = %+v", result.Stats)
	}
}

func TestAssemble_DisagreementEscalates(t *testing.T) {
	// Batch 1 renders its overlap page differently from batch 0.
	extractor := &stubExtractor{renderFn: func(batch WorkBatch, page int) string {
		if batch.BatchID == 1 && page == 4 {
			return "a completely divergent rendering of this page by the second window"
		}
		return pageText(page)
	}}
	arbiter := &stubArbiter{arbitration: &Arbitration{
		ChosenSource: "batch2",
		Confidence:   ConfidenceHigh,
	}}

	asm, err := New(Config{
		WindowSize: 4,
		Overlap:    1,
		Pool:       dispatch.New(dispatch.Config{MaxWorkers: 2, Logger: quietLogger()}),
		Extractor:  extractor,
		Arbiter:    arbiter,
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := asm.Assemble(context.Background(), testPages(10))
	if err != nil {
		t.Fatal(err)
	}

	if arbiter.calls != 1 {
		t.Fatalf("arbiter called %d times, want 1 (only the diverging pair)", arbiter.calls)
	}
	if len(result.Reconciliations) != 2 {
		t.Fatalf("got %d reconciliations, want 2", len(result.Reconciliations))
	}
	if result.Reconciliations[0].Status != ReconArbitrated {
		t.Errorf("diverging pair status = %q, want arbitrated", result.Reconciliations[0].Status)
	}
	if result.Reconciliations[1].Status != ReconConsensus {
		t.Errorf("agreeing pair status = %q, want consensus", result.Reconciliations[1].Status)
	}
}

func TestAssemble_OnBatchDoneFires(t *testing.T) {
	var mu sync.Mutex
	var doneIDs []int

	asm, err := New(Config{
		WindowSize: 4,
		Overlap:    1,
		Pool:       dispatch.New(dispatch.Config{MaxWorkers: 1, Logger: quietLogger()}),
		Extractor:  &stubExtractor{},
		Logger:     quietLogger(),
		OnBatchDone: func(r *BatchResult) {
			mu.Lock()
			doneIDs = append(doneIDs, r.BatchID)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := asm.Assemble(context.Background(), testPages(10)); err != nil {
		t.Fatal(err)
	}

	if len(doneIDs) != 3 {
		t.Errorf("OnBatchDone fired %d times, want 3: %v", len(doneIDs), doneIDs)
	}
}

func TestAssemble_InputValidation(t *testing.T) {
	asm, err := New(Config{
		WindowSize: 4,
		Overlap:    1,
		Extractor:  &stubExtractor{},
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := asm.Assemble(context.Background(), nil); err == nil {
		t.Error("empty input should fail")
	}

	gapped := []PageRecord{{PageNum: 1}, {PageNum: 3}}
	if _, err := asm.Assemble(context.Background(), gapped); err == nil {
		t.Error("non-contiguous input should fail")
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero window", Config{WindowSize: 0, Extractor: &stubExtractor{}}},
		{"overlap equals window", Config{WindowSize: 3, Overlap: 3, Extractor: &stubExtractor{}}},
		{"missing extractor", Config{WindowSize: 3, Overlap: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New() should have failed")
			}
		})
	}
}
