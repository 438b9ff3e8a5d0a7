package assembler

import (
	"context"
	"errors"
	"testing"
)

type stubArbiter struct {
	arbitration *Arbitration
	err         error
	calls       int
	gotText1    string
	gotText2    string
	gotPages    []int
}

func (s *stubArbiter) Arbitrate(_ context.Context, text1, text2 string, pages []int) (*Arbitration, error) {
	s.calls++
	s.gotText1 = text1
	s.gotText2 = text2
	s.gotPages = pages
	return s.arbitration, s.err
}

func successPair(overlapPage int, text1, text2 string) (*BatchResult, *BatchResult) {
	prev := &BatchResult{
		BatchID: 0,
		Batch:   WorkBatch{BatchID: 0, StartPage: 1, EndPage: overlapPage},
		Status:  BatchSuccess,
		Extraction: &Extraction{
			Paragraphs: []Paragraph{
				{Text: "earlier material", OriginPage: 1},
				{Text: text1, OriginPage: overlapPage},
			},
		},
	}
	cur := &BatchResult{
		BatchID: 1,
		Batch: WorkBatch{
			BatchID:         1,
			StartPage:       overlapPage,
			EndPage:         overlapPage + 3,
			OverlapWithPrev: []int{overlapPage},
		},
		Status: BatchSuccess,
		Extraction: &Extraction{
			Paragraphs: []Paragraph{
				{Text: text2, OriginPage: overlapPage},
				{Text: "later material", OriginPage: overlapPage + 1},
			},
		},
	}
	return prev, cur
}

func TestReconcilePair_Consensus(t *testing.T) {
	arb := &stubArbiter{}
	prev, cur := successPair(4, "the rendering of page four", "the rendering of page four")

	outcome := reconcilePair(context.Background(), prev, cur, arb)

	if outcome.Status != ReconConsensus {
		t.Errorf("Status = %q, want %q", outcome.Status, ReconConsensus)
	}
	if outcome.Similarity != 1.0 {
		t.Errorf("Similarity = %v, want 1.0", outcome.Similarity)
	}
	if outcome.Confidence != ConfidenceHigh {
		t.Errorf("Confidence = %q, want %q", outcome.Confidence, ConfidenceHigh)
	}
	if outcome.NeedsReview {
		t.Error("consensus must not need review")
	}
	if outcome.OverlapText != "the rendering of page four" {
		t.Errorf("OverlapText = %q", outcome.OverlapText)
	}
	if arb.calls != 0 {
		t.Errorf("arbiter called %d times on consensus, want 0", arb.calls)
	}
}

func TestReconcilePair_ArbitrationChoosesBatch2(t *testing.T) {
	arb := &stubArbiter{arbitration: &Arbitration{
		ChosenSource: "batch2",
		Reasoning:    "second rendering preserves the hyphenated word",
		Confidence:   ConfidenceHigh,
	}}
	prev, cur := successPair(4,
		"completely different first text here",
		"an unrelated second rendering instead")

	outcome := reconcilePair(context.Background(), prev, cur, arb)

	if arb.calls != 1 {
		t.Fatalf("arbiter called %d times, want 1", arb.calls)
	}
	if arb.gotText1 != "completely different first text here" || arb.gotText2 != "an unrelated second rendering instead" {
		t.Errorf("arbiter saw texts %q / %q", arb.gotText1, arb.gotText2)
	}
	if outcome.Status != ReconArbitrated {
		t.Errorf("Status = %q, want %q", outcome.Status, ReconArbitrated)
	}
	if outcome.OverlapText != "an unrelated second rendering instead" {
		t.Errorf("OverlapText = %q, want the second rendering", outcome.OverlapText)
	}
	if outcome.NeedsReview {
		t.Error("high-confidence arbitration must not need review")
	}
	if outcome.Reason != "second rendering preserves the hyphenated word" {
		t.Errorf("Reason = %q", outcome.Reason)
	}
}

func TestReconcilePair_ArbitrationMerged(t *testing.T) {
	arb := &stubArbiter{arbitration: &Arbitration{
		ChosenSource: "merged",
		Text:         "a synthesis of both renderings",
	}}
	prev, cur := successPair(4, "first version entirely", "second version altogether")

	outcome := reconcilePair(context.Background(), prev, cur, arb)

	if outcome.OverlapText != "a synthesis of both renderings" {
		t.Errorf("OverlapText = %q, want the merged text", outcome.OverlapText)
	}
	// Unset arbiter confidence defaults to medium, which does not flag review.
	if outcome.Confidence != ConfidenceMedium {
		t.Errorf("Confidence = %q, want %q", outcome.Confidence, ConfidenceMedium)
	}
	if outcome.NeedsReview {
		t.Error("medium-confidence arbitration must not need review")
	}
}

func TestReconcilePair_LowConfidenceArbitrationFlagsReview(t *testing.T) {
	arb := &stubArbiter{arbitration: &Arbitration{
		ChosenSource: "batch1",
		Confidence:   ConfidenceLow,
	}}
	prev, cur := successPair(4, "first version entirely", "second version altogether")

	outcome := reconcilePair(context.Background(), prev, cur, arb)

	if outcome.Status != ReconArbitrated {
		t.Errorf("Status = %q, want %q", outcome.Status, ReconArbitrated)
	}
	if !outcome.NeedsReview {
		t.Error("low-confidence arbitration must need review")
	}
	if outcome.OverlapText != "first version entirely" {
		t.Errorf("OverlapText = %q, want batch1's rendering", outcome.OverlapText)
	}
}

func TestReconcilePair_ArbitrationErrorFallsBack(t *testing.T) {
	arb := &stubArbiter{err: errors.New("model unavailable")}
	prev, cur := successPair(4, "first version entirely", "second version altogether")

	outcome := reconcilePair(context.Background(), prev, cur, arb)

	if outcome.Status != ReconDisagreement {
		t.Errorf("Status = %q, want %q", outcome.Status, ReconDisagreement)
	}
	if outcome.ResolutionMethod != "batch1_fallback" {
		t.Errorf("ResolutionMethod = %q", outcome.ResolutionMethod)
	}
	if outcome.OverlapText != "first version entirely" {
		t.Errorf("OverlapText = %q, want batch1's rendering", outcome.OverlapText)
	}
	if !outcome.NeedsReview {
		t.Error("fallback must need review")
	}
}

func TestReconcilePair_UnknownSourceFallsBack(t *testing.T) {
	arb := &stubArbiter{arbitration: &Arbitration{ChosenSource: "batch7"}}
	prev, cur := successPair(4, "first version entirely", "second version altogether")

	outcome := reconcilePair(context.Background(), prev, cur, arb)

	if outcome.Status != ReconDisagreement {
		t.Errorf("Status = %q, want %q", outcome.Status, ReconDisagreement)
	}
	if outcome.ResolutionMethod != "batch1_fallback" {
		t.Errorf("ResolutionMethod = %q", outcome.ResolutionMethod)
	}
	if outcome.OverlapText != "first version entirely" {
		t.Errorf("OverlapText = %q, want batch1's rendering", outcome.OverlapText)
	}
	if !outcome.NeedsReview {
		t.Error("fallback must need review")
	}
}

func TestReconcilePair_NoArbiter(t *testing.T) {
	prev, cur := successPair(4, "first version entirely", "second version altogether")

	outcome := reconcilePair(context.Background(), prev, cur, nil)

	if outcome.Status != ReconDisagreement {
		t.Errorf("Status = %q, want %q", outcome.Status, ReconDisagreement)
	}
	if outcome.ResolutionMethod != "batch1_default" {
		t.Errorf("ResolutionMethod = %q", outcome.ResolutionMethod)
	}
	if !outcome.NeedsReview {
		t.Error("unarbitrated disagreement must need review")
	}
	if outcome.Similarity >= ConsensusThreshold {
		t.Errorf("Similarity = %v, want below threshold", outcome.Similarity)
	}
}

func TestOverlapRendering_FiltersByOriginPage(t *testing.T) {
	ex := &Extraction{Paragraphs: []Paragraph{
		{Text: "page three content", OriginPage: 3},
		{Text: "page four, first paragraph", OriginPage: 4},
		{Text: "page four, second paragraph", OriginPage: 4},
		{Text: "page five content", OriginPage: 5},
	}}

	got := overlapRendering(ex, []int{4})
	want := "page four, first paragraph\n\npage four, second paragraph"
	if got != want {
		t.Errorf("overlapRendering() = %q, want %q", got, want)
	}
}
