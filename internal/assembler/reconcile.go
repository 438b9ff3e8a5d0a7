package assembler

import (
	"context"
	"fmt"
	"strings"
)

// ConsensusThreshold is the similarity score at or above which two
// overlapping renderings are considered to agree.
const ConsensusThreshold = 0.95

// ReconStatus classifies a reconciliation outcome.
type ReconStatus string

const (
	ReconConsensus    ReconStatus = "consensus"
	ReconDisagreement ReconStatus = "disagreement"
	ReconArbitrated   ReconStatus = "llm_arbitrated"
	ReconError        ReconStatus = "error"
)

// Confidence grades how much to trust a reconciliation outcome.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ReconciliationOutcome records how the overlap between two adjacent
// batches was resolved. Disagreements are never fatal: the outcome always
// carries a usable overlap text plus enough signal for downstream triage.
type ReconciliationOutcome struct {
	Status           ReconStatus `json:"status"`
	Similarity       float64     `json:"similarity"`
	Confidence       Confidence  `json:"confidence"`
	ResolutionMethod string      `json:"resolution_method"`
	OverlapText      string      `json:"overlap_text"`
	OverlapPages     []int       `json:"overlap_pages"`
	NeedsReview      bool        `json:"needs_review,omitempty"`
	Reason           string      `json:"reason,omitempty"`
}

// Arbitration is an arbiter's judgment between two disagreeing renderings.
type Arbitration struct {
	// ChosenSource is "batch1", "batch2", or "merged".
	ChosenSource string `json:"chosen_source"`
	// Text is the synthesized rendering when ChosenSource is "merged".
	Text       string     `json:"text,omitempty"`
	Reasoning  string     `json:"reasoning,omitempty"`
	Confidence Confidence `json:"confidence"`
}

// Arbiter adjudicates between two disagreeing renderings of the same
// pages. Implementations typically show both to an LLM.
type Arbiter interface {
	Arbitrate(ctx context.Context, text1, text2 string, pages []int) (*Arbitration, error)
}

// overlapRendering concatenates a batch's paragraphs originating on the
// given pages, in paragraph order.
func overlapRendering(ex *Extraction, pages []int) string {
	set := make(map[int]struct{}, len(pages))
	for _, p := range pages {
		set[p] = struct{}{}
	}

	var parts []string
	for _, para := range ex.Paragraphs {
		if _, ok := set[para.OriginPage]; ok {
			parts = append(parts, para.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// reconcilePair reconciles the overlap between two adjacent successful
// batches. Above the consensus threshold the earlier batch's rendering is
// kept by convention. Below it, the arbiter (when present) adjudicates;
// arbitration failure falls back to the earlier batch's rendering with a
// review flag.
func reconcilePair(ctx context.Context, prev, cur *BatchResult, arbiter Arbiter) *ReconciliationOutcome {
	pages := cur.Batch.OverlapWithPrev

	text1 := overlapRendering(prev.Extraction, pages)
	text2 := overlapRendering(cur.Extraction, pages)

	similarity := Similarity(text1, text2)

	if similarity >= ConsensusThreshold {
		return &ReconciliationOutcome{
			Status:           ReconConsensus,
			Similarity:       similarity,
			Confidence:       ConfidenceHigh,
			ResolutionMethod: "consensus",
			OverlapText:      text1,
			OverlapPages:     pages,
		}
	}

	if arbiter != nil {
		arb, err := arbiter.Arbitrate(ctx, text1, text2, pages)
		if err == nil && arb != nil {
			return arbitratedOutcome(arb, text1, text2, similarity, pages)
		}
		// Escalation failed: keep the earlier batch's rendering, flagged.
		reason := "arbitration failed"
		if err != nil {
			reason = fmt.Sprintf("arbitration failed: %v", err)
		}
		return &ReconciliationOutcome{
			Status:           ReconDisagreement,
			Similarity:       similarity,
			Confidence:       ConfidenceLow,
			ResolutionMethod: "batch1_fallback",
			OverlapText:      text1,
			OverlapPages:     pages,
			NeedsReview:      true,
			Reason:           reason,
		}
	}

	return &ReconciliationOutcome{
		Status:           ReconDisagreement,
		Similarity:       similarity,
		Confidence:       ConfidenceLow,
		ResolutionMethod: "batch1_default",
		OverlapText:      text1,
		OverlapPages:     pages,
		NeedsReview:      true,
		Reason: fmt.Sprintf("overlap renderings diverge (similarity %.3f below %.2f)",
			similarity, ConsensusThreshold),
	}
}

func arbitratedOutcome(arb *Arbitration, text1, text2 string, similarity float64, pages []int) *ReconciliationOutcome {
	outcome := &ReconciliationOutcome{
		Status:           ReconArbitrated,
		Similarity:       similarity,
		Confidence:       arb.Confidence,
		ResolutionMethod: "llm_arbitration",
		OverlapPages:     pages,
		Reason:           arb.Reasoning,
	}
	if outcome.Confidence == "" {
		outcome.Confidence = ConfidenceMedium
	}

	switch arb.ChosenSource {
	case "batch1":
		outcome.OverlapText = text1
	case "batch2":
		outcome.OverlapText = text2
	case "merged":
		outcome.OverlapText = arb.Text
	default:
		// Unusable arbitration payload: treat like an escalation failure.
		outcome.Status = ReconDisagreement
		outcome.Confidence = ConfidenceLow
		outcome.ResolutionMethod = "batch1_fallback"
		outcome.OverlapText = text1
		outcome.NeedsReview = true
		outcome.Reason = fmt.Sprintf("arbiter returned unknown source %q", arb.ChosenSource)
	}

	if outcome.Confidence == ConfidenceLow {
		outcome.NeedsReview = true
	}
	return outcome
}
