package assembler

import (
	"sort"
	"strings"
)

// MergedDocument is the final deduplicated output of an assembly run.
// Every page's content appears exactly once; each paragraph keeps its
// origin page as provenance.
type MergedDocument struct {
	Text           string          `json:"text"`
	Paragraphs     []Paragraph     `json:"paragraphs"`
	ChapterMarkers []ChapterMarker `json:"chapter_markers,omitempty"`
	Footnotes      []Footnote      `json:"footnotes,omitempty"`

	// PageCoverage is the union of pages present in any successful batch.
	PageCoverage []int `json:"page_coverage"`
	// CoverageGaps lists requested pages missing from every successful
	// batch (the footprint of failed batches).
	CoverageGaps []int `json:"coverage_gaps,omitempty"`

	// Recomputed from the merged text, never trusted from upstream.
	WordCount      int `json:"word_count"`
	ParagraphCount int `json:"paragraph_count"`
}

// mergeBatches walks successful batches in order. A batch skips
// paragraphs originating on its overlap-with-previous pages only when the
// preceding batch actually succeeded, since only then were those pages
// already contributed (and cross-validated). If the predecessor failed,
// the current batch is the sole source for its overlap pages and keeps
// them.
func mergeBatches(results []*BatchResult, requestedStart, requestedEnd int) *MergedDocument {
	doc := &MergedDocument{}

	coverage := make(map[int]struct{})
	chapterSeen := make(map[string]int) // identity -> index into doc.ChapterMarkers
	footnoteSeen := make(map[Footnote]struct{})

	for i, res := range results {
		if res.Status != BatchSuccess || res.Extraction == nil {
			continue
		}
		ex := res.Extraction

		skip := make(map[int]struct{}, len(res.Batch.OverlapWithPrev))
		if i > 0 && results[i-1].Status == BatchSuccess && results[i-1].Extraction != nil {
			for _, p := range res.Batch.OverlapWithPrev {
				skip[p] = struct{}{}
			}
		}

		for _, para := range ex.Paragraphs {
			if _, dup := skip[para.OriginPage]; dup {
				continue
			}
			doc.Paragraphs = append(doc.Paragraphs, para)
		}

		for _, p := range ex.ScanPages {
			coverage[p] = struct{}{}
		}

		// Chapter markers dedupe on identity, keeping the earliest page:
		// the same heading legitimately appears in two batches' overlap.
		for _, marker := range ex.ChapterMarkers {
			if idx, seen := chapterSeen[marker.Identity]; seen {
				if marker.OriginPage < doc.ChapterMarkers[idx].OriginPage {
					doc.ChapterMarkers[idx] = marker
				}
				continue
			}
			chapterSeen[marker.Identity] = len(doc.ChapterMarkers)
			doc.ChapterMarkers = append(doc.ChapterMarkers, marker)
		}

		// Footnote identities recur across a book ("1" restarts every
		// chapter), so footnotes dedupe on (identity, page).
		for _, fn := range ex.Footnotes {
			key := Footnote{Identity: fn.Identity, OriginPage: fn.OriginPage}
			if _, seen := footnoteSeen[key]; seen {
				continue
			}
			footnoteSeen[key] = struct{}{}
			doc.Footnotes = append(doc.Footnotes, fn)
		}
	}

	sort.Slice(doc.ChapterMarkers, func(i, j int) bool {
		return doc.ChapterMarkers[i].OriginPage < doc.ChapterMarkers[j].OriginPage
	})
	sort.Slice(doc.Footnotes, func(i, j int) bool {
		if doc.Footnotes[i].OriginPage != doc.Footnotes[j].OriginPage {
			return doc.Footnotes[i].OriginPage < doc.Footnotes[j].OriginPage
		}
		return doc.Footnotes[i].Identity < doc.Footnotes[j].Identity
	})

	doc.PageCoverage = sortedPages(coverage)
	for p := requestedStart; p <= requestedEnd; p++ {
		if _, ok := coverage[p]; !ok {
			doc.CoverageGaps = append(doc.CoverageGaps, p)
		}
	}

	texts := make([]string, 0, len(doc.Paragraphs))
	for _, para := range doc.Paragraphs {
		texts = append(texts, para.Text)
	}
	doc.Text = strings.Join(texts, "\n\n")
	doc.WordCount = len(strings.Fields(doc.Text))
	doc.ParagraphCount = len(doc.Paragraphs)

	return doc
}
