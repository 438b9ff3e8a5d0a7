// Package assembler builds one coherent, deduplicated document from a long
// page sequence that can only be reliably processed in overlapping
// multi-page windows. Batches are extracted in parallel, overlapping
// regions between adjacent batches are reconciled, and everything is merged
// with per-page provenance.
package assembler

import "sort"

// PageRecord is one input page handed to the batch extractor.
type PageRecord struct {
	PageNum int    `json:"page_num"`
	Text    string `json:"text"`
}

// WorkBatch is a contiguous run of pages processed by one worker
// invocation. Derived deterministically from the window size and overlap.
type WorkBatch struct {
	BatchID   int `json:"batch_id"`
	StartPage int `json:"start_page"`
	EndPage   int `json:"end_page"`

	// OverlapWithPrev lists the pages shared with the immediately
	// preceding batch. Empty for the first batch.
	OverlapWithPrev []int `json:"overlap_with_prev,omitempty"`
}

// PageCount returns the number of pages in the batch.
func (b WorkBatch) PageCount() int {
	return b.EndPage - b.StartPage + 1
}

// Pages returns the batch's page numbers in order.
func (b WorkBatch) Pages() []int {
	pages := make([]int, 0, b.PageCount())
	for p := b.StartPage; p <= b.EndPage; p++ {
		pages = append(pages, p)
	}
	return pages
}

// Paragraph is one unit of extracted text. A paragraph spanning a page
// break is attributed to the page it starts on, never split.
type Paragraph struct {
	Text       string `json:"text"`
	OriginPage int    `json:"origin_page"`
	Kind       string `json:"kind,omitempty"` // "body", "heading", "footnote", ...
}

// ChapterMarker is a detected chapter boundary.
type ChapterMarker struct {
	Identity   string `json:"identity"` // stable key, e.g. normalized heading
	OriginPage int    `json:"origin_page"`
	Title      string `json:"title,omitempty"`
}

// Footnote is a detected footnote.
type Footnote struct {
	Identity   string `json:"identity"` // footnote marker, e.g. "3" or "*"
	OriginPage int    `json:"origin_page"`
	Text       string `json:"text"`
}

// Extraction is the structured output of one batch extraction.
type Extraction struct {
	CleanText      string          `json:"clean_text"`
	Paragraphs     []Paragraph     `json:"paragraphs"`
	ChapterMarkers []ChapterMarker `json:"chapter_markers,omitempty"`
	Footnotes      []Footnote      `json:"footnotes,omitempty"`
	ScanPages      []int           `json:"scan_pages"`
}

// BatchStatus reports whether a batch extraction landed.
type BatchStatus string

const (
	BatchSuccess BatchStatus = "success"
	BatchFailed  BatchStatus = "failed"
)

// BatchResult is the outcome of one batch: its extraction when successful,
// and (for batches after the first) the reconciliation of its overlap with
// the preceding batch.
type BatchResult struct {
	BatchID int         `json:"batch_id"`
	Batch   WorkBatch   `json:"batch"`
	Status  BatchStatus `json:"status"`

	Extraction     *Extraction            `json:"extraction,omitempty"`
	Reconciliation *ReconciliationOutcome `json:"reconciliation,omitempty"`

	CostUSD float64 `json:"cost_usd"`
	Error   string  `json:"error,omitempty"`
}

// sortedPages returns the keys of a page set in ascending order.
func sortedPages(set map[int]struct{}) []int {
	pages := make([]int, 0, len(set))
	for p := range set {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}
