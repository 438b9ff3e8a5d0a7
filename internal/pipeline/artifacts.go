package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/jackzampolin/folio/internal/home"
)

// OCRPage is the per-page artifact written by the ocr stage.
type OCRPage struct {
	PageNum    int       `json:"page_num"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence,omitempty"`
	Provider   string    `json:"provider"`
	CostUSD    float64   `json:"cost_usd"`
	CreatedAt  time.Time `json:"created_at"`
}

// CorrectedPage is the per-page artifact written by the correct and fix
// stages. The fix stage rewrites only pages its heuristics flag; clean
// pages are carried over unchanged with Fixed=false.
type CorrectedPage struct {
	PageNum  int    `json:"page_num"`
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	CostUSD  float64 `json:"cost_usd"`

	// Suspicions lists the heuristics that flagged this page, if any.
	Suspicions []string `json:"suspicions,omitempty"`
	// Fixed is true when the fix stage actually rewrote the text.
	Fixed bool `json:"fixed,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// writePageArtifact marshals v to the page's stage output file.
func writePageArtifact(dir *home.Dir, scanID, stage string, pageNum int, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s page %d: %w", stage, pageNum, err)
	}
	path := dir.PageOutputPath(scanID, stage, pageNum)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s page %d: %w", stage, pageNum, err)
	}
	return nil
}

// readPageArtifact unmarshals the page's stage output file into v.
func readPageArtifact(dir *home.Dir, scanID, stage string, pageNum int, v any) error {
	path := dir.PageOutputPath(scanID, stage, pageNum)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s page %d: %w", stage, pageNum, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s page %d: %w", stage, pageNum, err)
	}
	return nil
}

// ReadOCRPage loads one ocr stage artifact.
func ReadOCRPage(dir *home.Dir, scanID string, pageNum int) (*OCRPage, error) {
	var p OCRPage
	if err := readPageArtifact(dir, scanID, StageOCR, pageNum, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ReadCorrectedPage loads one artifact from the correct or fix stage.
func ReadCorrectedPage(dir *home.Dir, scanID, stage string, pageNum int) (*CorrectedPage, error) {
	var p CorrectedPage
	if err := readPageArtifact(dir, scanID, stage, pageNum, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadCorrectedPages loads the [startPage, endPage] range of a stage's
// corrected-page artifacts, sorted by page number. Every page in the range
// must be present.
func LoadCorrectedPages(dir *home.Dir, scanID, stage string, startPage, endPage int) ([]*CorrectedPage, error) {
	pages := make([]*CorrectedPage, 0, endPage-startPage+1)
	for p := startPage; p <= endPage; p++ {
		page, err := ReadCorrectedPage(dir, scanID, stage, p)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNum < pages[j].PageNum })
	return pages, nil
}
