package pipeline

import (
	"os"
	"testing"
	"time"

	"github.com/jackzampolin/folio/internal/home"
)

func newTestHome(t *testing.T) *home.Dir {
	t.Helper()
	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New: %v", err)
	}
	return h
}

func TestOCRPageRoundTrip(t *testing.T) {
	h := newTestHome(t)
	scanID := "scan-a"
	if err := h.EnsureStageOutputDir(scanID, StageOCR); err != nil {
		t.Fatalf("EnsureStageOutputDir: %v", err)
	}

	want := OCRPage{
		PageNum:    7,
		Text:       "It was the best of times.",
		Confidence: 0.93,
		Provider:   "tesseract",
		CostUSD:    0,
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
	if err := writePageArtifact(h, scanID, StageOCR, want.PageNum, want); err != nil {
		t.Fatalf("writePageArtifact: %v", err)
	}

	got, err := ReadOCRPage(h, scanID, want.PageNum)
	if err != nil {
		t.Fatalf("ReadOCRPage: %v", err)
	}
	if got.PageNum != want.PageNum || got.Text != want.Text || got.Provider != want.Provider {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
	if got.Confidence != want.Confidence {
		t.Errorf("Confidence = %v, want %v", got.Confidence, want.Confidence)
	}
}

func TestCorrectedPageRoundTrip(t *testing.T) {
	h := newTestHome(t)
	scanID := "scan-b"
	if err := h.EnsureStageOutputDir(scanID, StageFix); err != nil {
		t.Fatalf("EnsureStageOutputDir: %v", err)
	}

	want := CorrectedPage{
		PageNum:    3,
		Text:       "A corrected page.",
		Provider:   "openai",
		Model:      "gpt-4o-mini",
		CostUSD:    0.25,
		Suspicions: []string{SuspicionGarbled, SuspicionArtifacts},
		Fixed:      true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := writePageArtifact(h, scanID, StageFix, want.PageNum, want); err != nil {
		t.Fatalf("writePageArtifact: %v", err)
	}

	got, err := ReadCorrectedPage(h, scanID, StageFix, want.PageNum)
	if err != nil {
		t.Fatalf("ReadCorrectedPage: %v", err)
	}
	if got.Text != want.Text || got.Model != want.Model || !got.Fixed {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
	if len(got.Suspicions) != 2 || got.Suspicions[0] != SuspicionGarbled {
		t.Errorf("Suspicions = %v, want %v", got.Suspicions, want.Suspicions)
	}
}

func TestLoadCorrectedPagesRequiresFullRange(t *testing.T) {
	h := newTestHome(t)
	scanID := "scan-c"
	if err := h.EnsureStageOutputDir(scanID, StageCorrect); err != nil {
		t.Fatalf("EnsureStageOutputDir: %v", err)
	}

	for _, p := range []int{1, 2, 4} {
		page := CorrectedPage{PageNum: p, Text: "text", Provider: "mock"}
		if err := writePageArtifact(h, scanID, StageCorrect, p, page); err != nil {
			t.Fatalf("writePageArtifact(%d): %v", p, err)
		}
	}

	if _, err := LoadCorrectedPages(h, scanID, StageCorrect, 1, 4); err == nil {
		t.Fatal("expected error for missing page 3")
	}

	pages, err := LoadCorrectedPages(h, scanID, StageCorrect, 1, 2)
	if err != nil {
		t.Fatalf("LoadCorrectedPages: %v", err)
	}
	if len(pages) != 2 || pages[0].PageNum != 1 || pages[1].PageNum != 2 {
		t.Errorf("unexpected pages: %+v", pages)
	}
}

func TestValidatePredicates(t *testing.T) {
	h := newTestHome(t)
	scanID := "scan-d"
	for _, stage := range []string{StageOCR, StageCorrect, StageStructure} {
		if err := h.EnsureStageOutputDir(scanID, stage); err != nil {
			t.Fatalf("EnsureStageOutputDir(%s): %v", stage, err)
		}
	}

	t.Run("ocr", func(t *testing.T) {
		validate := ValidateOCRPage(h, scanID)
		if validate(1) {
			t.Error("missing artifact validated")
		}

		if err := writePageArtifact(h, scanID, StageOCR, 1, OCRPage{PageNum: 1, Text: "  "}); err != nil {
			t.Fatal(err)
		}
		if validate(1) {
			t.Error("blank-text artifact validated")
		}

		if err := writePageArtifact(h, scanID, StageOCR, 1, OCRPage{PageNum: 1, Text: "real text"}); err != nil {
			t.Fatal(err)
		}
		if !validate(1) {
			t.Error("good artifact rejected")
		}
	})

	t.Run("corrected", func(t *testing.T) {
		validate := ValidateCorrectedPage(h, scanID, StageCorrect)
		if validate(2) {
			t.Error("missing artifact validated")
		}
		if err := writePageArtifact(h, scanID, StageCorrect, 2, CorrectedPage{PageNum: 2, Text: "ok"}); err != nil {
			t.Fatal(err)
		}
		if !validate(2) {
			t.Error("good artifact rejected")
		}
	})

	t.Run("json file", func(t *testing.T) {
		validate := ValidateJSONFile(h, scanID, StageStructure)
		if validate(3) {
			t.Error("missing file validated")
		}

		path := h.PageOutputPath(scanID, StageStructure, 3)
		if err := os.WriteFile(path, []byte("{truncated"), 0o644); err != nil {
			t.Fatal(err)
		}
		if validate(3) {
			t.Error("invalid JSON validated")
		}

		if err := os.WriteFile(path, []byte(`{"ok":true}`), 0o644); err != nil {
			t.Fatal(err)
		}
		if !validate(3) {
			t.Error("valid JSON rejected")
		}
	})
}
