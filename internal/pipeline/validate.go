package pipeline

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/jackzampolin/folio/internal/checkpoint"
	"github.com/jackzampolin/folio/internal/home"
)

// Resume validation predicates. Each answers "does page N have a usable
// artifact on disk for this stage?" — the checkpoint ledger trusts these
// over its own recorded progress when resuming.

// ValidateOCRPage reports whether the ocr artifact for a page parses and
// carries non-empty text.
func ValidateOCRPage(dir *home.Dir, scanID string) checkpoint.ValidateFunc {
	return func(pageNum int) bool {
		page, err := ReadOCRPage(dir, scanID, pageNum)
		if err != nil {
			return false
		}
		return strings.TrimSpace(page.Text) != ""
	}
}

// ValidateCorrectedPage reports whether a correct/fix artifact for a page
// parses and carries non-empty text.
func ValidateCorrectedPage(dir *home.Dir, scanID, stage string) checkpoint.ValidateFunc {
	return func(pageNum int) bool {
		page, err := ReadCorrectedPage(dir, scanID, stage, pageNum)
		if err != nil {
			return false
		}
		return strings.TrimSpace(page.Text) != ""
	}
}

// ValidateJSONFile reports whether a page's stage output exists and is
// valid JSON, without imposing a schema. Used for artifacts whose shape
// varies by batch.
func ValidateJSONFile(dir *home.Dir, scanID, stage string) checkpoint.ValidateFunc {
	return func(pageNum int) bool {
		data, err := os.ReadFile(dir.PageOutputPath(scanID, stage, pageNum))
		if err != nil {
			return false
		}
		return json.Valid(data)
	}
}
