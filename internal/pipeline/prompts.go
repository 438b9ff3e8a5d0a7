package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Prompts and response schemas for the LLM-backed stages. Schemas are
// strict: the OpenAI client validates parsed output against them before a
// result is accepted.

const correctSystemPrompt = `You are an expert at correcting OCR output from scanned books.
You receive the raw OCR text of one page. Fix OCR errors: broken words,
character substitutions (rn/m, l/1/I, 0/O), dropped diacritics, and
spurious line-break hyphenation. Preserve the original wording, spelling
conventions, paragraph breaks, and punctuation style of the book. Do not
summarize, modernize, or add content.`

func correctUserPrompt(pageNum int, text string) string {
	return fmt.Sprintf("Page %d OCR text:\n\n%s", pageNum, text)
}

const fixSystemPrompt = `You are an expert at repairing damaged passages in OCR-corrected book
text. You receive one page whose text still shows specific problems,
listed by name. Repair only those problems. Keep every salvageable word;
where text is unrecoverable, reconstruct the most plausible reading from
context. Do not summarize or add content.`

func fixUserPrompt(pageNum int, suspicions []string, text string) string {
	return fmt.Sprintf("Page %d. Detected problems: %s.\n\nText:\n\n%s",
		pageNum, strings.Join(suspicions, ", "), text)
}

// correctedPageSchema validates the correct and fix stages' output.
var correctedPageSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"corrected_text": {
			"type": "string",
			"description": "The full corrected page text"
		},
		"confidence": {
			"type": "number",
			"description": "Overall confidence (0.0-1.0)"
		}
	},
	"required": ["corrected_text", "confidence"],
	"additionalProperties": false
}`)

// correctedPayload is the parsed response for correct/fix calls.
type correctedPayload struct {
	CorrectedText string  `json:"corrected_text"`
	Confidence    float64 `json:"confidence"`
}

const extractSystemPrompt = `You are an expert at analyzing corrected book text. You receive a run
of consecutive pages, each labeled with its page number. Produce the
structured content of exactly these pages:
- paragraphs in reading order, each attributed to the page it STARTS on
  (a paragraph spanning a page break belongs to its starting page and is
  never split),
- chapter boundaries, each with a stable identity such as the normalized
  heading,
- footnotes, each with its marker as identity and the page it appears on.
Do not invent content and do not carry text across the given page range.`

func extractUserPrompt(pages []*CorrectedPage) string {
	var b strings.Builder
	for i, p := range pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "=== Page %d ===\n%s", p.PageNum, p.Text)
	}
	return b.String()
}

// extractionSchema validates the structure stage's per-batch output.
var extractionSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"clean_text": {
			"type": "string",
			"description": "The batch's full text, paragraphs separated by blank lines"
		},
		"paragraphs": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"text": {"type": "string"},
					"origin_page": {
						"type": "integer",
						"description": "Page the paragraph starts on"
					},
					"kind": {
						"type": "string",
						"description": "body, heading, or footnote"
					}
				},
				"required": ["text", "origin_page"],
				"additionalProperties": false
			}
		},
		"chapter_markers": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"identity": {"type": "string"},
					"origin_page": {"type": "integer"},
					"title": {"type": "string"}
				},
				"required": ["identity", "origin_page"],
				"additionalProperties": false
			}
		},
		"footnotes": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"identity": {"type": "string"},
					"origin_page": {"type": "integer"},
					"text": {"type": "string"}
				},
				"required": ["identity", "origin_page", "text"],
				"additionalProperties": false
			}
		}
	},
	"required": ["clean_text", "paragraphs"],
	"additionalProperties": false
}`)

const arbiterSystemPrompt = `Two overlapping extraction windows rendered the same book pages
differently. Decide which rendering is faithful to a printed book, or
synthesize a merged rendering when each is partially right. Prefer the
rendering with intact words, consistent punctuation, and no OCR
artifacts.`

func arbiterUserPrompt(pages []int, text1, text2 string) string {
	return fmt.Sprintf(
		"Pages %v.\n\nRendering A (earlier window):\n%s\n\nRendering B (later window):\n%s",
		pages, text1, text2)
}

// arbitrationSchema validates the arbiter's judgment.
var arbitrationSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"chosen_source": {
			"type": "string",
			"enum": ["batch1", "batch2", "merged"],
			"description": "batch1 = rendering A, batch2 = rendering B"
		},
		"text": {
			"type": "string",
			"description": "The synthesized rendering when chosen_source is merged"
		},
		"reasoning": {"type": "string"},
		"confidence": {
			"type": "string",
			"enum": ["high", "medium", "low"]
		}
	},
	"required": ["chosen_source", "confidence"],
	"additionalProperties": false
}`)
