package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/jackzampolin/folio/internal/providers"
)

// FixStage re-sends only suspicious corrected pages with a focused repair
// prompt. Clean pages pass through unchanged, so the stage's output dir is
// a complete corrected rendition of the scan either way.
type FixStage struct{}

// NewFixStage creates the fix stage.
func NewFixStage() *FixStage { return &FixStage{} }

func (s *FixStage) Name() string           { return StageFix }
func (s *FixStage) Dependencies() []string { return []string{StageCorrect} }
func (s *FixStage) Description() string {
	return "Re-run suspicious corrected pages through a targeted repair prompt"
}

func (s *FixStage) Run(ctx context.Context, scanID string, opts Options) (*RunResult, error) {
	return runPageLLMStage(ctx, scanID, opts, pageLLMStage{
		stage: StageFix,
		plan: func(env *stageEnv, scanID string, pageNum int) (*pagePlan, error) {
			page, err := ReadCorrectedPage(env.home, scanID, StageCorrect, pageNum)
			if err != nil {
				return nil, err
			}

			suspicions := SuspicionsFor(page.Text)
			if len(suspicions) == 0 {
				passthrough := *page
				passthrough.Suspicions = nil
				passthrough.Fixed = false
				passthrough.CostUSD = 0
				passthrough.CreatedAt = time.Now().UTC()
				return &pagePlan{passthrough: &passthrough}, nil
			}

			return &pagePlan{
				suspicions: suspicions,
				request: &providers.ChatRequest{
					Messages: []providers.Message{
						{Role: "system", Content: fixSystemPrompt},
						{Role: "user", Content: fixUserPrompt(pageNum, suspicions, page.Text)},
					},
					ResponseFormat: &providers.ResponseFormat{
						Name:   "corrected_page",
						Schema: correctedPageSchema,
					},
					RequestID: fmt.Sprintf("%s-fix-%04d", scanID, pageNum),
				},
			}, nil
		},
	})
}

// Suspicion heuristic names.
const (
	SuspicionGarbled      = "garbled_characters"
	SuspicionArtifacts    = "ocr_artifacts"
	SuspicionShortLines   = "fragmented_lines"
	SuspicionEmptyishPage = "near_empty_page"
)

var artifactPattern = regexp.MustCompile(
	`[|~^]{2,}` + // runs of scan noise characters
		`|\b[a-z]+[0-9]+[a-z]+\b` + // digits embedded inside words
		`|(?:\b[b-df-hj-np-tv-xz]{5,}\b)`) // consonant runs with no vowel

// SuspicionsFor lists the heuristics a corrected page still trips.
// An empty result means the page looks clean and skips the fix pass.
func SuspicionsFor(text string) []string {
	var suspicions []string
	trimmed := strings.TrimSpace(text)

	if len([]rune(trimmed)) < 40 {
		return []string{SuspicionEmptyishPage}
	}

	if garbledRatio(trimmed) > 0.05 {
		suspicions = append(suspicions, SuspicionGarbled)
	}
	if artifactPattern.MatchString(strings.ToLower(trimmed)) {
		suspicions = append(suspicions, SuspicionArtifacts)
	}
	if fragmentedLineRatio(trimmed) > 0.5 {
		suspicions = append(suspicions, SuspicionShortLines)
	}
	return suspicions
}

// garbledRatio is the share of characters that are neither letters,
// digits, whitespace, nor common punctuation.
func garbledRatio(text string) float64 {
	if text == "" {
		return 0
	}
	garbled := 0
	total := 0
	for _, r := range text {
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			continue
		}
		if strings.ContainsRune(`.,;:!?'"()-—–[]*&$%/`, r) {
			continue
		}
		garbled++
	}
	return float64(garbled) / float64(total)
}

// fragmentedLineRatio is the share of non-empty lines shorter than 20
// characters. Body text lines in a book scan are long; a page dominated by
// stub lines usually means broken column detection.
func fragmentedLineRatio(text string) float64 {
	lines := strings.Split(text, "\n")
	nonEmpty := 0
	short := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		nonEmpty++
		if len([]rune(line)) < 20 {
			short++
		}
	}
	if nonEmpty <= 1 {
		return 0
	}
	return float64(short) / float64(nonEmpty)
}
