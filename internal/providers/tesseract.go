package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"
)

const TesseractName = "tesseract"

// TesseractConfig holds configuration for the local Tesseract OCR provider.
type TesseractConfig struct {
	Languages      []string // e.g. ["eng"]; empty uses the tesseract default
	DPI            int      // hint for scans missing DPI metadata
	CallsPerMinute float64  // local engine, effectively unlimited by default
	MaxConcurrency int
}

// TesseractProvider implements OCRProvider with a local Tesseract engine
// via gosseract. A fresh client is created per call: gosseract clients are
// not safe for concurrent use and setup cost is negligible next to
// recognition time.
type TesseractProvider struct {
	languages      []string
	dpi            int
	callsPerMinute float64
	maxConcurrency int
	clientFactory  func() *gosseract.Client
}

// NewTesseractProvider creates a local OCR provider.
func NewTesseractProvider(cfg TesseractConfig) *TesseractProvider {
	if cfg.CallsPerMinute <= 0 {
		cfg.CallsPerMinute = 600
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	return &TesseractProvider{
		languages:      cfg.Languages,
		dpi:            cfg.DPI,
		callsPerMinute: cfg.CallsPerMinute,
		maxConcurrency: cfg.MaxConcurrency,
		clientFactory:  gosseract.NewClient,
	}
}

// Name returns the provider identifier.
func (p *TesseractProvider) Name() string {
	return TesseractName
}

// CallsPerMinute returns the configured rate limit.
func (p *TesseractProvider) CallsPerMinute() float64 {
	return p.callsPerMinute
}

// MaxConcurrency returns max concurrent recognitions.
func (p *TesseractProvider) MaxConcurrency() int {
	return p.maxConcurrency
}

// ProcessImage runs Tesseract over one page image. Local OCR is free, so
// CostUSD is always zero.
func (p *TesseractProvider) ProcessImage(ctx context.Context, image []byte, pageNum int) (*OCRResult, error) {
	start := time.Now()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	client := p.clientFactory()
	defer client.Close()

	if err := client.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("page %d: set image: %w", pageNum, err)
	}
	if len(p.languages) > 0 {
		if err := client.SetLanguage(p.languages...); err != nil {
			return nil, fmt.Errorf("page %d: set languages: %w", pageNum, err)
		}
	}
	if p.dpi > 0 {
		if err := client.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(p.dpi)); err != nil {
			return nil, fmt.Errorf("page %d: set dpi: %w", pageNum, err)
		}
	}

	text, err := client.Text()
	if err != nil {
		return &OCRResult{
			Success:       false,
			ErrorMessage:  err.Error(),
			ExecutionTime: time.Since(start),
		}, nil
	}

	return &OCRResult{
		Success:       true,
		Text:          strings.TrimSpace(text),
		Confidence:    wordConfidence(client),
		ExecutionTime: time.Since(start),
	}, nil
}

// wordConfidence averages per-word confidence into [0,1]. Returns 0 when
// tesseract reports no word boxes (e.g. blank pages).
func wordConfidence(client *gosseract.Client) float64 {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence / 100.0
	}
	return sum / float64(len(boxes))
}
