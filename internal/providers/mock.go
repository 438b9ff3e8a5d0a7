package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

const MockName = "mock"

// MockClient is an LLMClient for testing.
type MockClient struct {
	// Configurable behavior
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int // Fail after N requests (0 = never)
	ResponseText string
	ResponseJSON json.RawMessage

	// ResponseFunc overrides canned responses when set.
	ResponseFunc func(req *ChatRequest) (*ChatResult, error)

	// Rate limiting
	CPM         float64
	Concurrency int

	// State
	requestCount atomic.Int64
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		Latency:      time.Millisecond,
		ResponseText: "mock response",
		CPM:          6000,
		Concurrency:  8,
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockName
}

// CallsPerMinute returns the mock rate limit.
func (c *MockClient) CallsPerMinute() float64 {
	return c.CPM
}

// MaxConcurrency returns the mock concurrency bound.
func (c *MockClient) MaxConcurrency() int {
	return c.Concurrency
}

// RequestCount returns how many Chat calls have been made.
func (c *MockClient) RequestCount() int {
	return int(c.requestCount.Load())
}

// Chat sends a mock chat request.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	if c.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.Latency):
		}
	}

	if c.ResponseFunc != nil {
		return c.ResponseFunc(req)
	}

	result := &ChatResult{
		RequestID: fmt.Sprintf("mock-%d", count),
		Provider:  MockName,
		ModelUsed: req.Model,
		Attempts:  1,
	}

	if c.ShouldFail || (c.FailAfter > 0 && count > int64(c.FailAfter)) {
		result.Success = false
		result.ErrorType = "mock_failure"
		result.ErrorMessage = "mock client configured to fail"
		result.ExecutionTime = time.Since(start)
		return result, fmt.Errorf("mock client configured to fail")
	}

	result.Content = c.ResponseText
	if len(c.ResponseJSON) > 0 {
		result.Content = string(c.ResponseJSON)
		result.ParsedJSON = c.ResponseJSON
	}
	result.PromptTokens = 100
	result.CompletionTokens = 50
	result.TotalTokens = 150
	result.CostUSD = 0.001
	result.Success = true
	result.ExecutionTime = time.Since(start)
	return result, nil
}

// MockOCR is an OCRProvider for testing.
type MockOCR struct {
	Latency    time.Duration
	ShouldFail bool
	// TextFunc produces the OCR text for a page; defaults to a canned string.
	TextFunc func(pageNum int) string

	CPM         float64
	Concurrency int

	requestCount atomic.Int64
}

// NewMockOCR creates a new mock OCR provider.
func NewMockOCR() *MockOCR {
	return &MockOCR{
		Latency:     time.Millisecond,
		CPM:         6000,
		Concurrency: 8,
	}
}

// Name returns the provider identifier.
func (p *MockOCR) Name() string { return "mock-ocr" }

// CallsPerMinute returns the mock rate limit.
func (p *MockOCR) CallsPerMinute() float64 { return p.CPM }

// MaxConcurrency returns the mock concurrency bound.
func (p *MockOCR) MaxConcurrency() int { return p.Concurrency }

// RequestCount returns how many ProcessImage calls have been made.
func (p *MockOCR) RequestCount() int {
	return int(p.requestCount.Load())
}

// ProcessImage returns canned OCR text for a page.
func (p *MockOCR) ProcessImage(ctx context.Context, image []byte, pageNum int) (*OCRResult, error) {
	start := time.Now()
	p.requestCount.Add(1)

	if p.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.Latency):
		}
	}

	if p.ShouldFail {
		return nil, fmt.Errorf("mock ocr configured to fail")
	}

	text := fmt.Sprintf("mock ocr text for page %d", pageNum)
	if p.TextFunc != nil {
		text = p.TextFunc(pageNum)
	}

	return &OCRResult{
		Success:       true,
		Text:          text,
		Confidence:    0.95,
		ExecutionTime: time.Since(start),
	}, nil
}

// Interface compliance
var (
	_ LLMClient   = (*MockClient)(nil)
	_ LLMClient   = (*OpenAIClient)(nil)
	_ OCRProvider = (*MockOCR)(nil)
	_ OCRProvider = (*TesseractProvider)(nil)
)
