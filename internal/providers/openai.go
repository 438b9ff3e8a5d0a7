package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	OpenAIName         = "openai"
	openAIDefaultModel = "gpt-4o-mini"
)

// ModelPricing holds per-model token pricing in USD per 1M tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// defaultPricing covers the models folio ships prompts for. Unknown models
// report zero cost rather than guessing.
var defaultPricing = map[string]ModelPricing{
	"gpt-4o":      {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini": {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4.1":     {InputPer1M: 2.00, OutputPer1M: 8.00},
	"gpt-4.1-mini": {InputPer1M: 0.40, OutputPer1M: 1.60},
}

// OpenAIConfig holds configuration for the OpenAI chat client.
type OpenAIConfig struct {
	APIKey         string
	Model          string        // default model when requests omit one
	CallsPerMinute float64       // provider quota
	MaxConcurrency int           // in-flight request bound
	MaxRetries     int           // attempts per call
	RetryDelay     time.Duration // base backoff delay
	Timeout        time.Duration // HTTP timeout
	BaseURL        string        // optional (tests, proxies)
	HTTPClient     *http.Client  // optional (tests)
	Pricing        map[string]ModelPricing
}

// OpenAIClient implements LLMClient using the official OpenAI SDK.
type OpenAIClient struct {
	model          string
	callsPerMinute float64
	maxConcurrency int
	maxRetries     int
	retryDelay     time.Duration
	pricing        map[string]ModelPricing
	client         openai.Client
}

// NewOpenAIClient creates a new OpenAI chat client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.CallsPerMinute <= 0 {
		cfg.CallsPerMinute = 150
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.Pricing == nil {
		cfg.Pricing = defaultPricing
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		// Retries are handled here, not by the SDK transport.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		model:          cfg.Model,
		callsPerMinute: cfg.CallsPerMinute,
		maxConcurrency: cfg.MaxConcurrency,
		maxRetries:     cfg.MaxRetries,
		retryDelay:     cfg.RetryDelay,
		pricing:        cfg.Pricing,
		client:         openai.NewClient(opts...),
	}
}

// Name returns the client identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// CallsPerMinute returns the provider quota for rate limiting.
func (c *OpenAIClient) CallsPerMinute() float64 {
	return c.callsPerMinute
}

// MaxConcurrency returns max concurrent in-flight requests.
func (c *OpenAIClient) MaxConcurrency() int {
	return c.maxConcurrency
}

// Chat sends a chat completion request and returns a structured result.
// Transport failures are retried with exponential backoff; the returned
// ChatResult always carries success/error fields for the caller to branch on.
func (c *OpenAIClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = c.model
	}

	params, err := c.buildParams(model, req)
	if err != nil {
		return &ChatResult{
			Provider:     OpenAIName,
			ModelUsed:    model,
			RequestID:    req.RequestID,
			Success:      false,
			ErrorType:    "bad_request",
			ErrorMessage: err.Error(),
		}, err
	}

	var resp *openai.ChatCompletion
	attempts := 0
	err = retry.Do(
		func() error {
			attempts++
			var callErr error
			resp, callErr = c.client.Chat.Completions.New(ctx, params)
			return callErr
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxJitter(time.Second),
		retry.RetryIf(isRetriableTransportError),
		retry.LastErrorOnly(true),
	)

	result := &ChatResult{
		Provider:      OpenAIName,
		ModelUsed:     model,
		RequestID:     req.RequestID,
		Attempts:      attempts,
		ExecutionTime: time.Since(start),
	}

	if err != nil {
		result.Success = false
		result.ErrorType = classifyError(err)
		result.ErrorMessage = err.Error()
		return result, fmt.Errorf("openai chat: %w", err)
	}

	if len(resp.Choices) == 0 {
		result.Success = false
		result.ErrorType = "empty_response"
		result.ErrorMessage = "no choices in completion"
		return result, nil
	}

	result.Content = resp.Choices[0].Message.Content
	result.ModelUsed = resp.Model
	result.PromptTokens = int(resp.Usage.PromptTokens)
	result.CompletionTokens = int(resp.Usage.CompletionTokens)
	result.TotalTokens = int(resp.Usage.TotalTokens)
	result.CostUSD = c.costFor(resp.Model, result.PromptTokens, result.CompletionTokens)
	result.Success = true

	if req.ResponseFormat != nil {
		parsed, perr := ExtractJSON(result.Content)
		if perr != nil {
			result.Success = false
			result.ErrorType = "json_parse"
			result.ErrorMessage = perr.Error()
			return result, nil
		}
		if verr := ValidateAgainstSchema(req.ResponseFormat.Schema, parsed); verr != nil {
			result.Success = false
			result.ErrorType = "schema_validation"
			result.ErrorMessage = verr.Error()
			return result, nil
		}
		result.ParsedJSON = parsed
	}

	return result, nil
}

func (c *OpenAIClient) buildParams(model string, req *ChatRequest) (openai.ChatCompletionNewParams, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		case "user", "":
			msgs = append(msgs, openai.UserMessage(m.Content))
		default:
			return openai.ChatCompletionNewParams{}, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: msgs,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	if req.ResponseFormat != nil {
		var schema any
		if err := json.Unmarshal(req.ResponseFormat.Schema, &schema); err != nil {
			return openai.ChatCompletionNewParams{}, fmt.Errorf("invalid response format schema: %w", err)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.ResponseFormat.Name,
					Schema: schema,
					Strict: openai.Bool(true),
				},
			},
		}
	}

	return params, nil
}

func (c *OpenAIClient) costFor(model string, promptTokens, completionTokens int) float64 {
	pricing, ok := c.pricing[model]
	if !ok {
		// Try the base model name (API may return dated snapshots).
		// Longest prefix wins so gpt-4o-mini-* never matches gpt-4o.
		best := -1
		for name, p := range c.pricing {
			if strings.HasPrefix(model, name) && len(name) > best {
				pricing = p
				ok = true
				best = len(name)
			}
		}
	}
	if !ok {
		return 0
	}
	return float64(promptTokens)/1e6*pricing.InputPer1M +
		float64(completionTokens)/1e6*pricing.OutputPer1M
}

func isRetriableTransportError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"429", "rate limit",
		"500", "502", "503", "504",
		"timeout", "deadline exceeded",
		"connection refused", "connection reset", "EOF",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func classifyError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return "rate_limit"
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		return "auth"
	default:
		return "api_error"
	}
}
