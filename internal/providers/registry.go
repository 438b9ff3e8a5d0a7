package providers

import (
	"fmt"
	"log/slog"
	"sync"
)

// LLMProviderConfig is the resolved configuration for one LLM provider.
type LLMProviderConfig struct {
	Type           string
	Model          string
	APIKey         string
	CallsPerMinute float64
	Enabled        bool
}

// OCRProviderConfig is the resolved configuration for one OCR provider.
type OCRProviderConfig struct {
	Type           string
	Languages      []string
	DPI            int
	CallsPerMinute float64
	Enabled        bool
}

// RegistryConfig describes the providers to instantiate.
type RegistryConfig struct {
	LLMProviders map[string]LLMProviderConfig
	OCRProviders map[string]OCRProviderConfig
}

// Registry holds references to LLM clients and OCR providers with
// thread-safe access.
type Registry struct {
	mu           sync.RWMutex
	llmClients   map[string]LLMClient
	ocrProviders map[string]OCRProvider
	logger       *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		llmClients:   make(map[string]LLMClient),
		ocrProviders: make(map[string]OCRProvider),
		logger:       logger,
	}
}

// BuildRegistry instantiates all enabled providers from config.
func BuildRegistry(cfg RegistryConfig, logger *slog.Logger) (*Registry, error) {
	r := NewRegistry(logger)

	for name, llm := range cfg.LLMProviders {
		if !llm.Enabled {
			continue
		}
		switch llm.Type {
		case "openai":
			r.RegisterLLM(name, NewOpenAIClient(OpenAIConfig{
				APIKey:         llm.APIKey,
				Model:          llm.Model,
				CallsPerMinute: llm.CallsPerMinute,
			}))
		case "mock":
			r.RegisterLLM(name, NewMockClient())
		default:
			return nil, fmt.Errorf("unknown LLM provider type %q for %s", llm.Type, name)
		}
	}

	for name, ocr := range cfg.OCRProviders {
		if !ocr.Enabled {
			continue
		}
		switch ocr.Type {
		case "tesseract":
			r.RegisterOCR(name, NewTesseractProvider(TesseractConfig{
				Languages:      ocr.Languages,
				DPI:            ocr.DPI,
				CallsPerMinute: ocr.CallsPerMinute,
			}))
		case "mock":
			r.RegisterOCR(name, NewMockOCR())
		default:
			return nil, fmt.Errorf("unknown OCR provider type %q for %s", ocr.Type, name)
		}
	}

	return r, nil
}

// RegisterLLM registers an LLM client by name.
func (r *Registry) RegisterLLM(name string, client LLMClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llmClients[name] = client
	r.logger.Info("registered LLM client", "name", name)
}

// RegisterOCR registers an OCR provider by name.
func (r *Registry) RegisterOCR(name string, provider OCRProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ocrProviders[name] = provider
	r.logger.Info("registered OCR provider", "name", name)
}

// GetLLM returns an LLM client by name.
func (r *Registry) GetLLM(name string) (LLMClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.llmClients[name]
	if !ok {
		return nil, fmt.Errorf("LLM client not found: %s", name)
	}
	return client, nil
}

// GetOCR returns an OCR provider by name.
func (r *Registry) GetOCR(name string) (OCRProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.ocrProviders[name]
	if !ok {
		return nil, fmt.Errorf("OCR provider not found: %s", name)
	}
	return provider, nil
}

// LLMNames returns the registered LLM client names.
func (r *Registry) LLMNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.llmClients))
	for name := range r.llmClients {
		names = append(names, name)
	}
	return names
}

// OCRNames returns the registered OCR provider names.
func (r *Registry) OCRNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ocrProviders))
	for name := range r.ocrProviders {
		names = append(names, name)
	}
	return names
}
