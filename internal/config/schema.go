package config

// Config holds folio configuration.
// Stored at: ~/.folio/config.yaml
type Config struct {
	LLMProviders map[string]LLMProviderCfg `mapstructure:"llm_providers" yaml:"llm_providers"`
	OCRProviders map[string]OCRProviderCfg `mapstructure:"ocr_providers" yaml:"ocr_providers"`
	Defaults     DefaultsCfg               `mapstructure:"defaults" yaml:"defaults"`
	Checkpoint   CheckpointCfg             `mapstructure:"checkpoint" yaml:"checkpoint"`
}

// LLMProviderCfg configures an LLM provider.
type LLMProviderCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"`             // "openai", "mock"
	Model     string  `mapstructure:"model" yaml:"model"`           // Model name
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"`       // API key (supports ${ENV_VAR} syntax)
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per minute
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
}

// OCRProviderCfg configures an OCR provider.
type OCRProviderCfg struct {
	Type      string   `mapstructure:"type" yaml:"type"`             // "tesseract", "mock"
	Languages []string `mapstructure:"languages" yaml:"languages"`   // Tesseract language codes
	DPI       int      `mapstructure:"dpi" yaml:"dpi"`               // Source image DPI hint
	RateLimit float64  `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per minute (0 = unthrottled default)
	Enabled   bool     `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default provider selections and pipeline tuning.
type DefaultsCfg struct {
	LLMProvider string `mapstructure:"llm_provider" yaml:"llm_provider"` // Default LLM provider
	OCRProvider string `mapstructure:"ocr_provider" yaml:"ocr_provider"` // Default OCR provider
	MaxWorkers  int    `mapstructure:"max_workers" yaml:"max_workers"`   // Max concurrent workers
	WindowSize  int    `mapstructure:"window_size" yaml:"window_size"`   // Pages per structure batch
	Overlap     int    `mapstructure:"overlap" yaml:"overlap"`           // Pages shared between adjacent batches
}

// CheckpointCfg tunes checkpoint persistence cadence.
type CheckpointCfg struct {
	PersistEvery int     `mapstructure:"persist_every" yaml:"persist_every"`   // Persist after N completions
	CostFlushUSD float64 `mapstructure:"cost_flush_usd" yaml:"cost_flush_usd"` // Persist when unflushed cost reaches this
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"openai": {
				Type:      "openai",
				Model:     "gpt-4o-mini",
				APIKey:    "${OPENAI_API_KEY}",
				RateLimit: 300.0,
				Enabled:   true,
			},
		},
		OCRProviders: map[string]OCRProviderCfg{
			"tesseract": {
				Type:      "tesseract",
				Languages: []string{"eng"},
				DPI:       300,
				Enabled:   true,
			},
		},
		Defaults: DefaultsCfg{
			LLMProvider: "openai",
			OCRProvider: "tesseract",
			MaxWorkers:  10,
			WindowSize:  4,
			Overlap:     1,
		},
		Checkpoint: CheckpointCfg{
			PersistEvery: 10,
			CostFlushUSD: 0.50,
		},
	}
}

// GetLLMProvider returns an LLM provider config by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderCfg, bool) {
	cfg, ok := c.LLMProviders[name]
	return cfg, ok
}

// GetOCRProvider returns an OCR provider config by name.
func (c *Config) GetOCRProvider(name string) (OCRProviderCfg, bool) {
	cfg, ok := c.OCRProviders[name]
	return cfg, ok
}

// EnabledLLMProviders returns all enabled LLM providers.
func (c *Config) EnabledLLMProviders() map[string]LLMProviderCfg {
	result := make(map[string]LLMProviderCfg)
	for name, cfg := range c.LLMProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// EnabledOCRProviders returns all enabled OCR providers.
func (c *Config) EnabledOCRProviders() map[string]OCRProviderCfg {
	result := make(map[string]OCRProviderCfg)
	for name, cfg := range c.OCRProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
