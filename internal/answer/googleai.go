package answer

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

// GoogleAIConfig holds generation provider configuration.
type GoogleAIConfig struct {
	// APIKey authorizes Gemini API calls. Required.
	APIKey string `koanf:"api_key"`

	// Model is the generation model. Default gemini-1.5-flash.
	Model string `koanf:"model"`

	// Temperature controls sampling. Low by default for factual answers.
	Temperature float64 `koanf:"temperature"`
}

// ApplyDefaults sets default values for unset fields.
func (c *GoogleAIConfig) ApplyDefaults() {
	if c.Model == "" {
		c.Model = "gemini-1.5-flash"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.3
	}
}

// Validate checks required fields.
func (c *GoogleAIConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("google ai api key required")
	}
	return nil
}

// GoogleAIGenerator generates text through the Gemini API.
type GoogleAIGenerator struct {
	llm    *googleai.GoogleAI
	config GoogleAIConfig
}

// NewGoogleAIGenerator creates a Gemini-backed generator.
func NewGoogleAIGenerator(ctx context.Context, cfg GoogleAIConfig) (*GoogleAIGenerator, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating googleai client: %w", err)
	}

	return &GoogleAIGenerator{llm: llm, config: cfg}, nil
}

// Generate produces a completion for prompt.
func (g *GoogleAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	text, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt,
		llms.WithTemperature(g.config.Temperature),
	)
	if err != nil {
		return "", fmt.Errorf("generating completion: %w", err)
	}
	return text, nil
}

var _ Generator = (*GoogleAIGenerator)(nil)
