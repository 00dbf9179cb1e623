// Package llm provides the generative model client used as the classification oracle.
package llm

// ModelTier selects a model by the kind of oracle call
type ModelTier string

const (
	// TierLite serves first-attempt evidence extraction, the highest-volume call
	TierLite ModelTier = "lite"
	// TierStandard serves strict retries and cluster matching
	TierStandard ModelTier = "standard"
)

// Provider represents an LLM provider
type Provider string

// ProviderGemini is the Google Gemini provider
const ProviderGemini Provider = "gemini"

// Config holds the oracle's model choices. Classification wants reproducible answers, so
// Temperature defaults to 0.
type Config struct {
	Provider        Provider
	Models          map[ModelTier]string
	Temperature     float32
	MaxOutputTokens int32
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.0-flash",
			TierStandard: "gemini-2.5-flash",
		},
		Temperature:     0,
		MaxOutputTokens: 8192,
	}
}

// GetModel returns the model for tier, falling back to the standard tier.
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok && model != "" {
		return model
	}
	return c.Models[TierStandard]
}

// WithModel returns a copy of c using model for tier. An empty model returns c unchanged.
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	if model == "" {
		return c
	}
	out := *c
	out.Models = make(map[ModelTier]string, len(c.Models)+1)
	for k, v := range c.Models {
		out.Models[k] = v
	}
	out.Models[tier] = model
	return &out
}
