package definitions

import "time"

// ModelConfig points the llm policy at an OpenAI-compatible endpoint.
type ModelConfig struct {
	BaseURL   string
	ModelName string
	APIKey    string
	// Lang selects the language of the metric log labels.
	Lang string

	MaxTokens        int
	Temperature      float32
	TopP             float32
	FrequencyPenalty float32

	// RequestTimeout bounds one streamed completion; zero leaves it to ctx.
	RequestTimeout time.Duration
}
