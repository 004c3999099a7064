package extract

import (
	"context"
	"fmt"
	"strings"
)

// NewClient creates an extraction model client based on the provided
// configuration.
func NewClient(ctx context.Context, cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		return newGeminiClient(ctx, cfg)
	case "openai":
		return newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported extraction provider: %s", cfg.Provider)
	}
}
