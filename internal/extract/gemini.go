package extract

import (
	"context"
	"fmt"

	"github.com/Veraticus/inward-bound/internal/common"
	"google.golang.org/genai"
)

// geminiClient implements the Client interface for the Gemini API.
type geminiClient struct {
	client *genai.Client
	model  string
}

// newGeminiClient creates a new Gemini API client. When cfg.APIKey is empty
// the SDK falls back to the GEMINI_API_KEY environment variable.
func newGeminiClient(ctx context.Context, cfg Config) (Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	return &geminiClient{client: client, model: model}, nil
}

// Complete sends an extraction request to Gemini and returns the raw
// response text.
func (c *geminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		// The SDK does not distinguish transient failures; treat the call
		// as retryable and let the retry budget bound it.
		return "", &common.RetryableError{Err: fmt.Errorf("gemini request failed: %w", err), Retryable: true}
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}

	return text, nil
}
