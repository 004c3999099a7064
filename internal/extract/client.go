package extract

import (
	"context"
)

// Client defines the interface for extraction model providers.
type Client interface {
	// Complete sends a prompt to the model and returns the raw response
	// text. Transport-level failures that are worth retrying are reported
	// as retryable errors; everything else is terminal.
	Complete(ctx context.Context, prompt string) (string, error)
}
