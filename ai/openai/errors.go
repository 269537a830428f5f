package openai

import (
	"context"
	"errors"

	"github.com/poiesic/memvault/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

var (
	errEmptyResponse = errors.New("model returned no content")
	errNoFile        = errors.New("transcription needs a file")
)

// classify maps a langchaingo error onto ai.Transient or ai.Permanent.
// Cancellation is passed through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ai.Transient(err)
	}
	mapped := openai.MapError(err)
	switch {
	case llms.IsRateLimitError(mapped),
		llms.IsTimeoutError(mapped),
		llms.IsProviderUnavailableError(mapped):
		return ai.Transient(mapped)
	case llms.IsCanceledError(mapped):
		return err
	}
	return ai.Permanent(mapped)
}
