package provider

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenEstimateRatio is the approximate number of characters per token,
// used when no tokenizer is available for the model.
const tokenEstimateRatio = 4

var (
	encodingMu    sync.Mutex
	encodingCache = map[string]*tiktoken.Tiktoken{}
)

// EstimateTokens returns an approximate token count for text under the given
// model. It uses the model's tiktoken encoding when one exists and falls back
// to a character-ratio estimate for models without a published tokenizer.
// Estimates feed budget forecasting only; billing always uses the counts the
// provider reports.
func EstimateTokens(model, text string) int {
	if text == "" {
		return 0
	}

	if enc := encodingFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (len(text) + tokenEstimateRatio - 1) / tokenEstimateRatio
}

func encodingFor(model string) *tiktoken.Tiktoken {
	encodingMu.Lock()
	defer encodingMu.Unlock()

	if enc, ok := encodingCache[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Unknown model: cache the miss so we don't retry on every call.
		encodingCache[model] = nil
		return nil
	}
	encodingCache[model] = enc
	return enc
}
