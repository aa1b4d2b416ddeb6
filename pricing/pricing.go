// Package pricing maps model identifiers to USD costs.
//
// DESIGN: Exact model ids are tried first, then family prefixes (longest
// prefix wins), then a deliberately expensive default so unknown models can
// never silently overspend under a budget cap.
package pricing

import "strings"

// Model holds per-million-token pricing for a text model.
type Model struct {
	InputPerMTok  float64 // USD per million input tokens
	OutputPerMTok float64 // USD per million output tokens
}

var exact = map[string]Model{
	// Claude 4.x (dated)
	"claude-opus-4-6":            {InputPerMTok: 5, OutputPerMTok: 25},
	"claude-opus-4-0-20250514":   {InputPerMTok: 15, OutputPerMTok: 75},
	"claude-sonnet-4-5-20250929": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-sonnet-4-0-20250514": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-haiku-4-5-20251001":  {InputPerMTok: 1, OutputPerMTok: 5},

	// Claude short aliases
	"claude-sonnet-4-5": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-sonnet-4-0": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-haiku-4-5":  {InputPerMTok: 1, OutputPerMTok: 5},

	// Claude 3.x
	"claude-3-5-sonnet-20241022": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-3-5-haiku-20241022":  {InputPerMTok: 1, OutputPerMTok: 5},
	"claude-3-haiku-20240307":    {InputPerMTok: 0.25, OutputPerMTok: 1.25},

	// OpenAI
	"gpt-4o":                 {InputPerMTok: 2.5, OutputPerMTok: 10},
	"gpt-4o-2024-11-20":      {InputPerMTok: 2.5, OutputPerMTok: 10},
	"gpt-4o-mini":            {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	"gpt-4o-mini-2024-07-18": {InputPerMTok: 0.15, OutputPerMTok: 0.60},

	// Audio / transcription
	"whisper-1":   {InputPerMTok: 0, OutputPerMTok: 0},
	"tts-1":       {InputPerMTok: 15, OutputPerMTok: 0},
	"tts-1-hd":    {InputPerMTok: 30, OutputPerMTok: 0},
	"gpt-4o-mini-tts": {InputPerMTok: 0.6, OutputPerMTok: 12},
}

// fallback is used for unknown models (conservative to prevent silent overspend).
var fallback = Model{InputPerMTok: 15, OutputPerMTok: 75}

// families maps model family prefixes to pricing. Lookup is
// longest-prefix-first so e.g. "claude-opus" ($15) cannot shadow
// "claude-opus-4-6" ($5).
var families = map[string]Model{
	// Version-specific families (must win over broad families)
	"claude-opus-4-6":   {InputPerMTok: 5, OutputPerMTok: 25},
	"claude-opus-4-0":   {InputPerMTok: 15, OutputPerMTok: 75},
	"claude-sonnet-4-5": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-sonnet-4-0": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-haiku-4-5":  {InputPerMTok: 1, OutputPerMTok: 5},
	"claude-3-5-sonnet": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-3-5-haiku":  {InputPerMTok: 1, OutputPerMTok: 5},
	"claude-3-haiku":    {InputPerMTok: 0.25, OutputPerMTok: 1.25},

	// Broad families (fallback)
	"claude-opus":   {InputPerMTok: 15, OutputPerMTok: 75},
	"claude-sonnet": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-haiku":  {InputPerMTok: 1, OutputPerMTok: 5},
	"gpt-4o-mini":   {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	"gpt-4o":        {InputPerMTok: 2.5, OutputPerMTok: 10},
	"gpt-4":         {InputPerMTok: 10, OutputPerMTok: 30},
	"whisper":       {InputPerMTok: 0, OutputPerMTok: 0},
}

// imagePerRequest maps image model ids to flat USD cost per generated image.
var imagePerRequest = map[string]float64{
	"dall-e-3":    0.04,
	"dall-e-2":    0.02,
	"gpt-image-1": 0.04,
}

// For returns pricing for a model: exact match, then longest family prefix,
// then the conservative default.
func For(model string) Model {
	if p, ok := exact[model]; ok {
		return p
	}

	bestPrefix := ""
	var best Model
	for prefix, p := range families {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix = prefix
			best = p
		}
	}
	if bestPrefix != "" {
		return best
	}

	return fallback
}

// ImageCost returns the flat per-image cost for an image model, multiplied
// by the image count. Unknown image models fall back to the most expensive
// known flat rate.
func ImageCost(model string, count int) float64 {
	if count <= 0 {
		count = 1
	}
	if c, ok := imagePerRequest[model]; ok {
		return c * float64(count)
	}
	return 0.04 * float64(count)
}

// Cost computes the USD cost of a call from token counts.
func Cost(inputTokens, outputTokens int, m Model) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * m.InputPerMTok
	outputCost := float64(outputTokens) / 1_000_000 * m.OutputPerMTok
	return inputCost + outputCost
}

// CostWithCache computes cost accounting for Anthropic prompt cache pricing.
// input tokens are the non-cached count; cache creation bills at 1.25x input
// rate and cache reads at 0.1x.
func CostWithCache(inputTokens, outputTokens, cacheCreationTokens, cacheReadTokens int, m Model) float64 {
	cacheWrite := float64(cacheCreationTokens) / 1_000_000 * m.InputPerMTok * 1.25
	cacheRead := float64(cacheReadTokens) / 1_000_000 * m.InputPerMTok * 0.1
	return Cost(inputTokens, outputTokens, m) + cacheWrite + cacheRead
}
