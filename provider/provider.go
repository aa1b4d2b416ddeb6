// Package provider defines the contract between the execution pipeline and
// the LLM provider clients that actually perform API calls.
//
// DESIGN: Provider clients live outside this module. The pipeline only needs
// a single capability from them: Invoke(model, request) -> response or error.
// Response fields that only some modalities produce (segments, language,
// audio duration) are plain optional fields, not runtime capability probes.
package provider

import "context"

// ExecutionType identifies the modality of an invocation.
type ExecutionType string

const (
	TypeChat          ExecutionType = "chat"
	TypeImage         ExecutionType = "image"
	TypeAudio         ExecutionType = "audio"
	TypeTranscription ExecutionType = "transcription"
)

// Request is the normalized request handed to a provider client.
type Request struct {
	// Input is the primary payload: prompt text, image description,
	// text to synthesize, or a reference to audio to transcribe.
	Input string

	// Params carries resolved modality-specific parameters such as
	// voice, size, quality, or language.
	Params map[string]string

	// Stream requests an incremental response. Streamed responses are
	// never cached.
	Stream bool

	// Metadata is pass-through diagnostic data (trace ids and similar).
	// It must never influence the provider output.
	Metadata map[string]string
}

// Usage holds token accounting reported by (or estimated for) a response.
type Usage struct {
	InputTokens  int
	OutputTokens int

	// CacheCreationTokens and CacheReadTokens are provider-side prompt
	// cache counts (Anthropic-style). Zero for providers without them.
	CacheCreationTokens int
	CacheReadTokens     int

	// CostUSD is the provider-reported cost, when the provider reports
	// one. Nil means the pipeline derives cost from the pricing table.
	CostUSD *float64
}

// Segment is a timed transcription fragment.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Response is the normalized result of a provider call.
type Response struct {
	// Content is the primary output: completion text, image URL or
	// base64 payload, audio reference, or transcript text.
	Content string

	// Model is the model that actually served the request.
	Model string

	Usage Usage

	// Raw is the unparsed provider payload, kept for usage extraction
	// and observability. May be nil for synthetic responses.
	Raw []byte

	// Transcription-only fields.
	Segments []Segment
	Language string

	// DurationSeconds is the audio duration for audio/transcription calls.
	DurationSeconds float64
}

// Client performs the actual provider API call.
type Client interface {
	Invoke(ctx context.Context, model string, req *Request) (*Response, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, model string, req *Request) (*Response, error)

// Invoke implements Client.
func (f ClientFunc) Invoke(ctx context.Context, model string, req *Request) (*Response, error) {
	return f(ctx, model, req)
}
