package provider

import "github.com/tidwall/gjson"

// ParseUsage extracts token usage from a raw provider payload. Providers
// disagree on field names (Anthropic uses usage.input_tokens, OpenAI uses
// usage.prompt_tokens, transcription endpoints report duration instead), so
// extraction is tolerant: the first matching field wins, absent fields
// stay zero.
func ParseUsage(raw []byte) Usage {
	var u Usage
	if len(raw) == 0 {
		return u
	}

	body := string(raw)

	for _, path := range []string{"usage.input_tokens", "usage.prompt_tokens"} {
		if v := gjson.Get(body, path); v.Exists() {
			u.InputTokens = int(v.Int())
			break
		}
	}
	for _, path := range []string{"usage.output_tokens", "usage.completion_tokens"} {
		if v := gjson.Get(body, path); v.Exists() {
			u.OutputTokens = int(v.Int())
			break
		}
	}

	if v := gjson.Get(body, "usage.cache_creation_input_tokens"); v.Exists() {
		u.CacheCreationTokens = int(v.Int())
	}
	if v := gjson.Get(body, "usage.cache_read_input_tokens"); v.Exists() {
		u.CacheReadTokens = int(v.Int())
	}

	if v := gjson.Get(body, "usage.cost_usd"); v.Exists() {
		cost := v.Float()
		u.CostUSD = &cost
	}

	return u
}

// ParseSegments extracts transcription segments from a raw payload, if any.
func ParseSegments(raw []byte) []Segment {
	if len(raw) == 0 {
		return nil
	}

	result := gjson.GetBytes(raw, "segments")
	if !result.IsArray() {
		return nil
	}

	var segs []Segment
	result.ForEach(func(_, seg gjson.Result) bool {
		segs = append(segs, Segment{
			Start: seg.Get("start").Float(),
			End:   seg.Get("end").Float(),
			Text:  seg.Get("text").String(),
		})
		return true
	})
	return segs
}
