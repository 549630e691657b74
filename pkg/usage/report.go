// Package usage implements the cumulative token/cost accounting for a
// realtime voice session.
//
// The upstream service reports usage incrementally: each completed response
// carries a [Report] snapshot covering that response only. Reports are folded
// into an [Entry] with [Entry.Apply], which adds every counter (never
// replaces) and recomputes the estimated cost under the active [Pricing]
// model. All counters are therefore monotonically non-decreasing for the life
// of a session.
package usage

// Report is the usage payload as it appears on the wire, typically nested
// under a response.done / response.completed event. All fields are optional;
// missing fields are treated as zero. The JSON shape must be preserved
// exactly for compatibility with the upstream service.
type Report struct {
	InputTokens  int64 `json:"input_tokens,omitempty"`
	OutputTokens int64 `json:"output_tokens,omitempty"`
	TotalTokens  int64 `json:"total_tokens,omitempty"`

	// CachedTokens is the aggregate cached count. Some upstream versions
	// report it here, others only inside InputTokenDetails.
	CachedTokens int64 `json:"cached_tokens,omitempty"`

	InputTokenDetails  *TokenDetails `json:"input_token_details,omitempty"`
	OutputTokenDetails *TokenDetails `json:"output_token_details,omitempty"`
}

// TokenDetails splits a direction's token count by modality. Cached counts
// are nested one level deeper under CachedTokensDetails; output directions
// never carry them.
type TokenDetails struct {
	TextTokens   int64 `json:"text_tokens,omitempty"`
	AudioTokens  int64 `json:"audio_tokens,omitempty"`
	CachedTokens int64 `json:"cached_tokens,omitempty"`

	CachedTokensDetails *CachedDetails `json:"cached_tokens_details,omitempty"`
}

// CachedDetails splits a cached token count by modality.
type CachedDetails struct {
	TextTokens  int64 `json:"text_tokens,omitempty"`
	AudioTokens int64 `json:"audio_tokens,omitempty"`
}

// textInput returns the text-modality input tokens, falling back to the
// aggregate when no per-modality breakdown is present. With no breakdown the
// whole input count is attributed to text; audio-heavy sessions always carry
// the breakdown in practice.
func (r Report) textInput() int64 {
	if r.InputTokenDetails != nil {
		return r.InputTokenDetails.TextTokens
	}
	return r.InputTokens
}

func (r Report) audioInput() int64 {
	if r.InputTokenDetails != nil {
		return r.InputTokenDetails.AudioTokens
	}
	return 0
}

func (r Report) textOutput() int64 {
	if r.OutputTokenDetails != nil {
		return r.OutputTokenDetails.TextTokens
	}
	return r.OutputTokens
}

func (r Report) audioOutput() int64 {
	if r.OutputTokenDetails != nil {
		return r.OutputTokenDetails.AudioTokens
	}
	return 0
}

// cachedSplit returns the (text, audio) cached input counts. Preference
// order: the nested cached_tokens_details breakdown, then the direction-level
// cached_tokens attributed to text, then the top-level aggregate.
func (r Report) cachedSplit() (text, audio int64) {
	if d := r.InputTokenDetails; d != nil {
		if d.CachedTokensDetails != nil {
			return d.CachedTokensDetails.TextTokens, d.CachedTokensDetails.AudioTokens
		}
		if d.CachedTokens > 0 {
			return d.CachedTokens, 0
		}
	}
	if r.CachedTokens > 0 {
		return r.CachedTokens, 0
	}
	return 0, 0
}
