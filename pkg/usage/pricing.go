package usage

// Pricing holds per-million-token rates (USD) for the six billable token
// buckets plus flat per-occurrence and per-session overheads. The active
// model is determined at runtime by server configuration fetched at
// connection time, so rates are data, not constants: swap the whole struct
// to change models mid-deployment.
type Pricing struct {
	Model string

	// Per 1M tokens.
	TextInput   float64
	TextCached  float64
	TextOutput  float64
	AudioInput  float64
	AudioCached float64
	AudioOutput float64

	// Flat per-occurrence overheads.
	PerToolCall  float64
	PerRetrieval float64

	// Fixed overheads charged once per session regardless of activity.
	SessionOverhead    float64
	ConnectionOverhead float64
}

// PricingFull is the full-size realtime model.
var PricingFull = Pricing{
	Model:              "full",
	TextInput:          5.00,
	TextCached:         0.50,
	TextOutput:         20.00,
	AudioInput:         40.00,
	AudioCached:        2.50,
	AudioOutput:        80.00,
	PerToolCall:        0.002,
	PerRetrieval:       0.0025,
	SessionOverhead:    0.001,
	ConnectionOverhead: 0.0005,
}

// PricingMini is the smaller, cheaper realtime model.
var PricingMini = Pricing{
	Model:              "mini",
	TextInput:          0.60,
	TextCached:         0.06,
	TextOutput:         2.40,
	AudioInput:         10.00,
	AudioCached:        0.30,
	AudioOutput:        20.00,
	PerToolCall:        0.002,
	PerRetrieval:       0.0025,
	SessionOverhead:    0.001,
	ConnectionOverhead: 0.0005,
}

// PricingFor maps a model tag to its pricing preset. Unknown tags fall back
// to the mini model so a misconfigured deployment under-reports rather than
// alarms users with inflated estimates.
func PricingFor(model string) Pricing {
	switch model {
	case "full", "gpt-realtime":
		return PricingFull
	}
	return PricingMini
}

// Cost is the priced breakdown of a ledger entry. Total is the sum of all
// other fields.
type Cost struct {
	TextInput   float64
	TextCached  float64
	TextOutput  float64
	AudioInput  float64
	AudioCached float64
	AudioOutput float64

	ToolOverhead      float64
	RetrievalOverhead float64
	FixedOverhead     float64

	Total float64
}

const perMillion = 1_000_000

// Cost prices e under p. It is a pure function of the counters: two entries
// with identical counters always price identically, regardless of how many
// Apply steps produced them.
//
// Billable input for a modality is max(0, input-cached): cached tokens are
// billed at their own lower rate instead. The cached bucket itself is billed
// on the full reported cached quantity even when that exceeds the input
// count.
func (p Pricing) Cost(e Entry) Cost {
	billable := func(total, cached int64) float64 {
		n := total - cached
		if n < 0 {
			n = 0
		}
		return float64(n)
	}

	c := Cost{
		TextInput:   billable(e.TextInput, e.TextCached) * p.TextInput / perMillion,
		TextCached:  float64(e.TextCached) * p.TextCached / perMillion,
		TextOutput:  float64(e.TextOutput) * p.TextOutput / perMillion,
		AudioInput:  billable(e.AudioInput, e.AudioCached) * p.AudioInput / perMillion,
		AudioCached: float64(e.AudioCached) * p.AudioCached / perMillion,
		AudioOutput: float64(e.AudioOutput) * p.AudioOutput / perMillion,

		ToolOverhead:      float64(e.ToolCalls) * p.PerToolCall,
		RetrievalOverhead: float64(e.RetrievalCalls) * p.PerRetrieval,
		FixedOverhead:     p.SessionOverhead + p.ConnectionOverhead,
	}
	c.Total = c.TextInput + c.TextCached + c.TextOutput +
		c.AudioInput + c.AudioCached + c.AudioOutput +
		c.ToolOverhead + c.RetrievalOverhead + c.FixedOverhead
	return c
}
