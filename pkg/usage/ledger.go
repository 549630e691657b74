package usage

import "time"

// Entry is the cumulative usage ledger for one session. The zero value is a
// valid empty ledger.
//
// Invariants maintained by [Entry.Apply]:
//   - the aggregate counters equal the sum of their modality breakdown,
//   - no counter ever decreases,
//   - Cost is always the [Pricing.Cost] of the current counters and never
//     drifts from them.
//
// Entry is a value type: Apply and the other mutators return a new Entry,
// which keeps accumulation trivially testable and order-independent.
type Entry struct {
	// Aggregate counters.
	TokensInput  int64
	TokensOutput int64
	TokensCached int64

	// Per-modality breakdown.
	TextInput   int64
	TextOutput  int64
	TextCached  int64
	AudioInput  int64
	AudioOutput int64
	AudioCached int64

	// Per-occurrence counters for flat pricing overheads.
	ToolCalls      int64
	RetrievalCalls int64

	// Wall-clock accounting, finalized on disconnect.
	SessionSeconds float64
	AudioSeconds   float64

	// StartTime is when the upstream session was established.
	StartTime time.Time

	// Cost is derived from the counters above; never set independently.
	Cost Cost
}

// NewEntry returns a zeroed ledger whose cost reflects the fixed session and
// connection overheads of pricing.
func NewEntry(startTime time.Time, pricing Pricing) Entry {
	e := Entry{StartTime: startTime}
	e.Cost = pricing.Cost(e)
	return e
}

// Apply folds an incremental usage report into the ledger and reprices it.
// Every delta field is added to the corresponding counter; missing fields
// count as zero. Apply never decrements anything.
func (e Entry) Apply(r Report, pricing Pricing) Entry {
	cachedText, cachedAudio := r.cachedSplit()

	e.TextInput += r.textInput()
	e.AudioInput += r.audioInput()
	e.TextOutput += r.textOutput()
	e.AudioOutput += r.audioOutput()
	e.TextCached += cachedText
	e.AudioCached += cachedAudio

	e.TokensInput = e.TextInput + e.AudioInput
	e.TokensOutput = e.TextOutput + e.AudioOutput
	e.TokensCached = e.TextCached + e.AudioCached

	e.Cost = pricing.Cost(e)
	return e
}

// AddToolCall records one dispatched tool call. Calls to a recognized
// retrieval tool additionally bump the retrieval counter, which is billed at
// its own flat rate.
func (e Entry) AddToolCall(retrieval bool, pricing Pricing) Entry {
	e.ToolCalls++
	if retrieval {
		e.RetrievalCalls++
	}
	e.Cost = pricing.Cost(e)
	return e
}

// Finalize stamps the session duration and audio playback time. Called once
// from disconnect; durations only ever grow.
func (e Entry) Finalize(sessionSeconds, audioSeconds float64, pricing Pricing) Entry {
	if sessionSeconds > e.SessionSeconds {
		e.SessionSeconds = sessionSeconds
	}
	if audioSeconds > e.AudioSeconds {
		e.AudioSeconds = audioSeconds
	}
	e.Cost = pricing.Cost(e)
	return e
}
