// Package audio provides the playback side of a realtime voice session: PCM
// helpers for the upstream wire format and a scheduling [Queue] that paces
// decoded frames towards a single consumer.
package audio

import "time"

// The upstream realtime service streams PCM16, mono, 24 kHz.
const (
	SampleRate     = 24000
	BytesPerSample = 2
	Channels       = 1
)

// Duration returns the playback time of a PCM16 buffer at the wire format's
// sample rate.
func Duration(pcm []byte) time.Duration {
	samples := len(pcm) / BytesPerSample
	return time.Duration(samples) * time.Second / SampleRate
}

// Sink accepts decoded PCM16 buffers for playback scheduling. Implementations
// must not block the caller: the orchestrator hands frames over from its
// event loop.
type Sink interface {
	// Play schedules one PCM16 buffer for playback.
	Play(pcm []byte) error

	// Played reports the total duration of audio scheduled so far.
	Played() time.Duration

	// Close releases the sink. Idempotent.
	Close() error
}
