package realtime

import (
	"sync"
	"time"
)

// MarkName identifies a latency milestone within a session.
type MarkName string

const (
	MarkConnectRequested       MarkName = "connectRequested"
	MarkSessionCreated         MarkName = "sessionCreated"
	MarkFirstAudio             MarkName = "firstAudio"
	MarkSpeechStarted          MarkName = "speechStarted"
	MarkSpeechStopped          MarkName = "speechStopped"
	MarkToolCallDone           MarkName = "toolCallDone"
	MarkTranscriptionCompleted MarkName = "transcriptionCompleted"
)

// Mark is one recorded milestone. Marks are append-only: recorded once,
// never mutated.
type Mark struct {
	Name      MarkName      `json:"name"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// LatencyRecorder collects an ordered sequence of marks for one session and
// derives summary statistics from them. Safe for concurrent use: the
// transport read goroutine records while HTTP handlers read.
type LatencyRecorder struct {
	mu    sync.Mutex
	marks []Mark
	now   func() time.Time
}

// NewLatencyRecorder returns an empty recorder.
func NewLatencyRecorder() *LatencyRecorder {
	return &LatencyRecorder{now: time.Now}
}

// Record appends a mark named name at the current time.
func (r *LatencyRecorder) Record(name MarkName) {
	r.RecordDuration(name, 0)
}

// RecordDuration appends a mark carrying an explicit duration, for
// milestones that measure a span rather than an instant (e.g. a tool call's
// gateway round-trip).
func (r *LatencyRecorder) RecordDuration(name MarkName, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marks = append(r.marks, Mark{Name: name, Timestamp: r.now(), Duration: d})
}

// Marks returns a copy of all recorded marks in order.
func (r *LatencyRecorder) Marks() []Mark {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Mark, len(r.marks))
	copy(out, r.marks)
	return out
}

// first returns the earliest mark with the given name.
func (r *LatencyRecorder) first(name MarkName) (Mark, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.marks {
		if m.Name == name {
			return m, true
		}
	}
	return Mark{}, false
}

// TimeToFirstAudio returns the duration between the connect request and the
// first audio frame. The firstAudio mark is recorded on every audio delta,
// but only the earliest occurrence matters here.
func (r *LatencyRecorder) TimeToFirstAudio() (time.Duration, bool) {
	return r.Between(MarkConnectRequested, MarkFirstAudio)
}

// Between returns the duration between the first occurrences of from and to.
// Reports false when either mark is missing or they are out of order.
func (r *LatencyRecorder) Between(from, to MarkName) (time.Duration, bool) {
	a, ok := r.first(from)
	if !ok {
		return 0, false
	}
	b, ok := r.first(to)
	if !ok || b.Timestamp.Before(a.Timestamp) {
		return 0, false
	}
	return b.Timestamp.Sub(a.Timestamp), true
}

// Reset discards all marks. Called between sessions.
func (r *LatencyRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marks = nil
}
