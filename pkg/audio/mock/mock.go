// Package mock provides a recording [audio.Sink] for tests.
package mock

import (
	"sync"
	"time"

	"github.com/MrWong99/aurelay/pkg/audio"
)

var _ audio.Sink = (*Sink)(nil)

// Sink records every frame passed to Play.
type Sink struct {
	// PlayErr, when non-nil, is returned by Play.
	PlayErr error

	mu     sync.Mutex
	frames [][]byte
	played time.Duration
	closed bool
}

// New returns an empty recording sink.
func New() *Sink { return &Sink{} }

// Play implements audio.Sink.
func (s *Sink) Play(pcm []byte) error {
	if s.PlayErr != nil {
		return s.PlayErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	s.frames = append(s.frames, buf)
	s.played += audio.Duration(pcm)
	return nil
}

// Played implements audio.Sink.
func (s *Sink) Played() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.played
}

// Close implements audio.Sink.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Frames returns a copy of all recorded frames in order.
func (s *Sink) Frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.frames))
	copy(out, s.frames)
	return out
}

// Closed reports whether Close was called.
func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
