package audio

import (
	"fmt"
	"sync"
	"time"
)

// Compile-time assertion that Queue satisfies Sink.
var _ Sink = (*Queue)(nil)

const defaultQueueDepth = 64

// Consumer receives scheduled frames in playback order.
type Consumer func(pcm []byte)

// Option configures a [Queue].
type Option func(*Queue)

// WithDepth sets the frame buffer depth. When the buffer is full, Play drops
// the frame instead of blocking the event loop. Default 64.
func WithDepth(n int) Option {
	return func(q *Queue) { q.depth = n }
}

// Queue is a [Sink] that forwards frames to a single consumer on a dedicated
// goroutine, preserving arrival order, and tracks the cumulative scheduled
// playback time. The queue is exclusively owned by one orchestrator for the
// session's lifetime; there are no concurrent producers.
type Queue struct {
	depth    int
	consumer Consumer

	mu        sync.Mutex
	scheduled time.Duration
	closed    bool

	frames chan []byte
	done   chan struct{}
}

// NewQueue starts a queue delivering to consumer.
func NewQueue(consumer Consumer, opts ...Option) *Queue {
	q := &Queue{depth: defaultQueueDepth, consumer: consumer}
	for _, o := range opts {
		o(q)
	}
	q.frames = make(chan []byte, q.depth)
	q.done = make(chan struct{})
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for pcm := range q.frames {
		q.consumer(pcm)
	}
}

// Play implements [Sink]. It never blocks: when the buffer is full the frame
// is dropped and an error returned so the caller can log it.
//
// The send happens under the mutex so that Close cannot close the frame
// channel between the closed check and the send.
func (q *Queue) Play(pcm []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("audio: queue closed")
	}

	select {
	case q.frames <- pcm:
		q.scheduled += Duration(pcm)
		return nil
	default:
		return fmt.Errorf("audio: queue full, dropped %v frame", Duration(pcm))
	}
}

// Played implements [Sink].
func (q *Queue) Played() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.scheduled
}

// Close implements [Sink]. It stops the consumer goroutine after the buffer
// drains. Idempotent.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	close(q.frames)
	<-q.done
	return nil
}
