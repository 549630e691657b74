package peer

import "sync"

// Pipe returns two connected in-memory data channels: everything sent on one
// arrives, in order, on the other's Recv channel. Closing either end closes
// both directions. Used in tests and loopback setups.
func Pipe() (a, b DataChannel) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	shared := &pipeState{}
	return &pipeEnd{out: ab, in: ba, state: shared}, &pipeEnd{out: ba, in: ab, state: shared}
}

type pipeState struct {
	mu     sync.Mutex
	closed bool
}

type pipeEnd struct {
	out   chan []byte
	in    chan []byte
	state *pipeState
}

func (p *pipeEnd) Send(data []byte) error {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	if p.state.closed {
		return errPipeClosed
	}
	// Copy so senders can reuse their buffer.
	buf := make([]byte, len(data))
	copy(buf, data)
	select {
	case p.out <- buf:
		return nil
	default:
		// Full buffer: drop rather than block, mirroring a congested data
		// channel.
		return nil
	}
}

func (p *pipeEnd) Recv() <-chan []byte { return p.in }

func (p *pipeEnd) Close() error {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	if p.state.closed {
		return nil
	}
	p.state.closed = true
	close(p.out)
	close(p.in)
	return nil
}

var errPipeClosed = pipeClosedError{}

type pipeClosedError struct{}

func (pipeClosedError) Error() string { return "peer: pipe closed" }
