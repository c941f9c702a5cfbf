package sensormux

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"
)

// MockPort implements BridgePorter over an in-memory buffer for dev mode and
// tests. Reads drain the buffer; writes are captured for inspection.
type MockPort struct {
	mu         sync.Mutex
	readBuf    *bytes.Buffer
	writeBuf   *bytes.Buffer
	readClosed bool
}

// NewMockPort creates a MockPort preloaded with the given bytes.
func NewMockPort(data []byte) *MockPort {
	return &MockPort{
		readBuf:  bytes.NewBuffer(data),
		writeBuf: &bytes.Buffer{},
	}
}

func (p *MockPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readClosed || p.readBuf.Len() == 0 {
		return 0, io.EOF
	}
	return p.readBuf.Read(b)
}

func (p *MockPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeBuf.Write(b)
}

func (p *MockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readClosed = true
	return nil
}

// Written returns everything sent to the port so far.
func (p *MockPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeBuf.String()
}

// NewMockMux creates a Mux backed by a MockPort preloaded with fixture data.
func NewMockMux(fixture []byte) *Mux[*MockPort] {
	return NewMux(NewMockPort(fixture))
}

// ReplaySource loops fixture lines through an in-memory queue at a fixed
// cadence, for dev mode without hardware. It implements the same try-read
// contract as Mux.
type ReplaySource struct {
	lines    []string
	interval time.Duration
	pending  chan string
}

// NewReplaySource creates a ReplaySource emitting the given lines in order,
// wrapping around forever, one line per interval.
func NewReplaySource(lines []string, interval time.Duration) *ReplaySource {
	return &ReplaySource{
		lines:    lines,
		interval: interval,
		pending:  make(chan string, DefaultPendingDepth),
	}
}

// Run feeds lines until the context is cancelled.
func (r *ReplaySource) Run(ctx context.Context) error {
	if len(r.lines) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	i := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			select {
			case r.pending <- r.lines[i%len(r.lines)]:
			default:
			}
			i++
		}
	}
}

// TryReadLine returns the next pending line without blocking.
func (r *ReplaySource) TryReadLine() (string, bool) {
	select {
	case line := <-r.pending:
		return line, true
	default:
		return "", false
	}
}
