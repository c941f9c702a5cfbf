// Package sensormux provides line sources for the motion pipeline: an
// abstraction over the serial radio bridge the sensor pods transmit through,
// plus mock and MQTT-backed equivalents. Every source buffers complete lines
// into a bounded queue and exposes a non-blocking try-read, so the ingestion
// scheduler can poll without ever waiting on I/O.
package sensormux

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrWriteFailed indicates a short write to the bridge port.
var ErrWriteFailed = fmt.Errorf("failed to write to bridge port")

// DefaultPendingDepth is the line buffer depth between the port reader
// goroutine and the scheduler. Deep enough to absorb bursts between ticks;
// the scheduler's backlog purge handles sustained overload.
const DefaultPendingDepth = 4096

// BridgePorter defines the minimal interface needed for a bridge port.
// This abstraction enables unit testing without real serial hardware.
type BridgePorter interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Mux reads newline-terminated pod reports from a single bridge port into a
// bounded queue and serialises command writes back to the port.
type Mux[T BridgePorter] struct {
	port      T
	pending   chan string
	commandMu sync.Mutex
	dropped   atomic.Int64
}

// NewMux creates a Mux over the given port.
func NewMux[T BridgePorter](port T) *Mux[T] {
	return &Mux[T]{
		port:    port,
		pending: make(chan string, DefaultPendingDepth),
	}
}

// Monitor reads lines from the port into the pending queue until the context
// is cancelled or the port errors. When the queue is full the newest line is
// dropped; the scheduler prefers fresh data and purges stale input anyway.
func (m *Mux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(m.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// the blocking scan.Scan runs in its own goroutine so the outer loop can
	// await both lines and context cancellation
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				if err := scan.Err(); err != nil {
					return err
				}
				return nil
			}
			select {
			case m.pending <- line:
			default:
				m.dropped.Add(1)
			}
		}
	}
}

// TryReadLine returns the next pending line without blocking.
func (m *Mux[T]) TryReadLine() (string, bool) {
	select {
	case line := <-m.pending:
		return line, true
	default:
		return "", false
	}
}

// Pending returns the number of buffered lines.
func (m *Mux[T]) Pending() int { return len(m.pending) }

// Dropped returns how many lines were discarded because the queue was full.
func (m *Mux[T]) Dropped() int64 { return m.dropped.Load() }

// SendCommand writes the provided command to the bridge port, appending the
// newline terminator the pod firmware expects.
func (m *Mux[T]) SendCommand(command string) error {
	m.commandMu.Lock()
	defer m.commandMu.Unlock()
	if !bytes.HasSuffix([]byte(command), []byte("\n")) {
		command += "\n"
	}
	n, err := m.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Close closes the underlying port.
func (m *Mux[T]) Close() error {
	return m.port.Close()
}
