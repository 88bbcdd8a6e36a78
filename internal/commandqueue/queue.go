// Package commandqueue implements the command queue: a single-producer,
// single-consumer outbound channel carrying UI-issued commands to the
// relay client. The only back-pressure signal is Send returning an error
// when the channel has been closed; commands are otherwise ordered within
// a single sender, matching the cooperative single-threaded event-loop
// model the rest of this engine runs under.
package commandqueue

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaycore/relaycore/internal/common/logger"
)

// ErrClosed is returned by Send once the queue has been closed.
var ErrClosed = errors.New("commandqueue: queue is closed")

// Queue is a bounded channel of command envelopes plus a closed flag
// guarding against sends after shutdown.
type Queue struct {
	ch     chan Envelope
	logger *logger.Logger

	mu     sync.Mutex
	closed bool
}

// DefaultCapacity is the outbound channel's buffer size: enough to absorb
// a burst of rapid user actions (several quick sends, a stop, a nudge)
// without blocking the render loop.
const DefaultCapacity = 64

// New builds a Queue with DefaultCapacity.
func New(log *logger.Logger) *Queue {
	return &Queue{
		ch:     make(chan Envelope, DefaultCapacity),
		logger: log.WithFields(zap.String("component", "commandqueue")),
	}
}

// Send enqueues cmd, assigning it a fresh envelope id. Returns ErrClosed if
// the queue has already been closed; this is the only backpressure signal
// this component exposes. Held under the queue's own lock for its whole
// duration (including a full-buffer block) so a concurrent Close can never
// race a send onto a closed channel.
func (q *Queue) Send(cmd Command) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", ErrClosed
	}

	id := uuid.New().String()
	q.ch <- Envelope{ID: id, Command: cmd}

	return id, nil
}

// Receive returns the channel a consumer drains commands from; nothing in
// this tree reads it, the relay client included. The
// channel closes once Close is called and all buffered commands are
// consumed.
func (q *Queue) Receive() <-chan Envelope {
	return q.ch
}

// Close shuts the queue down. Further Sends return ErrClosed. Safe to call
// more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
