// Package notifier implements the change notifier: a single monotonic
// version counter that the runtime bumps once per ingested event, after
// folding it into the runtime hierarchy, operations tracker, data store,
// and streaming buffer. A mutation made by calling one of those components
// directly, outside event ingestion, does not bump it. The UI layer
// polls the counter on a 50ms cadence rather than subscribing to
// fine-grained events — coalescing redundant renders is the entire
// point, so this package deliberately has no per-field granularity.
package notifier

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/relaycore/relaycore/internal/common/logger"
)

// Notifier tracks a monotonic version counter. Bump is safe for concurrent
// use from any component; Version is a consistent snapshot read.
type Notifier struct {
	version atomic.Uint64

	logger *logger.Logger
}

// New builds a Notifier starting at version 0.
func New(log *logger.Logger) *Notifier {
	return &Notifier{
		logger: log.WithFields(zap.String("component", "notifier")),
	}
}

// Bump increments the version counter and returns the new value. The
// runtime's IngestEvent calls it once per classified event; the components'
// own mutating methods do not call it.
func (n *Notifier) Bump() uint64 {
	return n.version.Add(1)
}

// Version returns the current version counter without mutating it.
func (n *Notifier) Version() uint64 {
	return n.version.Load()
}

// Poller is a convenience helper for the UI's 50ms render tick: it
// remembers the last version it observed and reports whether anything has
// changed since, so the caller can skip an unnecessary re-render.
type Poller struct {
	notifier *Notifier
	lastSeen uint64
}

// NewPoller builds a Poller bound to n, starting from n's current version
// so the very first Poll call reports no pending change.
func NewPoller(n *Notifier) *Poller {
	return &Poller{notifier: n, lastSeen: n.Version()}
}

// Poll reports whether the notifier's version has advanced since the last
// call, and advances the poller's watermark to the current version.
func (p *Poller) Poll() bool {
	current := p.notifier.Version()
	if current == p.lastSeen {
		return false
	}
	p.lastSeen = current
	return true
}
