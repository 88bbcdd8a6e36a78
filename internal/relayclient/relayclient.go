// Package relayclient is the transport the event-ingestion core attaches
// to: a Client dials one Nostr relay URL over WebSocket, delivers decoded
// signed events to the runtime in small batches as they arrive, writes
// already-built events handed to Publish as ["EVENT", ...] frames, and
// reconnects with exponential backoff on disconnect. It does not read the
// command queue or turn commands into events. This sits outside the ingestion engine's core — the core
// only depends on the Events()/Publish() contract below.
package relayclient

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"github.com/relaycore/relaycore/internal/common/apperrors"
	"github.com/relaycore/relaycore/internal/common/config"
	"github.com/relaycore/relaycore/internal/common/logger"
	"github.com/relaycore/relaycore/internal/nostrevent"
)

// batchWindow bounds how long decoded events are buffered before being
// flushed to a batch, so a burst of relay traffic doesn't deliver one
// event at a time into the cooperative event loop.
const batchWindow = 20 * time.Millisecond

// maxBatchSize caps a single delivered batch regardless of how much
// arrived within batchWindow.
const maxBatchSize = 256

// Dialer opens a client WebSocket connection. Exists so tests can swap in
// a fake without a real network dial.
type Dialer interface {
	Dial(url string) (Conn, error)
}

// Conn is the minimal surface relayclient needs from a WebSocket
// connection.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type gorillaDialer struct{}

func (gorillaDialer) Dial(url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Client manages one relay connection with reconnect backoff, fanning
// decoded events out to Events() and accepting outbound publishes.
type Client struct {
	cfg    config.RelayConfig
	dialer Dialer
	logger *logger.Logger

	mu      sync.Mutex
	conn    Conn
	url     string
	backoff time.Duration

	events chan []nostrevent.Event
}

// New builds a Client from cfg's reconnect settings; the relay URL it
// connects to is the one later passed to Run. Multi-relay
// fanout (subscribing to several relays concurrently and deduplicating by
// event id) is a straightforward extension of this single-connection
// loop, left for the UI layer to instantiate one Client per URL when it
// needs that.
func New(cfg config.RelayConfig, dialer Dialer, log *logger.Logger) *Client {
	if dialer == nil {
		dialer = gorillaDialer{}
	}
	return &Client{
		cfg:     cfg,
		dialer:  dialer,
		logger:  log.WithFields(zap.String("component", "relayclient")),
		backoff: cfg.ReconnectMinDuration(),
		events:  make(chan []nostrevent.Event, 16),
	}
}

// Events returns the channel of decoded-event batches. Closed when Run
// returns.
func (c *Client) Events() <-chan []nostrevent.Event {
	return c.events
}

// Run dials url and pumps inbound frames until ctx is cancelled,
// reconnecting with exponential backoff (ReconnectMinDuration doubling up
// to ReconnectMaxDuration, 1s and 32s by default) on every disconnect. Run owns the events channel and closes it on return.
func (c *Client) Run(ctx context.Context, url string) error {
	defer close(c.events)
	c.url = url

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, err := c.dialer.Dial(url)
		if err != nil {
			c.logger.Warn("relay dial failed, backing off", zap.String("url", url), zap.Duration("backoff", c.backoff), zap.Error(err))
			if !c.sleepBackoff(ctx) {
				return ctx.Err()
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.backoff = c.cfg.ReconnectMinDuration()

		if err := c.pump(ctx, conn); err != nil {
			c.logger.Info("relay connection ended, will reconnect", zap.Error(err))
		}

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !c.sleepBackoff(ctx) {
			return ctx.Err()
		}
	}
}

func (c *Client) sleepBackoff(ctx context.Context) bool {
	select {
	case <-time.After(c.backoff):
	case <-ctx.Done():
		return false
	}
	c.backoff *= 2
	if max := c.cfg.ReconnectMaxDuration(); c.backoff > max {
		c.backoff = max
	}
	return true
}

func (c *Client) pump(ctx context.Context, conn Conn) error {
	defer func() { _ = conn.Close() }()

	var batch []nostrevent.Event
	flush := time.NewTimer(batchWindow)
	defer flush.Stop()

	msgCh := make(chan []byte)
	errCh := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			msgCh <- data
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if len(batch) > 0 {
				c.deliver(batch)
			}
			return err
		case data := <-msgCh:
			e, ok := parseEventFrame(data)
			if ok {
				batch = append(batch, e)
				if len(batch) >= maxBatchSize {
					c.deliver(batch)
					batch = nil
					flush.Reset(batchWindow)
				}
			}
		case <-flush.C:
			if len(batch) > 0 {
				c.deliver(batch)
				batch = nil
			}
			flush.Reset(batchWindow)
		}
	}
}

func (c *Client) deliver(batch []nostrevent.Event) {
	cp := make([]nostrevent.Event, len(batch))
	copy(cp, batch)
	c.events <- cp
}

// Publish serializes e as a NIP-01 ["EVENT", event] frame and writes it to
// the active connection. Returns a transient apperrors.Error if no
// connection is currently established.
func (c *Client) Publish(e nostr.Event) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return apperrors.Transientf("relayclient", "no active relay connection")
	}

	frame, err := json.Marshal([]any{"EVENT", e})
	if err != nil {
		return apperrors.Malformedf("relayclient", "marshal outbound event: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return apperrors.Transientf("relayclient", "write outbound event: %v", err)
	}
	return nil
}

// parseEventFrame decodes a NIP-01 ["EVENT", subscriptionID, event] or
// ["EVENT", event] frame into a nostrevent.Event. Any other frame shape
// (EOSE, NOTICE, OK, ...) is ignored here — the classifier operates only
// on decoded events, and other control frames are a relay-transport
// concern.
func parseEventFrame(data []byte) (nostrevent.Event, bool) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || len(raw) < 2 {
		return nostrevent.Event{}, false
	}

	var label string
	if err := json.Unmarshal(raw[0], &label); err != nil || label != "EVENT" {
		return nostrevent.Event{}, false
	}

	// The event payload is whichever trailing element parses as an object
	// with an "id" field — covers both the subscription-id and bare forms.
	for i := len(raw) - 1; i >= 1; i-- {
		var ev nostr.Event
		if err := json.Unmarshal(raw[i], &ev); err == nil && ev.ID != "" {
			return nostrevent.FromNostr(ev), true
		}
	}
	return nostrevent.Event{}, false
}
