package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	nostr "github.com/nbd-wtf/go-nostr"

	"github.com/relaycore/relaycore/internal/common/apperrors"
	"github.com/relaycore/relaycore/internal/common/config"
	"github.com/relaycore/relaycore/internal/common/logger"
)

// fakeConn is an in-memory stand-in for a gorilla/websocket connection,
// driven entirely by channels so tests don't need a real socket.
type fakeConn struct {
	inbound  chan []byte
	outbound chan []byte
	closed   chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan []byte, 16),
		outbound: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.inbound:
		return 1, data, nil
	case <-c.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case c.outbound <- data:
		return nil
	case <-c.closed:
		return errors.New("connection closed")
	}
}

func (c *fakeConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

// fakeDialer hands out the pre-built fakeConns queued on conns, in order,
// then fails every further dial (simulating a relay that refuses
// reconnects).
type fakeDialer struct {
	conns chan *fakeConn
}

func (d *fakeDialer) Dial(_ string) (Conn, error) {
	select {
	case c := <-d.conns:
		return c, nil
	default:
		return nil, errors.New("no connection available")
	}
}

func testConfig() config.RelayConfig {
	return config.RelayConfig{
		URLs:                []string{"wss://relay.example/ws"},
		ReconnectMinSeconds: 1,
		ReconnectMaxSeconds: 32,
	}
}

func TestClientDeliversDecodedEventBatch(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: make(chan *fakeConn, 1)}
	dialer.conns <- conn

	c := New(testConfig(), dialer, logger.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx, "wss://relay.example/ws") }()

	frame, _ := json.Marshal([]any{"EVENT", "sub1", nostr.Event{ID: "abc123", Kind: 11000}})
	conn.inbound <- frame

	select {
	case batch := <-c.Events():
		if len(batch) != 1 || batch[0].ID != "abc123" {
			t.Fatalf("expected batch with decoded event id abc123, got %+v", batch)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for decoded event batch")
	}
}

func TestClientIgnoresNonEventFrames(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: make(chan *fakeConn, 1)}
	dialer.conns <- conn

	c := New(testConfig(), dialer, logger.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx, "wss://relay.example/ws") }()

	eose, _ := json.Marshal([]any{"EOSE", "sub1"})
	conn.inbound <- eose

	event, _ := json.Marshal([]any{"EVENT", "sub1", nostr.Event{ID: "def456", Kind: 11001}})
	conn.inbound <- event

	select {
	case batch := <-c.Events():
		if len(batch) != 1 || batch[0].ID != "def456" {
			t.Fatalf("expected only the decoded event to survive, got %+v", batch)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for decoded event batch")
	}
}

func TestPublishWithoutConnectionIsTransient(t *testing.T) {
	c := New(testConfig(), &fakeDialer{conns: make(chan *fakeConn)}, logger.Default())

	err := c.Publish(nostr.Event{ID: "xyz"})
	if err == nil {
		t.Fatal("expected an error when no connection is active")
	}
	if !apperrors.Is(err, apperrors.Transient) {
		t.Fatalf("expected a Transient error, got %v", err)
	}
}

func TestPublishWritesEventFrame(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: make(chan *fakeConn, 1)}
	dialer.conns <- conn

	c := New(testConfig(), dialer, logger.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx, "wss://relay.example/ws") }()

	// Give Run a moment to install the connection before publishing.
	deadline := time.After(2 * time.Second)
	for {
		if err := c.Publish(nostr.Event{ID: "pub1"}); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for connection to become active")
		case <-time.After(10 * time.Millisecond):
		}
	}

	select {
	case data := <-conn.outbound:
		var frame []json.RawMessage
		if err := json.Unmarshal(data, &frame); err != nil || len(frame) != 2 {
			t.Fatalf("expected a 2-element EVENT frame, got %s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound frame")
	}
}

func TestClientReconnectsAfterDisconnect(t *testing.T) {
	first := newFakeConn()
	second := newFakeConn()
	dialer := &fakeDialer{conns: make(chan *fakeConn, 2)}
	dialer.conns <- first
	dialer.conns <- second

	cfg := testConfig()
	cfg.ReconnectMinSeconds = 0 // keep the test fast; Duration(0) still selects immediately
	c := New(cfg, dialer, logger.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx, "wss://relay.example/ws") }()

	_ = first.Close()

	frame, _ := json.Marshal([]any{"EVENT", nostr.Event{ID: "after-reconnect", Kind: 11000}})
	deadline := time.After(3 * time.Second)
	sent := false
	for !sent {
		select {
		case second.inbound <- frame:
			sent = true
		case <-deadline:
			t.Fatal("timed out waiting for reconnect to pick up the second connection")
		case <-time.After(10 * time.Millisecond):
		}
	}

	select {
	case batch := <-c.Events():
		if len(batch) != 1 || batch[0].ID != "after-reconnect" {
			t.Fatalf("expected event from the reconnected connection, got %+v", batch)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for post-reconnect batch")
	}
}
