package commandqueue

import (
	"testing"

	"github.com/relaycore/relaycore/internal/common/logger"
)

func newTestQueue() *Queue {
	return New(logger.Default())
}

func TestSendThenReceiveOrdered(t *testing.T) {
	q := newTestQueue()
	if _, err := q.Send(Sync{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := q.Send(PublishThread{ProjectATag: "p1", Title: "t"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := <-q.Receive()
	second := <-q.Receive()

	if _, ok := first.Command.(Sync); !ok {
		t.Fatalf("expected first command to be Sync, got %T", first.Command)
	}
	if _, ok := second.Command.(PublishThread); !ok {
		t.Fatalf("expected second command to be PublishThread, got %T", second.Command)
	}
}

func TestSendAssignsDistinctIDs(t *testing.T) {
	q := newTestQueue()
	id1, _ := q.Send(Sync{})
	id2, _ := q.Send(Sync{})
	if id1 == "" || id2 == "" || id1 == id2 {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", id1, id2)
	}
	<-q.Receive()
	<-q.Receive()
}

func TestSendAfterCloseReturnsErrClosed(t *testing.T) {
	q := newTestQueue()
	q.Close()
	if _, err := q.Send(Sync{}); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	q := newTestQueue()
	q.Close()
	q.Close()
}

func TestReceiveDrainsThenCloses(t *testing.T) {
	q := newTestQueue()
	_, _ = q.Send(Sync{})
	q.Close()

	env, ok := <-q.Receive()
	if !ok {
		t.Fatal("expected buffered command to be delivered before close")
	}
	if _, ok := env.Command.(Sync); !ok {
		t.Fatalf("expected Sync, got %T", env.Command)
	}

	_, ok = <-q.Receive()
	if ok {
		t.Fatal("expected channel to be closed after draining")
	}
}
