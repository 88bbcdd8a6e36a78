package notifier

import (
	"sync"
	"testing"

	"github.com/relaycore/relaycore/internal/common/logger"
)

func TestBumpIncrements(t *testing.T) {
	n := New(logger.Default())
	if n.Version() != 0 {
		t.Fatalf("expected version 0 initially, got %d", n.Version())
	}
	n.Bump()
	n.Bump()
	if n.Version() != 2 {
		t.Fatalf("expected version 2, got %d", n.Version())
	}
}

func TestPollerReportsChangeOnce(t *testing.T) {
	n := New(logger.Default())
	p := NewPoller(n)

	if p.Poll() {
		t.Fatal("expected no pending change before any Bump")
	}

	n.Bump()
	if !p.Poll() {
		t.Fatal("expected Poll to report a change after Bump")
	}
	if p.Poll() {
		t.Fatal("expected Poll to report no further change until next Bump")
	}
}

func TestBumpConcurrentSafe(t *testing.T) {
	n := New(logger.Default())
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Bump()
		}()
	}
	wg.Wait()
	if n.Version() != 100 {
		t.Fatalf("expected version 100 after 100 concurrent bumps, got %d", n.Version())
	}
}
