package operations

import (
	"testing"
	"time"

	"github.com/relaycore/relaycore/internal/common/logger"
)

func newTestTracker() *Tracker {
	return New(logger.Default())
}

func TestSetWorkingAgentsCreatesOperation(t *testing.T) {
	tr := newTestTracker()
	tr.SetWorkingAgents("conv1", []string{"agentA", "agentB"})

	if !tr.IsBusy("conv1") {
		t.Fatal("expected conv1 to be busy")
	}
	agents := tr.WorkingAgents("conv1")
	if len(agents) != 2 {
		t.Fatalf("expected 2 working agents, got %d", len(agents))
	}
}

func TestSetWorkingAgentsEmptyClears(t *testing.T) {
	tr := newTestTracker()
	tr.SetWorkingAgents("conv1", []string{"agentA"})
	tr.SetWorkingAgents("conv1", nil)

	if tr.IsBusy("conv1") {
		t.Fatal("expected conv1 to no longer be busy")
	}
}

func TestRecordStopRequestedThenStatusClearsPending(t *testing.T) {
	tr := newTestTracker()
	tr.SetWorkingAgents("conv1", []string{"agentA"})
	tr.RecordStopRequested("conv1", []string{"agentA"})

	if !tr.IsStopPending("conv1") {
		t.Fatal("expected stop to be pending")
	}

	// Status refresh with agentA no longer present acknowledges the stop.
	tr.SetWorkingAgents("conv1", []string{"agentB"})
	if tr.IsStopPending("conv1") {
		t.Fatal("expected stop to be acknowledged once agentA drops out")
	}
}

func TestStopStillPendingIfAgentStillListed(t *testing.T) {
	tr := newTestTracker()
	tr.SetWorkingAgents("conv1", []string{"agentA"})
	tr.RecordStopRequested("conv1", []string{"agentA"})

	// Status refresh still lists agentA: stop has not yet been honored.
	tr.SetWorkingAgents("conv1", []string{"agentA"})
	if !tr.IsStopPending("conv1") {
		t.Fatal("expected stop to remain pending while agentA still listed")
	}
}

func TestIsStopTimedOut(t *testing.T) {
	tr := newTestTracker()
	fakeNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return fakeNow }

	tr.SetWorkingAgents("conv1", []string{"agentA"})
	tr.RecordStopRequested("conv1", []string{"agentA"})

	if tr.IsStopTimedOut("conv1") {
		t.Fatal("expected stop not yet timed out")
	}

	fakeNow = fakeNow.Add(31 * time.Second)
	if !tr.IsStopTimedOut("conv1") {
		t.Fatal("expected stop to be timed out after 31s")
	}
}

func TestActiveConversations(t *testing.T) {
	tr := newTestTracker()
	tr.SetWorkingAgents("conv1", []string{"agentA"})
	tr.SetWorkingAgents("conv2", []string{"agentB"})

	active := tr.ActiveConversations()
	if len(active) != 2 {
		t.Fatalf("expected 2 active conversations, got %d", len(active))
	}
}

func TestClear(t *testing.T) {
	tr := newTestTracker()
	tr.SetWorkingAgents("conv1", []string{"agentA"})
	tr.RecordStopRequested("conv1", []string{"agentA"})
	tr.Clear()

	if tr.IsBusy("conv1") || tr.IsStopPending("conv1") {
		t.Fatal("expected Clear to reset all state")
	}
}
