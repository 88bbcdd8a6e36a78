package stats

import (
	"testing"

	"github.com/relaycore/relaycore/internal/common/logger"
	"github.com/relaycore/relaycore/internal/runtimehierarchy"
)

func newTestEngine(t *testing.T) (*Engine, *runtimehierarchy.Hierarchy) {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "debug", Format: "console", OutputPath: "stdout"})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	h := runtimehierarchy.New(log)
	return New(h, log), h
}

const day = 86400

func TestRuntimeBarFillsSkeletonWithDashes(t *testing.T) {
	e, h := newTestEngine(t)
	now := runtimehierarchy.CutoffTimestamp + 10*day
	today := (now / day) * day

	h.SetConversationCreatedAt("conv1", today)
	h.SetIndividualRuntime("conv1", 5000)

	bars := e.RuntimeBar(now, 3)
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(bars))
	}
	if bars[2].DayStart != today || !bars[2].HasData || bars[2].RuntimeMs != 5000 {
		t.Errorf("today bar = %+v", bars[2])
	}
	if bars[0].HasData || bars[0].RuntimeMs != 0 {
		t.Errorf("empty day bar should have no data, got %+v", bars[0])
	}
}

func TestRuntimeBarZeroDays(t *testing.T) {
	e, _ := newTestEngine(t)
	if got := e.RuntimeBar(1000, 0); len(got) != 0 {
		t.Errorf("expected empty bar list, got %+v", got)
	}
}

func TestMessageCountsByDaySplitsUserAndAll(t *testing.T) {
	e, _ := newTestEngine(t)
	now := uint64(10 * day)
	today := (now / day) * day

	messages := []MessageRecord{
		{AuthorPubkey: "me", CreatedAt: today},
		{AuthorPubkey: "me", CreatedAt: today + 10},
		{AuthorPubkey: "other", CreatedAt: today + 20},
		{AuthorPubkey: "other", CreatedAt: today - day}, // yesterday
	}

	counts := e.MessageCountsByDay(messages, "me", now, 2)
	if len(counts) != 2 {
		t.Fatalf("expected 2 day buckets, got %d", len(counts))
	}
	if counts[1].AllCount != 3 || counts[1].UserCount != 2 {
		t.Errorf("today counts = %+v", counts[1])
	}
	if counts[0].AllCount != 1 || counts[0].UserCount != 0 {
		t.Errorf("yesterday counts = %+v", counts[0])
	}
}

func TestMessageCountsByDayExcludesOutsideWindow(t *testing.T) {
	e, _ := newTestEngine(t)
	now := uint64(30 * day)
	messages := []MessageRecord{
		{AuthorPubkey: "me", CreatedAt: 1}, // far outside the 2-day window
	}
	counts := e.MessageCountsByDay(messages, "me", now, 2)
	for _, c := range counts {
		if c.AllCount != 0 {
			t.Errorf("expected message outside window to be excluded, got %+v", c)
		}
	}
}

func TestTokenActivityGridBucketsByHour(t *testing.T) {
	e, _ := newTestEngine(t)
	now := uint64(10 * day)
	messages := []MessageRecord{
		{CreatedAt: now, HasTokens: true, TokensIn: 100, TokensOut: 50},
		{CreatedAt: now + 10, HasTokens: true, TokensIn: 20, TokensOut: 5}, // same hour
		{CreatedAt: now, HasTokens: false, TokensIn: 999},                 // no tokens, ignored
	}
	grid := e.TokenActivityGrid(messages, now, 7)
	if len(grid) != 1 {
		t.Fatalf("expected a single hour bucket, got %+v", grid)
	}
	if grid[0].TokensIn != 120 || grid[0].TokensOut != 55 {
		t.Errorf("bucket = %+v", grid[0])
	}
}

func TestTokenActivityGridSortedAscending(t *testing.T) {
	e, _ := newTestEngine(t)
	now := uint64(10 * day)
	messages := []MessageRecord{
		{CreatedAt: now, HasTokens: true, TokensIn: 1},
		{CreatedAt: now - 3600, HasTokens: true, TokensIn: 2},
	}
	grid := e.TokenActivityGrid(messages, now, 7)
	if len(grid) != 2 || grid[0].HourStart >= grid[1].HourStart {
		t.Fatalf("expected ascending hour buckets, got %+v", grid)
	}
}

func TestTopConversationsDelegatesToHierarchy(t *testing.T) {
	e, h := newTestEngine(t)
	post := runtimehierarchy.CutoffTimestamp + 1
	h.SetConversationCreatedAt("root1", post)
	h.SetIndividualRuntime("root1", 1000)
	h.SetConversationCreatedAt("root2", post)
	h.SetIndividualRuntime("root2", 2000)

	top := e.TopConversations(10)
	if len(top) != 2 || top[0].ConversationID != "root2" {
		t.Errorf("top = %+v", top)
	}
}

func TestCostByProjectSumsWithinWindow(t *testing.T) {
	e, _ := newTestEngine(t)
	now := uint64(20 * day)
	messages := []MessageRecord{
		{ProjectATag: "p1", CreatedAt: now, HasCost: true, CostUSD: 1.5},
		{ProjectATag: "p1", CreatedAt: now - day, HasCost: true, CostUSD: 0.5},
		{ProjectATag: "p2", CreatedAt: now, HasCost: true, CostUSD: 3.0},
		{ProjectATag: "p1", CreatedAt: 0, HasCost: true, CostUSD: 100}, // outside window
		{ProjectATag: "p1", CreatedAt: now, HasCost: false, CostUSD: 999},
	}
	totals := e.CostByProject(messages, now, 14)
	if totals["p1"] != 2.0 {
		t.Errorf("p1 total = %v", totals["p1"])
	}
	if totals["p2"] != 3.0 {
		t.Errorf("p2 total = %v", totals["p2"])
	}
}

func TestCostByProjectClockSkewSaturates(t *testing.T) {
	e, _ := newTestEngine(t)
	// now smaller than the window size must not underflow.
	totals := e.CostByProject([]MessageRecord{{ProjectATag: "p1", CreatedAt: 0, HasCost: true, CostUSD: 5}}, 10, 14)
	if totals["p1"] != 5 {
		t.Errorf("expected day-0 message within a saturated window, got %v", totals["p1"])
	}
}
