// Package stats computes the Statistics Engine's derived views — per-day
// runtime bars, per-day message counts, a per-hour token-usage grid, top
// conversations, and per-project cost rollups — on demand from the runtime
// hierarchy and the message records the data store hands it. Nothing here
// is cached across calls; §4.3 specifies these as views recomputed from C2
// and C5, not as a third incrementally-maintained state machine.
package stats

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/relaycore/relaycore/internal/common/logger"
	"github.com/relaycore/relaycore/internal/runtimehierarchy"
)

const secondsPerDay uint64 = 86400
const secondsPerHour uint64 = 3600

// MessageRecord is the slice of a C5 message the statistics engine needs.
// The engine never reaches into the store directly — callers hand it a
// snapshot of message records, keeping the statistics engine a pure
// function of its inputs. The runtime constructs the Engine but builds no
// such snapshot itself.
type MessageRecord struct {
	ConversationID string
	AuthorPubkey   string
	ProjectATag    string
	CreatedAt      uint64
	HasTokens      bool
	TokensIn       uint64
	TokensOut      uint64
	HasCost        bool
	CostUSD        float64
}

// Engine computes statistics views against a runtime hierarchy.
type Engine struct {
	hierarchy *runtimehierarchy.Hierarchy
	logger    *logger.Logger
}

// New builds an Engine reading from hierarchy.
func New(hierarchy *runtimehierarchy.Hierarchy, log *logger.Logger) *Engine {
	return &Engine{
		hierarchy: hierarchy,
		logger:    log.WithFields(zap.String("component", "stats")),
	}
}

// DayBar is one bar of the per-day runtime chart: RuntimeMs is zero and
// HasData false for a day with no post-cutoff runtime, so the UI can render
// it as a dash rather than a zero-height bar.
type DayBar struct {
	DayStart  uint64
	RuntimeMs uint64
	HasData   bool
}

// RuntimeBar returns a `days`-long skeleton of UTC day-starts ending with
// now's day, joined with the hierarchy's per-day runtime buckets so every
// day in the window is represented even when it has no runtime.
func (e *Engine) RuntimeBar(now uint64, days int) []DayBar {
	skeleton := daySkeleton(now, days)
	// The hierarchy windows by wall-clock today; widen its window so it
	// reaches back to the skeleton's first day when now lies in the past.
	span := days
	if len(skeleton) > 0 {
		wallToday := (uint64(time.Now().Unix()) / secondsPerDay) * secondsPerDay
		if wallToday > skeleton[0] {
			span = int((wallToday-skeleton[0])/secondsPerDay) + 1
		}
	}
	byDay := make(map[uint64]uint64, len(skeleton))
	for _, d := range e.hierarchy.GetRuntimeByDay(span) {
		byDay[d.DayStart] = d.RuntimeMs
	}

	bars := make([]DayBar, len(skeleton))
	for i, dayStart := range skeleton {
		ms, ok := byDay[dayStart]
		bars[i] = DayBar{DayStart: dayStart, RuntimeMs: ms, HasData: ok}
	}
	return bars
}

// daySkeleton returns `days` ascending UTC day-starts ending with today's.
func daySkeleton(now uint64, days int) []uint64 {
	if days <= 0 {
		return nil
	}
	today := dayStart(now)
	out := make([]uint64, days)
	for i := 0; i < days; i++ {
		offset := uint64(days-1-i) * secondsPerDay
		out[i] = saturatingSub(today, offset)
	}
	return out
}

func dayStart(t uint64) uint64 {
	return (t / secondsPerDay) * secondsPerDay
}

func hourStart(t uint64) uint64 {
	return (t / secondsPerHour) * secondsPerHour
}

// DayMessageCounts is the per-day message-count bucket: All counts every
// message, User counts only those authored by the current user.
type DayMessageCounts struct {
	DayStart  uint64
	UserCount int
	AllCount  int
}

// MessageCountsByDay buckets messages into the last `days` UTC day-starts
// (inclusive of today), counting both the full set and the subset authored
// by currentUserPubkey.
func (e *Engine) MessageCountsByDay(messages []MessageRecord, currentUserPubkey string, now uint64, days int) []DayMessageCounts {
	skeleton := daySkeleton(now, days)
	index := make(map[uint64]int, len(skeleton))
	counts := make([]DayMessageCounts, len(skeleton))
	for i, d := range skeleton {
		counts[i] = DayMessageCounts{DayStart: d}
		index[d] = i
	}
	if len(skeleton) == 0 {
		return counts
	}
	windowStart := skeleton[0]

	for _, m := range messages {
		d := dayStart(m.CreatedAt)
		if d < windowStart {
			continue
		}
		i, ok := index[d]
		if !ok {
			continue
		}
		counts[i].AllCount++
		if m.AuthorPubkey == currentUserPubkey {
			counts[i].UserCount++
		}
	}
	return counts
}

// HourBucket is one cell of the per-hour token-usage grid.
type HourBucket struct {
	HourStart uint64
	TokensIn  uint64
	TokensOut uint64
}

// TokenActivityGrid buckets messages carrying token metadata into UTC
// hour-starts over the last `days` days, returned as a flat ascending list;
// callers reshape into a 7x24 grid and assign colour quartiles (a rendering
// concern this package does not own).
func (e *Engine) TokenActivityGrid(messages []MessageRecord, now uint64, days int) []HourBucket {
	if days <= 0 {
		return nil
	}
	windowStart := saturatingSub(dayStart(now), uint64(days)*secondsPerDay)
	buckets := make(map[uint64]*HourBucket)

	for _, m := range messages {
		if !m.HasTokens {
			continue
		}
		if m.CreatedAt < windowStart {
			continue
		}
		h := hourStart(m.CreatedAt)
		b, ok := buckets[h]
		if !ok {
			b = &HourBucket{HourStart: h}
			buckets[h] = b
		}
		b.TokensIn = saturatingAdd(b.TokensIn, m.TokensIn)
		b.TokensOut = saturatingAdd(b.TokensOut, m.TokensOut)
	}

	out := make([]HourBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HourStart < out[j].HourStart })
	return out
}

// TopConversations returns the top `limit` root conversations by filtered
// subtree runtime, delegating to the runtime hierarchy.
func (e *Engine) TopConversations(limit int) []runtimehierarchy.ConversationRuntime {
	return e.hierarchy.GetTopConversationsByRuntime(limit)
}

// CostByProject sums llm-cost metadata per project a-tag over the last
// `days` days, using saturating subtraction against clock skew when
// computing the window start.
func (e *Engine) CostByProject(messages []MessageRecord, now uint64, days int) map[string]float64 {
	windowStart := saturatingSub(dayStart(now), uint64(days)*secondsPerDay)
	out := make(map[string]float64)
	for _, m := range messages {
		if !m.HasCost || m.CreatedAt < windowStart || m.ProjectATag == "" {
			continue
		}
		out[m.ProjectATag] += m.CostUSD
	}
	return out
}

func saturatingAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return ^uint64(0)
	}
	return sum
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
