// Package runtimehierarchy tracks per-conversation LLM runtime and the
// parent/child graph linking conversations into project trees, so total
// runtime can roll up recursively from a child to its most distant
// ancestor. Subtree rollups are computed on each read by a cycle-safe walk
// of the subtree; only the flat sum of individual runtimes is maintained
// incrementally.
package runtimehierarchy

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relaycore/relaycore/internal/common/logger"
)

// CutoffTimestamp is the Unix timestamp (seconds) before which runtime data
// uses an incompatible tracking methodology and must be excluded from
// aggregate stats (total runtime, per-day runtime, top-conversations
// ranking). Cost and token data are unaffected by this cutoff — only
// runtime.
const CutoffTimestamp uint64 = 1737676800 // 2025-01-24T00:00:00Z

const secondsPerDay uint64 = 86400

// Hierarchy is the mutex-protected, incrementally-cached store for
// conversation runtimes and their parent/child relationships. All reads
// and writes are safe for concurrent use.
type Hierarchy struct {
	mu sync.RWMutex

	individualRuntimes     map[string]uint64
	conversationCreatedAt  map[string]uint64
	individualLastActivity map[string]uint64

	children map[string]map[string]struct{}
	parents  map[string]string

	cachedTotalUniqueRuntime uint64
	cachedTodayRuntime       *dayRuntime

	logger *logger.Logger
}

type dayRuntime struct {
	dayStart uint64
	runtime  uint64
}

// New creates an empty Hierarchy.
func New(log *logger.Logger) *Hierarchy {
	return &Hierarchy{
		individualRuntimes:     make(map[string]uint64),
		conversationCreatedAt:  make(map[string]uint64),
		individualLastActivity: make(map[string]uint64),
		children:               make(map[string]map[string]struct{}),
		parents:                make(map[string]string),
		logger:                 log.WithFields(zap.String("component", "runtime-hierarchy")),
	}
}

// SetIndividualRuntime updates a conversation's own (non-recursive) runtime
// in milliseconds and incrementally maintains cachedTotalUniqueRuntime.
func (h *Hierarchy) SetIndividualRuntime(conversationID string, runtimeMs uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	old := h.individualRuntimes[conversationID]
	h.individualRuntimes[conversationID] = runtimeMs

	h.cachedTotalUniqueRuntime = saturatingAdd(saturatingSub(h.cachedTotalUniqueRuntime, old), runtimeMs)
	h.cachedTodayRuntime = nil
}

// SetConversationCreatedAt records a conversation's creation timestamp
// (Unix seconds), used by cutoff filtering and today-bucket caching.
func (h *Hierarchy) SetConversationCreatedAt(conversationID string, createdAt uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	old, existed := h.conversationCreatedAt[conversationID]
	h.conversationCreatedAt[conversationID] = createdAt

	if !existed || old != createdAt {
		h.cachedTodayRuntime = nil
	}
}

// GetConversationCreatedAt returns the recorded creation timestamp, if any.
func (h *Hierarchy) GetConversationCreatedAt(conversationID string) (uint64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.conversationCreatedAt[conversationID]
	return v, ok
}

// GetIndividualRuntime returns a conversation's own runtime, 0 if unknown.
func (h *Hierarchy) GetIndividualRuntime(conversationID string) uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.individualRuntimes[conversationID]
}

// SetIndividualLastActivity records a conversation's own last-activity
// timestamp. Does not invalidate any cache — last activity rollups are
// always computed fresh.
func (h *Hierarchy) SetIndividualLastActivity(conversationID string, timestamp uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.individualLastActivity[conversationID] = timestamp
}

// GetIndividualLastActivity returns a conversation's own last-activity
// timestamp, if set.
func (h *Hierarchy) GetIndividualLastActivity(conversationID string) (uint64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.individualLastActivity[conversationID]
	return v, ok
}

// GetEffectiveLastActivity returns the maximum of a conversation's own
// last-activity and that of all its descendants.
func (h *Hierarchy) GetEffectiveLastActivity(conversationID string) uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.effectiveLastActivity(conversationID, make(map[string]struct{}))
}

func (h *Hierarchy) effectiveLastActivity(conversationID string, visited map[string]struct{}) uint64 {
	if _, seen := visited[conversationID]; seen {
		return 0
	}
	visited[conversationID] = struct{}{}

	maxActivity := h.individualLastActivity[conversationID]

	for childID := range h.children[conversationID] {
		if childActivity := h.effectiveLastActivity(childID, visited); childActivity > maxActivity {
			maxActivity = childActivity
		}
	}

	return maxActivity
}

// AddChild records parentID as the parent of childID. Delegates to
// SetParent, the single source of truth for the parent/child graph.
// Returns true if the relationship was new or changed.
func (h *Hierarchy) AddChild(parentID, childID string) bool {
	return h.SetParent(childID, parentID)
}

// SetParent sets parentID as childID's parent, cleaning up any prior
// parent edge first. A self-referential edge is a no-op. Setting the same
// parent again is a no-op. Conflicting evidence (a second call naming a
// different parent) overwrites the previous parent: last writer wins.
// Returns true if the relationship was new or changed.
func (h *Hierarchy) SetParent(childID, parentID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if parentID == childID {
		return false
	}

	if existing, ok := h.parents[childID]; ok {
		if existing == parentID {
			return false
		}
		if oldChildren, ok := h.children[existing]; ok {
			delete(oldChildren, childID)
			if len(oldChildren) == 0 {
				delete(h.children, existing)
			}
		}
	}

	h.parents[childID] = parentID
	if h.children[parentID] == nil {
		h.children[parentID] = make(map[string]struct{})
	}
	h.children[parentID][childID] = struct{}{}

	return true
}

// GetParent returns childID's parent, if any.
func (h *Hierarchy) GetParent(childID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.parents[childID]
	return v, ok
}

// GetChildren returns the direct children of parentID.
func (h *Hierarchy) GetChildren(parentID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	children := h.children[parentID]
	if len(children) == 0 {
		return nil
	}
	result := make([]string, 0, len(children))
	for id := range children {
		result = append(result, id)
	}
	return result
}

// HasChildren reports whether conversationID has at least one child.
func (h *Hierarchy) HasChildren(conversationID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.children[conversationID]) > 0
}

// GetTotalRuntime returns conversationID's runtime plus the runtime of all
// descendants (hierarchical rollup, unfiltered by cutoff).
func (h *Hierarchy) GetTotalRuntime(conversationID string) uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalRuntime(conversationID, make(map[string]struct{}))
}

func (h *Hierarchy) totalRuntime(conversationID string, visited map[string]struct{}) uint64 {
	if _, seen := visited[conversationID]; seen {
		return 0
	}
	visited[conversationID] = struct{}{}

	total := h.individualRuntimes[conversationID]
	for childID := range h.children[conversationID] {
		total = saturatingAdd(total, h.totalRuntime(childID, visited))
	}
	return total
}

// GetAncestors climbs conversationID's parent chain to the root, stopping
// if a cycle is detected.
func (h *Hierarchy) GetAncestors(conversationID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var ancestors []string
	seen := map[string]struct{}{conversationID: {}}
	current := conversationID

	for {
		parentID, ok := h.parents[current]
		if !ok {
			break
		}
		if _, already := seen[parentID]; already {
			break
		}
		ancestors = append(ancestors, parentID)
		seen[parentID] = struct{}{}
		current = parentID
	}

	return ancestors
}

// GetDescendants returns every descendant of conversationID (children,
// grandchildren, ...), cycle-safe.
func (h *Hierarchy) GetDescendants(conversationID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var result []string
	h.collectDescendants(conversationID, &result, make(map[string]struct{}))
	return result
}

func (h *Hierarchy) collectDescendants(conversationID string, result *[]string, visited map[string]struct{}) {
	if _, seen := visited[conversationID]; seen {
		return
	}
	visited[conversationID] = struct{}{}

	for childID := range h.children[conversationID] {
		*result = append(*result, childID)
		h.collectDescendants(childID, result, visited)
	}
}

// Clear discards all tracked state, resetting caches. Used on a full
// rebuild from a relay resync.
func (h *Hierarchy) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.individualRuntimes = make(map[string]uint64)
	h.conversationCreatedAt = make(map[string]uint64)
	h.individualLastActivity = make(map[string]uint64)
	h.children = make(map[string]map[string]struct{})
	h.parents = make(map[string]string)
	h.cachedTotalUniqueRuntime = 0
	h.cachedTodayRuntime = nil
}

// ConversationCount returns the number of conversations with a recorded
// individual runtime.
func (h *Hierarchy) ConversationCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.individualRuntimes)
}

// RelationshipCount returns the number of parent/child edges tracked.
func (h *Hierarchy) RelationshipCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.parents)
}

// GetTotalUniqueRuntime returns the flat sum of every conversation's own
// runtime (not following hierarchy rollups), restricted to conversations
// created at or after CutoffTimestamp. Used for the global status bar.
func (h *Hierarchy) GetTotalUniqueRuntime() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var total uint64
	for convID, runtime := range h.individualRuntimes {
		if createdAt, ok := h.conversationCreatedAt[convID]; ok && createdAt >= CutoffTimestamp {
			total = saturatingAdd(total, runtime)
		}
	}
	return total
}

// GetTodayUniqueRuntime returns the flat sum of runtime for conversations
// created today (UTC), restricted to the cutoff. Memoized per UTC day:
// O(n) on the first call of a new day, O(1) thereafter.
func (h *Hierarchy) GetTodayUniqueRuntime() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := uint64(time.Now().Unix())
	currentDayStart := (now / secondsPerDay) * secondsPerDay

	if h.cachedTodayRuntime != nil && h.cachedTodayRuntime.dayStart == currentDayStart {
		return h.cachedTodayRuntime.runtime
	}

	var todayRuntime uint64
	for convID, runtime := range h.individualRuntimes {
		createdAt, ok := h.conversationCreatedAt[convID]
		if !ok || createdAt < CutoffTimestamp {
			continue
		}
		convDayStart := (createdAt / secondsPerDay) * secondsPerDay
		if convDayStart == currentDayStart {
			todayRuntime = saturatingAdd(todayRuntime, runtime)
		}
	}

	h.cachedTodayRuntime = &dayRuntime{dayStart: currentDayStart, runtime: todayRuntime}
	return todayRuntime
}

// DayRuntime is one bucket of GetRuntimeByDay's result: a UTC day-start
// timestamp and the total runtime (ms) of conversations created that day.
type DayRuntime struct {
	DayStart uint64
	RuntimeMs uint64
}

// GetRuntimeByDay buckets runtime by each conversation's creation day
// (UTC), restricted to the last numDays days and to the cutoff. Days with
// zero runtime are omitted. Returned oldest-first.
func (h *Hierarchy) GetRuntimeByDay(numDays int) []DayRuntime {
	if numDays <= 0 {
		return nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	now := uint64(time.Now().Unix())
	todayStart := (now / secondsPerDay) * secondsPerDay
	windowCutoff := saturatingSub(todayStart, saturatingSub(uint64(numDays), 1)*secondsPerDay)

	byDay := make(map[uint64]uint64)
	for convID, runtime := range h.individualRuntimes {
		if runtime == 0 {
			continue
		}
		createdAt, ok := h.conversationCreatedAt[convID]
		if !ok || createdAt < CutoffTimestamp {
			continue
		}
		dayStart := (createdAt / secondsPerDay) * secondsPerDay
		if dayStart >= windowCutoff {
			byDay[dayStart] = saturatingAdd(byDay[dayStart], runtime)
		}
	}

	result := make([]DayRuntime, 0, len(byDay))
	for day, runtime := range byDay {
		result = append(result, DayRuntime{DayStart: day, RuntimeMs: runtime})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DayStart < result[j].DayStart })
	return result
}

// ConversationRuntime is one entry of GetTopConversationsByRuntime's
// result.
type ConversationRuntime struct {
	ConversationID string
	RuntimeMs      uint64
}

// GetTopConversationsByRuntime returns up to limit root conversations
// (those with no parent) ranked by cutoff-filtered total runtime,
// descending. Zero-runtime roots are omitted.
func (h *Hierarchy) GetTopConversationsByRuntime(limit int) []ConversationRuntime {
	h.mu.RLock()
	defer h.mu.RUnlock()

	allIDs := make(map[string]struct{})
	for id := range h.individualRuntimes {
		allIDs[id] = struct{}{}
	}
	for id := range h.parents {
		allIDs[id] = struct{}{}
	}
	for id := range h.children {
		allIDs[id] = struct{}{}
	}

	var roots []string
	for id := range allIDs {
		if _, hasParent := h.parents[id]; !hasParent {
			roots = append(roots, id)
		}
	}

	runtimes := make([]ConversationRuntime, 0, len(roots))
	for _, id := range roots {
		runtime := h.totalRuntimeFiltered(id, make(map[string]struct{}))
		if runtime > 0 {
			runtimes = append(runtimes, ConversationRuntime{ConversationID: id, RuntimeMs: runtime})
		}
	}

	sort.Slice(runtimes, func(i, j int) bool { return runtimes[i].RuntimeMs > runtimes[j].RuntimeMs })
	if limit >= 0 && len(runtimes) > limit {
		runtimes = runtimes[:limit]
	}
	return runtimes
}

// totalRuntimeFiltered recursively sums runtime under conversationID,
// counting a node's own runtime only if it was created at or after
// CutoffTimestamp. Descent into children is unconditional: a pre-cutoff
// node contributes nothing itself but its post-cutoff children still do.
func (h *Hierarchy) totalRuntimeFiltered(conversationID string, visited map[string]struct{}) uint64 {
	if _, seen := visited[conversationID]; seen {
		return 0
	}
	visited[conversationID] = struct{}{}

	var total uint64
	if createdAt, ok := h.conversationCreatedAt[conversationID]; ok && createdAt >= CutoffTimestamp {
		total = h.individualRuntimes[conversationID]
	}

	for childID := range h.children[conversationID] {
		total = saturatingAdd(total, h.totalRuntimeFiltered(childID, visited))
	}

	return total
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
