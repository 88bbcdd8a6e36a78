// Package streambuffer implements a keyed-by-conversation holding area for
// partial LLM responses received out-of-band from the signed-event
// stream. Entries are rendered beneath
// the latest message with a cursor glyph while incomplete; when the final
// signed message event arrives via the classifier, the entry is dropped
// atomically so the authoritative content replaces the live preview.
package streambuffer

import (
	"sync"

	"go.uber.org/zap"

	"github.com/relaycore/relaycore/internal/common/logger"
)

// Entry is the live state of an in-progress response for a conversation.
type Entry struct {
	ConversationID   string
	TextContent      string
	ReasoningContent string
	IsComplete       bool
}

// Buffer holds one Entry per conversation with an in-flight response.
type Buffer struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	logger *logger.Logger
}

// New builds an empty Buffer.
func New(log *logger.Logger) *Buffer {
	return &Buffer{
		entries: make(map[string]*Entry),
		logger:  log.WithFields(zap.String("component", "streambuffer")),
	}
}

// AppendText appends delta to a conversation's streamed text content,
// creating the entry on first use.
func (b *Buffer) AppendText(conversationID, delta string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entryLocked(conversationID)
	e.TextContent += delta
}

// AppendReasoning appends delta to a conversation's streamed reasoning
// content (chain-of-thought / planning text shown separately from the
// final answer), creating the entry on first use.
func (b *Buffer) AppendReasoning(conversationID, delta string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entryLocked(conversationID)
	e.ReasoningContent += delta
}

// MarkComplete flags a conversation's streaming entry as complete. The
// entry is not removed here — removal happens only when the final signed
// message arrives (Drop), since "complete" and "superseded by a signed
// event" are distinct states: a fast local completion signal may arrive
// before the relay echoes the signed event back.
func (b *Buffer) MarkComplete(conversationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[conversationID]; ok {
		e.IsComplete = true
	}
}

// Get returns the current streaming entry for a conversation, if any.
func (b *Buffer) Get(conversationID string) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[conversationID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Drop atomically removes a conversation's streaming entry. Called when a
// signed message event with the same conversation arrives via the
// classifier, so the final content replaces the preview without a visible
// gap.
func (b *Buffer) Drop(conversationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, conversationID)
}

func (b *Buffer) entryLocked(conversationID string) *Entry {
	e, ok := b.entries[conversationID]
	if !ok {
		e = &Entry{ConversationID: conversationID}
		b.entries[conversationID] = e
	}
	return e
}
