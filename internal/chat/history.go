package chat

import (
	"time"

	"github.com/google/uuid"
)

// DefaultHistoryCap bounds how many past sessions are retained; the oldest
// entries beyond the cap are evicted.
const DefaultHistoryCap = 50

const titleRuneLimit = 30

// HistoryEntry is a saved snapshot of a past session, addressable by id.
type HistoryEntry struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	Timestamp time.Time `json:"timestamp"`
}

// entryTitle derives a sidebar title from the first message of a session,
// truncated to roughly thirty characters.
func entryTitle(messages []Message) string {
	if len(messages) == 0 {
		return "New Chat"
	}
	runes := []rune(messages[0].Text)
	if len(runes) <= titleRuneLimit {
		return string(runes)
	}
	return string(runes[:titleRuneLimit]) + "..."
}

func (m *Manager) findEntryLocked(id uuid.UUID) int {
	for i := range m.history {
		if m.history[i].ID == id {
			return i
		}
	}
	return -1
}

// prependHistoryLocked inserts a new entry at the front, keeping the list
// newest-first and within the cap.
func (m *Manager) prependHistoryLocked(entry HistoryEntry) {
	m.history = append([]HistoryEntry{entry}, m.history...)
	if len(m.history) > m.historyCap {
		m.history = m.history[:m.historyCap]
	}
}

// upsertHistoryLocked records the just-completed turn. A session linked to an
// existing entry updates it in place; a fresh session gets a new entry on its
// first successful reply.
func (m *Manager) upsertHistoryLocked(reply Message) uuid.UUID {
	snapshot := append(copyMessages(m.messages), reply)
	now := time.Now()

	if idx := m.findEntryLocked(m.activeID); idx >= 0 {
		m.history[idx].Messages = snapshot
		m.history[idx].Timestamp = now
		return m.history[idx].ID
	}

	entry := HistoryEntry{
		ID:        uuid.New(),
		Title:     entryTitle(snapshot),
		Messages:  snapshot,
		Timestamp: now,
	}
	m.prependHistoryLocked(entry)
	m.activeID = entry.ID
	return entry.ID
}
