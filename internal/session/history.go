package session

import "sync"

// HistoryStore keeps the per-session conversation transcript. Turns are
// append-only; a session's slot is created at initiation and deleted at
// teardown. Append on a deleted slot reports false so late writers can
// drop their turn instead of resurrecting the session.
type HistoryStore struct {
	mu    sync.RWMutex
	turns map[string][]ConversationTurn
}

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{turns: make(map[string][]ConversationTurn)}
}

func (h *HistoryStore) Create(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.turns[id]; !ok {
		h.turns[id] = []ConversationTurn{}
	}
}

// Append adds a turn and reports whether the session still had a
// transcript slot.
func (h *HistoryStore) Append(id string, t ConversationTurn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	existing, ok := h.turns[id]
	if !ok {
		return false
	}
	h.turns[id] = append(existing, t)
	return true
}

// Snapshot returns a copy of the transcript, oldest turn first.
func (h *HistoryStore) Snapshot(id string) ([]ConversationTurn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	existing, ok := h.turns[id]
	if !ok {
		return nil, false
	}
	out := make([]ConversationTurn, len(existing))
	copy(out, existing)
	return out, true
}

// Remove deletes the transcript slot and returns the final turns.
func (h *HistoryStore) Remove(id string) []ConversationTurn {
	h.mu.Lock()
	defer h.mu.Unlock()
	existing := h.turns[id]
	delete(h.turns, id)
	return existing
}

func (h *HistoryStore) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}
