// File: internal/conversation/history.go
package conversation

import (
	"strings"
	"sync"
	"time"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
)

// History is the ordered, append-only conversation of one session.
type History struct {
	mu      sync.RWMutex
	entries []schemas.ConversationEntry
}

// NewHistory returns a history seeded with copies of entries.
func NewHistory(entries ...schemas.ConversationEntry) *History {
	h := &History{}
	h.Append(entries...)
	return h
}

// Append adds copies of entries at the end in one step.
func (h *History) Append(entries ...schemas.ConversationEntry) {
	if len(entries) == 0 {
		return
	}
	batch := make([]schemas.ConversationEntry, len(entries))
	for i := range entries {
		batch[i] = entries[i].Clone()
	}
	h.mu.Lock()
	h.entries = append(h.entries, batch...)
	h.mu.Unlock()
}

// Entries returns a deep copy of the history.
func (h *History) Entries() []schemas.ConversationEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]schemas.ConversationEntry, len(h.entries))
	for i := range h.entries {
		out[i] = h.entries[i].Clone()
	}
	return out
}

// Last returns a copy of the newest entry.
func (h *History) Last() (schemas.ConversationEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.entries) == 0 {
		return schemas.ConversationEntry{}, false
	}
	return h.entries[len(h.entries)-1].Clone(), true
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// DedupKey identifies an entry for persistence as text|role|timing.start.
func DedupKey(e schemas.ConversationEntry) string {
	start := ""
	if t := e.StartTime(); !t.IsZero() {
		start = t.UTC().Format(time.RFC3339Nano)
	}
	return strings.Join([]string{e.Text, string(e.Role), start}, "|")
}

// NewEntries returns the candidates whose key is neither persisted nor
// repeated earlier in candidate, keeping their order.
func NewEntries(persisted, candidate []schemas.ConversationEntry) []schemas.ConversationEntry {
	seen := make(map[string]struct{}, len(persisted)+len(candidate))
	for _, e := range persisted {
		seen[DedupKey(e)] = struct{}{}
	}
	var out []schemas.ConversationEntry
	for _, e := range candidate {
		key := DedupKey(e)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}
