package agent

import (
	"sync"

	"github.com/google/uuid"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
	"github.com/HOSH19/BurpSuite-CUA/internal/conversation"
)

// Session outlives runs. It owns the conversation history and the master
// plan cached for later runs.
type Session struct {
	ID string

	mu      sync.Mutex
	history *conversation.History
	plan    *schemas.MasterPlan
}

// NewSession creates an empty session. A blank id gets a random one.
func NewSession(id string) *Session {
	if id == "" {
		id = uuid.New().String()
	}
	return &Session{ID: id, history: conversation.NewHistory()}
}

// RestoreSession creates a session whose history starts with entries and
// whose cached plan is plan, for example both loaded from a Store. A nil plan
// leaves the next run to generate one.
func RestoreSession(id string, entries []schemas.ConversationEntry, plan *schemas.MasterPlan) *Session {
	s := NewSession(id)
	s.history.Append(entries...)
	s.plan = plan
	return s
}

// History returns the current history.
func (s *Session) History() *conversation.History {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history
}

// Plan returns the cached master plan, or nil.
func (s *Session) Plan() *schemas.MasterPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan
}

func (s *Session) setPlan(p *schemas.MasterPlan) {
	s.mu.Lock()
	s.plan = p
	s.mu.Unlock()
}

// appendEntries adds a batch to the history in one critical section.
func (s *Session) appendEntries(entries ...schemas.ConversationEntry) {
	s.mu.Lock()
	s.history.Append(entries...)
	s.mu.Unlock()
}

// Reset discards the cached plan and starts a new, empty history.
func (s *Session) Reset() {
	s.mu.Lock()
	s.plan = nil
	s.history = conversation.NewHistory()
	s.mu.Unlock()
}
