package store

import (
	"context"
	"sync"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
	"github.com/HOSH19/BurpSuite-CUA/internal/conversation"
)

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	closed   bool
	entries  map[string][]schemas.ConversationEntry
	keys     map[string]map[string]struct{}
	runState map[string]schemas.RunState
	plans    map[string]schemas.MasterPlan
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string][]schemas.ConversationEntry),
		keys:     make(map[string]map[string]struct{}),
		runState: make(map[string]schemas.RunState),
		plans:    make(map[string]schemas.MasterPlan),
	}
}

func (m *MemoryStore) LoadHistory(ctx context.Context, sessionID string) ([]schemas.ConversationEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	src := m.entries[sessionID]
	out := make([]schemas.ConversationEntry, len(src))
	for i := range src {
		out[i] = src[i].Clone()
	}
	return out, nil
}

func (m *MemoryStore) AppendHistory(ctx context.Context, sessionID string, entries []schemas.ConversationEntry) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	keys, ok := m.keys[sessionID]
	if !ok {
		keys = make(map[string]struct{})
		m.keys[sessionID] = keys
	}
	written := 0
	for _, e := range entries {
		key := conversation.DedupKey(e)
		if _, dup := keys[key]; dup {
			continue
		}
		keys[key] = struct{}{}
		m.entries[sessionID] = append(m.entries[sessionID], e.Clone())
		written++
	}
	return written, nil
}

func (m *MemoryStore) SaveRunState(ctx context.Context, sessionID string, state schemas.RunState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.runState[sessionID] = state
	return nil
}

func (m *MemoryStore) SavePlan(ctx context.Context, sessionID string, plan schemas.MasterPlan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.plans[sessionID] = plan
	return nil
}

func (m *MemoryStore) LoadPlan(ctx context.Context, sessionID string) (*schemas.MasterPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	p, ok := m.plans[sessionID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// RunState returns the last saved state for sessionID.
func (m *MemoryStore) RunState(sessionID string) (schemas.RunState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.runState[sessionID]
	return s, ok
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
