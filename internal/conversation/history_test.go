package conversation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
)

func TestHistory_AppendOnly(t *testing.T) {
	h := NewHistory(schemas.ConversationEntry{Role: schemas.RoleHuman, Text: "Enable proxy interception"})
	h.Append(agentEntry("step one"), agentEntry("step two"))

	require.Equal(t, 3, h.Len())
	entries := h.Entries()
	assert.Equal(t, "Enable proxy interception", entries[0].Text)
	assert.Equal(t, "step two", entries[2].Text)

	// Mutating the copy must not reach the history.
	entries[1].Text = "rewritten"
	entries[1].Timing.Start = time.Time{}
	again := h.Entries()
	assert.Equal(t, "step one", again[1].Text)
	assert.False(t, again[1].Timing.Start.IsZero())

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, "step two", last.Text)
}

func TestHistory_Empty(t *testing.T) {
	h := NewHistory()
	_, ok := h.Last()
	assert.False(t, ok)
	assert.Zero(t, h.Len())
	assert.Empty(t, h.Entries())
	h.Append()
	assert.Zero(t, h.Len())
}

func TestHistory_ConcurrentAppend(t *testing.T) {
	h := NewHistory()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Append(agentEntry("a"), agentEntry("b"))
			_ = h.Entries()
		}()
	}
	wg.Wait()

	entries := h.Entries()
	require.Len(t, entries, 40)
	// Batches are never interleaved.
	for i := 0; i < len(entries); i += 2 {
		assert.Equal(t, "a", entries[i].Text)
		assert.Equal(t, "b", entries[i+1].Text)
	}
}

func TestDedupKey(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 5, time.FixedZone("X", 3600))
	e := schemas.ConversationEntry{Role: schemas.RoleAgent, Text: "hi", Timing: &schemas.Timing{Start: start}}
	assert.Equal(t, "hi|agent|2025-03-01T11:00:00.000000005Z", DedupKey(e))

	assert.Equal(t, "hi|human|", DedupKey(schemas.ConversationEntry{Role: schemas.RoleHuman, Text: "hi"}))
}

func TestNewEntries(t *testing.T) {
	a := agentEntry("a")
	b := agentEntry("b")
	c := agentEntry("c")
	human := schemas.ConversationEntry{Role: schemas.RoleHuman, Text: "a", Timing: a.Timing}

	got := NewEntries([]schemas.ConversationEntry{a}, []schemas.ConversationEntry{a, b, human, b, c})

	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].Text)
	assert.Equal(t, schemas.RoleHuman, got[1].Role, "same text but different role is a new entry")
	assert.Equal(t, "c", got[2].Text)

	assert.Empty(t, NewEntries([]schemas.ConversationEntry{a, b}, []schemas.ConversationEntry{b, a}))
}
