package agent

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
	"github.com/HOSH19/BurpSuite-CUA/internal/progress"
)

// EventType names what changed in a run.
type EventType string

const (
	EventStateChanged    EventType = "state_changed"    // Payload: schemas.RunState
	EventEntriesAppended EventType = "entries_appended" // Payload: EntriesAppended
	EventProgress        EventType = "progress"         // Payload: ProgressUpdate
	EventPlanReady       EventType = "plan_ready"       // Payload: *schemas.MasterPlan
)

var allEventTypes = []EventType{EventStateChanged, EventEntriesAppended, EventProgress, EventPlanReady}

// Event is the envelope delivered to subscribers.
type Event struct {
	ID        string
	Timestamp time.Time
	Type      EventType
	Payload   interface{}
}

// EntriesAppended carries a merged batch after it reached the history.
type EntriesAppended struct {
	LoopIndex int
	Entries   []schemas.ConversationEntry
}

// ProgressUpdate is the plan position reported by an agent thought.
type ProgressUpdate struct {
	LoopIndex  int
	Progress   progress.Progress
	PlanSteps  int
	EntryIndex int
}

// EventBus fans events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type EventBus struct {
	logger      *zap.Logger
	subscribers map[EventType][]chan Event
	mu          sync.RWMutex
	bufferSize  int
	isShutdown  bool
}

// NewEventBus creates a bus whose subscriber channels hold bufferSize events.
func NewEventBus(logger *zap.Logger, bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &EventBus{
		logger:      logger.Named("event_bus"),
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Publish delivers an event of type t to every subscriber of t.
func (b *EventBus) Publish(t EventType, payload interface{}) {
	evt := Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      t,
		Payload:   payload,
	}

	// Sends are non-blocking, so holding the read lock here cannot stall
	// Shutdown for long and guarantees no send hits a closed channel.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.isShutdown {
		return
	}
	for _, ch := range b.subscribers[t] {
		select {
		case ch <- evt:
		default:
			b.logger.Debug("Subscriber buffer full, dropping event", zap.String("type", string(t)))
		}
	}
}

// Subscribe returns a channel receiving the given types, or every type when
// none is given, and a function that unsubscribes and closes the channel.
func (b *EventBus) Subscribe(types ...EventType) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	if b.isShutdown {
		close(ch)
		return ch, func() {}
	}
	if len(types) == 0 {
		types = allEventTypes
	}
	for _, t := range types {
		b.subscribers[t] = append(b.subscribers[t], ch)
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.isShutdown {
				return
			}
			for _, t := range types {
				subs := b.subscribers[t]
				for i, sub := range subs {
					if sub == ch {
						b.subscribers[t] = append(subs[:i], subs[i+1:]...)
						break
					}
				}
			}
			close(ch)
		})
	}
	return ch, unsubscribe
}

// Shutdown closes every subscriber channel. Later publishes are dropped.
func (b *EventBus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isShutdown {
		return
	}
	b.isShutdown = true

	unique := make(map[chan Event]struct{})
	for _, subs := range b.subscribers {
		for _, ch := range subs {
			unique[ch] = struct{}{}
		}
	}
	for ch := range unique {
		close(ch)
	}
	b.subscribers = make(map[EventType][]chan Event)
}
