package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestEventBus_DeliversByType(t *testing.T) {
	bus := NewEventBus(zap.NewNop(), 4)
	defer bus.Shutdown()

	stateCh, unsubState := bus.Subscribe(EventStateChanged)
	defer unsubState()
	allCh, unsubAll := bus.Subscribe()
	defer unsubAll()

	bus.Publish(EventProgress, "p")
	bus.Publish(EventStateChanged, "s")

	evt := <-stateCh
	assert.Equal(t, EventStateChanged, evt.Type)
	assert.Equal(t, "s", evt.Payload)
	assert.NotEmpty(t, evt.ID)
	assert.False(t, evt.Timestamp.IsZero())
	assert.Len(t, stateCh, 0, "progress events must not reach a state subscriber")

	assert.Equal(t, EventProgress, (<-allCh).Type)
	assert.Equal(t, EventStateChanged, (<-allCh).Type)
}

func TestEventBus_DropsWhenFull(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	bus := NewEventBus(zap.New(core), 1)
	defer bus.Shutdown()

	ch, unsubscribe := bus.Subscribe(EventProgress)
	defer unsubscribe()

	bus.Publish(EventProgress, 1)
	bus.Publish(EventProgress, 2)

	assert.Equal(t, 1, (<-ch).Payload)
	assert.Len(t, ch, 0)
	assert.Equal(t, 1, logs.FilterMessage("Subscriber buffer full, dropping event").Len())
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(zap.NewNop(), 4)
	defer bus.Shutdown()

	ch, unsubscribe := bus.Subscribe(EventPlanReady, EventProgress)
	unsubscribe()
	unsubscribe()

	_, open := <-ch
	assert.False(t, open)
	assert.NotPanics(t, func() { bus.Publish(EventPlanReady, nil) })
}

func TestEventBus_Shutdown(t *testing.T) {
	bus := NewEventBus(zap.NewNop(), 0)

	multi, unsubscribe := bus.Subscribe(EventStateChanged, EventProgress)
	bus.Shutdown()
	bus.Shutdown()

	_, open := <-multi
	assert.False(t, open, "shutdown must close each channel once")
	assert.NotPanics(t, unsubscribe)
	assert.NotPanics(t, func() { bus.Publish(EventStateChanged, nil) })

	late, _ := bus.Subscribe()
	_, open = <-late
	require.False(t, open, "subscribing after shutdown yields a closed channel")
}
