package handler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"device-rpc/internal/model"
)

func receive(t *testing.T, ch <-chan model.Event) model.Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "channel closed")
		return e
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return model.Event{}
	}
}

func TestEventBusFiltersByType(t *testing.T) {
	bus := NewEventBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Start(ctx)

	all, cancelAll := bus.Subscribe()
	defer cancelAll()
	motionOnly, cancelMotion := bus.Subscribe(model.EventMotionCompleted)
	defer cancelMotion()

	bus.Publish(model.NewEvent(model.EventConnectionOpened, "test", nil))
	bus.Publish(model.NewEvent(model.EventMotionCompleted, "test", map[string]any{"axis": "X"}))

	assert.Equal(t, model.EventConnectionOpened, receive(t, all).Type)
	assert.Equal(t, model.EventMotionCompleted, receive(t, all).Type)

	e := receive(t, motionOnly)
	assert.Equal(t, model.EventMotionCompleted, e.Type)
	assert.Equal(t, "X", e.Data["axis"])
}

func TestEventBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewEventBus(nil)
	ch, unsubscribe := bus.Subscribe()
	unsubscribe()
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok)

	// distributing after unsubscribe must not panic
	bus.distributeEvent(model.NewEvent(model.EventMotionStopped, "test", nil))
}
