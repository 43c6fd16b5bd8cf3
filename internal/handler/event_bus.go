// internal/handler/event_bus.go
package handler

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"device-rpc/internal/model"
)

// EventBus manages event distribution
type EventBus struct {
	subscribers map[int]*subscription
	nextID      int
	events      chan model.Event
	mutex       sync.RWMutex
	logger      *zap.Logger
}

type subscription struct {
	types map[model.EventType]bool
	ch    chan model.Event
}

func (s *subscription) wants(t model.EventType) bool {
	return len(s.types) == 0 || s.types[t]
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		subscribers: make(map[int]*subscription),
		events:      make(chan model.Event, 1000),
		logger:      logger.With(zap.String("component", "event-bus")),
	}
}

// Start distributes events until ctx is done
func (eb *EventBus) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eb.events:
			eb.distributeEvent(event)
		}
	}
}

// Publish queues an event without blocking; a full queue drops it
func (eb *EventBus) Publish(event model.Event) {
	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.Type)),
		)
	}
}

// Subscribe returns a channel receiving events of the given types, or of
// every type when none are given. The returned function cancels the
// subscription and closes the channel.
func (eb *EventBus) Subscribe(types ...model.EventType) (<-chan model.Event, func()) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	sub := &subscription{
		types: make(map[model.EventType]bool, len(types)),
		ch:    make(chan model.Event, 100),
	}
	for _, t := range types {
		sub.types[t] = true
	}

	id := eb.nextID
	eb.nextID++
	eb.subscribers[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			eb.mutex.Lock()
			delete(eb.subscribers, id)
			close(sub.ch)
			eb.mutex.Unlock()
		})
	}
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event model.Event) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for _, sub := range eb.subscribers {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}
