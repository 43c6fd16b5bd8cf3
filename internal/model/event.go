// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventConnectionOpened EventType = "connection.opened"
	EventConnectionClosed EventType = "connection.closed"
	EventConnectionFailed EventType = "connection.failed"
	EventMotionStarted    EventType = "motion.started"
	EventMotionProgress   EventType = "motion.progress"
	EventMotionCompleted  EventType = "motion.completed"
	EventMotionStopped    EventType = "motion.stopped"
	EventMotionError      EventType = "motion.error"
)

// Event is one notification fanned out to websocket clients
type Event struct {
	ID        uuid.UUID      `json:"id"`
	Type      EventType      `json:"type"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent stamps an event with a fresh id and the current time
func NewEvent(eventType EventType, source string, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		Source:    source,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Publisher accepts events for distribution. Publish must not block.
type Publisher interface {
	Publish(event Event)
}

// Discard drops every event
type Discard struct{}

func (Discard) Publish(Event) {}
