package session

import (
	"encoding/json"
	"time"
)

// EventType identifies a session lifecycle event.
type EventType string

const (
	EventSessionStarted   EventType = "session_started"
	EventIterationStarted EventType = "iteration_started"
	EventOffload          EventType = "offload"
	EventSessionEnded     EventType = "session_ended"
)

// Event is one session telemetry message.
type Event struct {
	Type       EventType `json:"type"`
	SessionID  string    `json:"session_id"`
	Experiment string    `json:"experiment"`
	Timestamp  time.Time `json:"timestamp"`
	Iteration  int       `json:"iteration,omitempty"`
	Iterations int       `json:"iterations,omitempty"`
	FilesMoved int       `json:"files_moved,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// ToJSON marshals the event for publishing.
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Emitter publishes session events. Emit must not block the recording loop
// on delivery problems; implementations log and drop instead.
type Emitter interface {
	Emit(e Event)
}
