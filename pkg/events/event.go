package events

import "time"

// Event is anything the backend announces on the bus: USER_REGISTERED,
// GENERATION_COMPLETED, SESSION_DELETED. The type doubles as the NATS
// subject suffix.
type Event interface {
	EventType() string
	Payload() map[string]interface{}
	Timestamp() time.Time
}

// BaseEvent is the plain implementation every emitter in this codebase
// uses; nothing here needs richer event types.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}
