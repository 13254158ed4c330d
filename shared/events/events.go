package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	ActorUserID   string          `json:"actor_user_id,omitempty"`
	ActorRole     string          `json:"actor_role,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

const (
	TopicRequestEvents = "request.events"
	TopicAlerts        = "alerts"
)
