package entity

import "time"

// Event is the envelope published to Kafka for order and product changes.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	EntityID   int64     `json:"entity_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

const (
	EventOrderCreated     = "created"
	EventOrderUpdated     = "updated"
	EventOrderItemAdded   = "item-added"
	EventOrderItemRemoved = "item-removed"
	EventOrderAccepted    = "accepted"
	EventOrderDeleted     = "deleted"

	EventProductUpdated = "updated"
	EventProductDeleted = "deleted"
)
