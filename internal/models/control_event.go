package models

import "time"

// Journal event types.
const (
	EventSubmit       = "SUBMIT"
	EventAck          = "ACK"
	EventRollback     = "ROLLBACK"
	EventBusy         = "BUSY"
	EventRejected     = "REJECTED"
	EventConnected    = "CONNECTED"
	EventDisconnected = "DISCONNECTED"
)

// ControlEvent is a single journal entry.
type ControlEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`
	UnitID      string    `json:"unit_id,omitempty"`
	Channel     string    `json:"channel,omitempty"`
	Description string    `json:"description"`
	Metadata    any       `json:"metadata,omitempty"`
}
