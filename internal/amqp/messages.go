package amqp

import (
	"encoding/json"
	"time"

	"billed/internal/core"
)

// EventType names what happened to a bill.
type EventType string

const (
	EventBillCreated EventType = "bill.created"
	EventBillUpdated EventType = "bill.updated"
)

// BillEvent is published after the API stored a bill. It carries no proof content;
// consumers fetch the bill when they need more than its status.
type BillEvent struct {
	Type      EventType   `json:"type"`
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Status    core.Status `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewBillEvent(t EventType, b core.Bill) *BillEvent {
	return &BillEvent{
		Type:      t,
		ID:        b.ID,
		Email:     b.Email,
		Status:    b.Status,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *BillEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BillEventFromJSON(data []byte) (*BillEvent, error) {
	var msg BillEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
