package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event types carried on the transaction events queue.
const (
	EventCreated = "created"
	EventDeleted = "deleted"
)

// TransactionEvent is a lightweight notification that a transaction changed.
// It carries ids only; consumers load the row from the database.
type TransactionEvent struct {
	Event         string    `json:"event"`
	TransactionID string    `json:"transaction_id"`
	OwnerID       string    `json:"owner_id"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewCreatedEvent(id, ownerID string) *TransactionEvent {
	return &TransactionEvent{Event: EventCreated, TransactionID: id, OwnerID: ownerID, Timestamp: time.Now().UTC()}
}

func NewDeletedEvent(id, ownerID string) *TransactionEvent {
	return &TransactionEvent{Event: EventDeleted, TransactionID: id, OwnerID: ownerID, Timestamp: time.Now().UTC()}
}

func (m *TransactionEvent) Validate() error {
	if m.Event != EventCreated && m.Event != EventDeleted {
		return fmt.Errorf("unknown event %q", m.Event)
	}
	if m.TransactionID == "" {
		return errors.New("missing transaction_id")
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionEventFromJSON decodes and validates a message body.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var msg TransactionEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
