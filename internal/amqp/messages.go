package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// RecordChangedMessage tells the mirror worker that an owner's inventory
// changed. It carries no record data: the worker reloads the owner's
// records from the store and rewrites the whole export.
type RecordChangedMessage struct {
	OwnerID   string    `json:"ownerId"`
	RecordID  string    `json:"recordId,omitempty"`
	Op        string    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRecordChangedMessage creates a change message stamped with the current time
func NewRecordChangedMessage(ownerID, recordID, op string) *RecordChangedMessage {
	return &RecordChangedMessage{
		OwnerID:   ownerID,
		RecordID:  recordID,
		Op:        op,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecordChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordChangedMessageFromJSON decodes a message, rejecting one without owner
func RecordChangedMessageFromJSON(data []byte) (*RecordChangedMessage, error) {
	var msg RecordChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.OwnerID == "" {
		return nil, errors.New("message has no owner id")
	}
	return &msg, nil
}
