package amqp

import (
	"encoding/json"
	"time"

	"despesas/internal/core"
)

// LedgerChangedMessage announces that the persisted snapshot changed.
// Consumers reload the snapshot instead of trusting the message payload.
type LedgerChangedMessage struct {
	Op        string    `json:"op"`
	ID        int64     `json:"id"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerChangedMessage(change core.LedgerChange) *LedgerChangedMessage {
	ts := change.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &LedgerChangedMessage{
		Op:        change.Op,
		ID:        change.ID,
		Count:     change.Count,
		Timestamp: ts,
	}
}

// Change converts the message back into the domain event.
func (m *LedgerChangedMessage) Change() core.LedgerChange {
	return core.LedgerChange{Op: m.Op, ID: m.ID, Count: m.Count, Timestamp: m.Timestamp}
}

func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
