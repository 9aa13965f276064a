package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Op is the kind of change a sync message reports.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// TransactionSyncMessage tells the export worker that a transaction changed.
// It carries only the id and the row version; the worker reads the row.
type TransactionSyncMessage struct {
	ID        string    `json:"id"`
	Version   int64     `json:"version"`
	Op        Op        `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTransactionSyncMessage(id string, version int64, op Op) *TransactionSyncMessage {
	return &TransactionSyncMessage{
		ID:        id,
		Version:   version,
		Op:        op,
		Timestamp: time.Now().UTC(),
	}
}

func (m *TransactionSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionSyncMessageFromJSON decodes and checks a message body.
func TransactionSyncMessageFromJSON(data []byte) (*TransactionSyncMessage, error) {
	var msg TransactionSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errors.New("sync message without id")
	}
	switch msg.Op {
	case OpUpsert, OpDelete:
	case "":
		msg.Op = OpUpsert
	default:
		return nil, fmt.Errorf("unknown sync op %q", msg.Op)
	}
	return &msg, nil
}
