package amqp

import (
	"encoding/json"
	"time"
)

// Change sources.
const (
	SourceDispatch = "dispatch"
	SourceReplay   = "replay"
)

// InvoicesChangedMessage tells other processes that an owner's invoices
// changed in the remote store. It carries no rows; consumers refetch.
type InvoicesChangedMessage struct {
	OwnerID   string    `json:"owner_id"`
	Months    []string  `json:"months,omitempty"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

func NewInvoicesChangedMessage(owner, source string, months []string) *InvoicesChangedMessage {
	return &InvoicesChangedMessage{
		OwnerID:   owner,
		Months:    months,
		Source:    source,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *InvoicesChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// InvoicesChangedMessageFromJSON decodes a message body.
func InvoicesChangedMessageFromJSON(data []byte) (*InvoicesChangedMessage, error) {
	var msg InvoicesChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
