package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// RecurringDueMessage asks a worker to materialize one recurring template.
// It carries identifiers only; the worker re-reads and re-checks the template.
type RecurringDueMessage struct {
	TemplateID string    `json:"template_id"`
	UserID     string    `json:"user_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewRecurringDueMessage creates a message stamped with now.
func NewRecurringDueMessage(templateID, userID string, now time.Time) *RecurringDueMessage {
	return &RecurringDueMessage{
		TemplateID: templateID,
		UserID:     userID,
		Timestamp:  now.UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecurringDueMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecurringDueMessageFromJSON decodes and validates a message body.
func RecurringDueMessageFromJSON(data []byte) (*RecurringDueMessage, error) {
	var msg RecurringDueMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.TemplateID == "" || msg.UserID == "" {
		return nil, fmt.Errorf("message missing template_id or user_id")
	}
	return &msg, nil
}
