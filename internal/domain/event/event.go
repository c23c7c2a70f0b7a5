package event

import (
	"time"

	"github.com/google/uuid"
)

// Payload keys used across lifecycle events. The dispatcher does not
// interpret payloads; these names are the contract with the external
// notification pipeline.
const (
	KeySubmitterID  = "submitter_id"
	KeyNextRole     = "next_approver_role"
	KeyNextAssignee = "next_assignee_id"
	KeyReason       = "reason"
	KeyAmountPaid   = "amount_paid"
	KeyStepNumber   = "step_number"
)

// Event represents a lifecycle event emitted after a core transaction
// commits. Delivery is best-effort; consumers must tolerate duplicates.
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	RequisitionID int64                  `json:"requisition_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// New creates a new lifecycle event with a generated ID and timestamp.
func New(eventType Type, requisitionID int64, payload map[string]interface{}) *Event {
	id := uuid.NewString()
	return &Event{
		ID:            id,
		Type:          eventType,
		RequisitionID: requisitionID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: id,
	}
}

// NewWithCorrelation creates an event linked to an existing correlation chain.
func NewWithCorrelation(eventType Type, requisitionID int64, payload map[string]interface{}, correlationID string) *Event {
	e := New(eventType, requisitionID, payload)
	e.CorrelationID = correlationID
	return e
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}
