package event

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event raised after a workflow transaction commits
type Event struct {
	ID           string                 `json:"id"`
	Type         Type                   `json:"type"`
	CompanyID    int64                  `json:"company_id"`
	InstanceID   int64                  `json:"instance_id"`
	DocumentType string                 `json:"document_type"`
	DocumentID   int64                  `json:"document_id"`
	ActorID      int64                  `json:"actor_id"`
	Payload      map[string]interface{} `json:"payload"`
	Timestamp    time.Time              `json:"timestamp"`
}

// NewEvent creates a new domain event with generated ID and timestamp
func NewEvent(eventType Type, companyID, instanceID int64, payload map[string]interface{}) *Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		CompanyID:  companyID,
		InstanceID: instanceID,
		Payload:    payload,
		Timestamp:  time.Now(),
	}
}

// ForDocument returns a copy of the event bound to a business document and actor
func (e *Event) ForDocument(documentType string, documentID, actorID int64) *Event {
	cp := *e
	cp.DocumentType = documentType
	cp.DocumentID = documentID
	cp.ActorID = actorID
	return &cp
}

// WithPayload returns a new Event with an added payload key-value pair
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	cp := *e
	cp.Payload = newPayload
	return &cp
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if str, ok := e.Payload[key].(string); ok {
		return str
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	switch v := e.Payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
