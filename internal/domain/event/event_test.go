package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{"submitted", TypeInstanceSubmitted, true},
		{"advanced", TypeInstanceAdvanced, true},
		{"forwarded", TypeInstanceForwarded, true},
		{"approved", TypeInstanceApproved, true},
		{"rejected", TypeInstanceRejected, true},
		{"returned", TypeInstanceReturned, true},
		{"auto approved", TypeDocumentAutoApproved, true},
		{"unknown", Type("instance.deleted"), false},
		{"empty", Type(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.eventType.IsValid())
		})
	}
}

func TestType_IsTerminal(t *testing.T) {
	assert.True(t, TypeInstanceApproved.IsTerminal())
	assert.True(t, TypeInstanceRejected.IsTerminal())
	assert.True(t, TypeInstanceReturned.IsTerminal())
	assert.False(t, TypeInstanceSubmitted.IsTerminal())
	assert.False(t, TypeInstanceForwarded.IsTerminal())
	assert.False(t, TypeDocumentAutoApproved.IsTerminal())
}

func TestNewEvent(t *testing.T) {
	before := time.Now()
	e := NewEvent(TypeInstanceSubmitted, 1, 42, map[string]interface{}{"step_order": 1})

	require.NotNil(t, e)
	assert.Len(t, e.ID, 36)
	assert.Equal(t, TypeInstanceSubmitted, e.Type)
	assert.Equal(t, int64(1), e.CompanyID)
	assert.Equal(t, int64(42), e.InstanceID)
	assert.False(t, e.Timestamp.Before(before))
	assert.Equal(t, int64(1), e.GetPayloadInt("step_order"))
}

func TestNewEvent_UniqueIDs(t *testing.T) {
	a := NewEvent(TypeInstanceApproved, 1, 1, nil)
	b := NewEvent(TypeInstanceApproved, 1, 1, nil)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotNil(t, a.Payload)
}

func TestEvent_WithPayloadDoesNotMutate(t *testing.T) {
	original := NewEvent(TypeInstanceRejected, 1, 7, map[string]interface{}{"comments": "missing receipt"})
	updated := original.WithPayload("actor", "bob")

	assert.Equal(t, "bob", updated.GetPayloadString("actor"))
	assert.Equal(t, "missing receipt", updated.GetPayloadString("comments"))
	assert.Empty(t, original.GetPayloadString("actor"))
	assert.Equal(t, original.ID, updated.ID)
}

func TestEvent_ForDocument(t *testing.T) {
	e := NewEvent(TypeInstanceApproved, 1, 7, nil).ForDocument("PAYMENT_VOUCHER", 55, 3)

	assert.Equal(t, "PAYMENT_VOUCHER", e.DocumentType)
	assert.Equal(t, int64(55), e.DocumentID)
	assert.Equal(t, int64(3), e.ActorID)
}

func TestEvent_GetPayloadMissingKeys(t *testing.T) {
	e := NewEvent(TypeInstanceForwarded, 1, 1, map[string]interface{}{"to": 5.0})

	assert.Equal(t, int64(5), e.GetPayloadInt("to"))
	assert.Equal(t, int64(0), e.GetPayloadInt("missing"))
	assert.Equal(t, "", e.GetPayloadString("to"))
}
