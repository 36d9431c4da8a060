package dispute

// Typed NATS events for the case lifecycle, published under
// "dispute.<action>.<caseID>" so consumers can subscribe per event type or
// per case via subject wildcards.

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/payloadregistry"
)

// RegisterPayloads registers the dispute event payload types with the
// supplied registry.
func RegisterPayloads(reg *payloadregistry.Registry) error {
	if err := reg.Register(&payloadregistry.Registration{
		Domain:      "dispute",
		Category:    "stage-changed",
		Version:     "v1",
		Description: "Case moved to a new lifecycle stage",
		Factory:     func() any { return &StageChangedEvent{} },
	}); err != nil {
		return fmt.Errorf("failed to register StageChangedEvent: %w", err)
	}

	if err := reg.Register(&payloadregistry.Registration{
		Domain:      "dispute",
		Category:    "statement-submitted",
		Version:     "v1",
		Description: "Party submitted a statement",
		Factory:     func() any { return &StatementSubmittedEvent{} },
	}); err != nil {
		return fmt.Errorf("failed to register StatementSubmittedEvent: %w", err)
	}
	return nil
}

// StageChangedEvent is published after every committed stage transition.
type StageChangedEvent struct {
	CaseID    string    `json:"case_id"`
	From      Stage     `json:"from"`
	To        Stage     `json:"to"`
	Actor     string    `json:"actor"`
	Note      string    `json:"note,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StageChangedEventType is the message type for stage change events.
var StageChangedEventType = message.Type{
	Domain:   "dispute",
	Category: "stage-changed",
	Version:  "v1",
}

// Schema returns the message type for this payload.
func (e *StageChangedEvent) Schema() message.Type {
	return StageChangedEventType
}

// Subject returns the NATS subject for this event.
func (e *StageChangedEvent) Subject() string {
	return fmt.Sprintf("dispute.stage.%s", e.CaseID)
}

// Validate validates the event.
func (e *StageChangedEvent) Validate() error {
	if e.CaseID == "" {
		return fmt.Errorf("case_id is required")
	}
	if !e.To.IsValid() {
		return fmt.Errorf("invalid target stage: %q", e.To)
	}
	return nil
}

// MarshalJSON marshals the event to JSON.
func (e *StageChangedEvent) MarshalJSON() ([]byte, error) {
	type Alias StageChangedEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON unmarshals the event from JSON.
func (e *StageChangedEvent) UnmarshalJSON(data []byte) error {
	type Alias StageChangedEvent
	return json.Unmarshal(data, (*Alias)(e))
}

// StatementSubmittedEvent is published when a party statement is recorded.
type StatementSubmittedEvent struct {
	CaseID    string    `json:"case_id"`
	PartyID   string    `json:"party_id"`
	Timestamp time.Time `json:"timestamp"`
}

// StatementSubmittedEventType is the message type for statement events.
var StatementSubmittedEventType = message.Type{
	Domain:   "dispute",
	Category: "statement-submitted",
	Version:  "v1",
}

// Schema returns the message type for this payload.
func (e *StatementSubmittedEvent) Schema() message.Type {
	return StatementSubmittedEventType
}

// Subject returns the NATS subject for this event.
func (e *StatementSubmittedEvent) Subject() string {
	return fmt.Sprintf("dispute.statement.%s", e.CaseID)
}

// Validate validates the event.
func (e *StatementSubmittedEvent) Validate() error {
	if e.CaseID == "" {
		return fmt.Errorf("case_id is required")
	}
	if e.PartyID == "" {
		return fmt.Errorf("party_id is required")
	}
	return nil
}

// MarshalJSON marshals the event to JSON.
func (e *StatementSubmittedEvent) MarshalJSON() ([]byte, error) {
	type Alias StatementSubmittedEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON unmarshals the event from JSON.
func (e *StatementSubmittedEvent) UnmarshalJSON(data []byte) error {
	type Alias StatementSubmittedEvent
	return json.Unmarshal(data, (*Alias)(e))
}
