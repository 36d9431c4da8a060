package negotiation

// Typed NATS events for the negotiation lifecycle, published under
// "negotiation.<action>.<caseID>".

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/payloadregistry"
)

// RegisterPayloads registers the negotiation event payload types with
// the supplied registry.
func RegisterPayloads(reg *payloadregistry.Registry) error {
	registrations := []*payloadregistry.Registration{
		{
			Domain:      "negotiation",
			Category:    "options-presented",
			Version:     "v1",
			Description: "Settlement options presented to the parties",
			Factory:     func() any { return &OptionsPresentedEvent{} },
		},
		{
			Domain:      "negotiation",
			Category:    "selection-recorded",
			Version:     "v1",
			Description: "Party recorded a selection in a round",
			Factory:     func() any { return &SelectionRecordedEvent{} },
		},
		{
			Domain:      "negotiation",
			Category:    "consensus-reached",
			Version:     "v1",
			Description: "All parties agreed on one option",
			Factory:     func() any { return &ConsensusReachedEvent{} },
		},
		{
			Domain:      "negotiation",
			Category:    "compromise-proposed",
			Version:     "v1",
			Description: "Compromise option synthesized after disagreement",
			Factory:     func() any { return &CompromiseProposedEvent{} },
		},
		{
			Domain:      "negotiation",
			Category:    "escalated",
			Version:     "v1",
			Description: "Case left mediation for the court path",
			Factory:     func() any { return &EscalatedEvent{} },
		},
		{
			Domain:      "negotiation",
			Category:    "round-expired",
			Version:     "v1",
			Description: "Round deadline passed before agreement",
			Factory:     func() any { return &RoundExpiredEvent{} },
		},
	}
	for _, r := range registrations {
		if err := reg.Register(r); err != nil {
			return fmt.Errorf("failed to register %s payload: %w", r.Category, err)
		}
	}
	return nil
}

// OptionsPresentedEvent is published when a round opens with options.
type OptionsPresentedEvent struct {
	CaseID    string    `json:"case_id"`
	RoundID   string    `json:"round_id"`
	Round     int       `json:"round"`
	OptionIDs []string  `json:"option_ids"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OptionsPresentedEventType is the message type for round openings.
var OptionsPresentedEventType = message.Type{
	Domain:   "negotiation",
	Category: "options-presented",
	Version:  "v1",
}

// Schema returns the message type for this payload.
func (e *OptionsPresentedEvent) Schema() message.Type { return OptionsPresentedEventType }

// Subject returns the NATS subject for this event.
func (e *OptionsPresentedEvent) Subject() string {
	return fmt.Sprintf("negotiation.options.%s", e.CaseID)
}

// Validate validates the event.
func (e *OptionsPresentedEvent) Validate() error {
	if e.CaseID == "" {
		return fmt.Errorf("case_id is required")
	}
	if e.RoundID == "" {
		return fmt.Errorf("round_id is required")
	}
	if len(e.OptionIDs) == 0 {
		return fmt.Errorf("option_ids must be non-empty")
	}
	return nil
}

// MarshalJSON marshals the event to JSON.
func (e *OptionsPresentedEvent) MarshalJSON() ([]byte, error) {
	type Alias OptionsPresentedEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON unmarshals the event from JSON.
func (e *OptionsPresentedEvent) UnmarshalJSON(data []byte) error {
	type Alias OptionsPresentedEvent
	return json.Unmarshal(data, (*Alias)(e))
}

// SelectionRecordedEvent is published after a party's selection commits.
type SelectionRecordedEvent struct {
	CaseID    string    `json:"case_id"`
	RoundID   string    `json:"round_id"`
	PartyID   string    `json:"party_id"`
	OptionID  string    `json:"option_id"`
	Timestamp time.Time `json:"timestamp"`
}

// SelectionRecordedEventType is the message type for selections.
var SelectionRecordedEventType = message.Type{
	Domain:   "negotiation",
	Category: "selection-recorded",
	Version:  "v1",
}

// Schema returns the message type for this payload.
func (e *SelectionRecordedEvent) Schema() message.Type { return SelectionRecordedEventType }

// Subject returns the NATS subject for this event.
func (e *SelectionRecordedEvent) Subject() string {
	return fmt.Sprintf("negotiation.selection.%s", e.CaseID)
}

// Validate validates the event.
func (e *SelectionRecordedEvent) Validate() error {
	if e.CaseID == "" || e.RoundID == "" || e.PartyID == "" || e.OptionID == "" {
		return fmt.Errorf("case_id, round_id, party_id and option_id are required")
	}
	return nil
}

// MarshalJSON marshals the event to JSON.
func (e *SelectionRecordedEvent) MarshalJSON() ([]byte, error) {
	type Alias SelectionRecordedEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON unmarshals the event from JSON.
func (e *SelectionRecordedEvent) UnmarshalJSON(data []byte) error {
	type Alias SelectionRecordedEvent
	return json.Unmarshal(data, (*Alias)(e))
}

// ConsensusReachedEvent is published exactly once per consensus close.
type ConsensusReachedEvent struct {
	CaseID    string    `json:"case_id"`
	RoundID   string    `json:"round_id"`
	OptionID  string    `json:"option_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ConsensusReachedEventType is the message type for consensus closes.
var ConsensusReachedEventType = message.Type{
	Domain:   "negotiation",
	Category: "consensus-reached",
	Version:  "v1",
}

// Schema returns the message type for this payload.
func (e *ConsensusReachedEvent) Schema() message.Type { return ConsensusReachedEventType }

// Subject returns the NATS subject for this event.
func (e *ConsensusReachedEvent) Subject() string {
	return fmt.Sprintf("negotiation.consensus.%s", e.CaseID)
}

// Validate validates the event.
func (e *ConsensusReachedEvent) Validate() error {
	if e.CaseID == "" || e.RoundID == "" || e.OptionID == "" {
		return fmt.Errorf("case_id, round_id and option_id are required")
	}
	return nil
}

// MarshalJSON marshals the event to JSON.
func (e *ConsensusReachedEvent) MarshalJSON() ([]byte, error) {
	type Alias ConsensusReachedEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON unmarshals the event from JSON.
func (e *ConsensusReachedEvent) UnmarshalJSON(data []byte) error {
	type Alias ConsensusReachedEvent
	return json.Unmarshal(data, (*Alias)(e))
}

// CompromiseProposedEvent is published when disagreement produces a
// compromise follow-up round.
type CompromiseProposedEvent struct {
	CaseID        string    `json:"case_id"`
	RoundID       string    `json:"round_id"`
	NewRoundID    string    `json:"new_round_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Fallback      bool      `json:"fallback"`
	NearAgreement bool      `json:"near_agreement"`
	Timestamp     time.Time `json:"timestamp"`
}

// CompromiseProposedEventType is the message type for compromise rounds.
var CompromiseProposedEventType = message.Type{
	Domain:   "negotiation",
	Category: "compromise-proposed",
	Version:  "v1",
}

// Schema returns the message type for this payload.
func (e *CompromiseProposedEvent) Schema() message.Type { return CompromiseProposedEventType }

// Subject returns the NATS subject for this event.
func (e *CompromiseProposedEvent) Subject() string {
	return fmt.Sprintf("negotiation.compromise.%s", e.CaseID)
}

// Validate validates the event.
func (e *CompromiseProposedEvent) Validate() error {
	if e.CaseID == "" || e.RoundID == "" || e.NewRoundID == "" {
		return fmt.Errorf("case_id, round_id and new_round_id are required")
	}
	return nil
}

// MarshalJSON marshals the event to JSON.
func (e *CompromiseProposedEvent) MarshalJSON() ([]byte, error) {
	type Alias CompromiseProposedEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON unmarshals the event from JSON.
func (e *CompromiseProposedEvent) UnmarshalJSON(data []byte) error {
	type Alias CompromiseProposedEvent
	return json.Unmarshal(data, (*Alias)(e))
}

// EscalatedEvent is published when a case leaves mediation.
type EscalatedEvent struct {
	CaseID    string    `json:"case_id"`
	RoundID   string    `json:"round_id,omitempty"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// EscalatedEventType is the message type for escalations.
var EscalatedEventType = message.Type{
	Domain:   "negotiation",
	Category: "escalated",
	Version:  "v1",
}

// Schema returns the message type for this payload.
func (e *EscalatedEvent) Schema() message.Type { return EscalatedEventType }

// Subject returns the NATS subject for this event.
func (e *EscalatedEvent) Subject() string {
	return fmt.Sprintf("negotiation.escalated.%s", e.CaseID)
}

// Validate validates the event.
func (e *EscalatedEvent) Validate() error {
	if e.CaseID == "" {
		return fmt.Errorf("case_id is required")
	}
	if e.Reason == "" {
		return fmt.Errorf("reason is required")
	}
	return nil
}

// MarshalJSON marshals the event to JSON.
func (e *EscalatedEvent) MarshalJSON() ([]byte, error) {
	type Alias EscalatedEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON unmarshals the event from JSON.
func (e *EscalatedEvent) UnmarshalJSON(data []byte) error {
	type Alias EscalatedEvent
	return json.Unmarshal(data, (*Alias)(e))
}

// RoundExpiredEvent is published when the timeout processor closes a
// round whose deadline passed.
type RoundExpiredEvent struct {
	CaseID     string    `json:"case_id"`
	RoundID    string    `json:"round_id"`
	Selections int       `json:"selections"`
	Resolution string    `json:"resolution"` // "compromise" or "escalated"
	Timestamp  time.Time `json:"timestamp"`
}

// RoundExpiredEventType is the message type for round expiries.
var RoundExpiredEventType = message.Type{
	Domain:   "negotiation",
	Category: "round-expired",
	Version:  "v1",
}

// Schema returns the message type for this payload.
func (e *RoundExpiredEvent) Schema() message.Type { return RoundExpiredEventType }

// Subject returns the NATS subject for this event.
func (e *RoundExpiredEvent) Subject() string {
	return fmt.Sprintf("negotiation.expired.%s", e.CaseID)
}

// Validate validates the event.
func (e *RoundExpiredEvent) Validate() error {
	if e.CaseID == "" || e.RoundID == "" {
		return fmt.Errorf("case_id and round_id are required")
	}
	return nil
}

// MarshalJSON marshals the event to JSON.
func (e *RoundExpiredEvent) MarshalJSON() ([]byte, error) {
	type Alias RoundExpiredEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON unmarshals the event from JSON.
func (e *RoundExpiredEvent) UnmarshalJSON(data []byte) error {
	type Alias RoundExpiredEvent
	return json.Unmarshal(data, (*Alias)(e))
}
