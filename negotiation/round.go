// Package negotiation owns the selection rounds: the options presented to
// the parties, their selections, consensus evaluation, and the compromise
// path when selections conflict.
//
// A round is the unit of agreement. It opens with a set of options, each
// party records exactly one current selection, and the round closes exactly
// once: in consensus, into a compromise follow-up round, or by escalation.
// Closing is serialized by the round store's revision compare-and-swap, so
// any number of concurrent handlers can race on the final selection and
// only one drives the close.
package negotiation

import (
	"time"

	"github.com/google/uuid"

	"github.com/accordhq/accord/proposal"
)

// RoundStatus is the lifecycle status of a negotiation round.
type RoundStatus string

// Round statuses.
const (
	// RoundOpen accepts selections.
	RoundOpen RoundStatus = "open"

	// RoundConsensus closed with all parties on one option.
	RoundConsensus RoundStatus = "consensus"

	// RoundCompromisePending closed in disagreement; a compromise
	// follow-up round supersedes it.
	RoundCompromisePending RoundStatus = "compromise_pending"

	// RoundEscalated closed without agreement and the case left mediation.
	RoundEscalated RoundStatus = "escalated"
)

// SettlementOption is a generated option bound to a round. Option IDs are
// scoped to their round: an ID from an earlier round is unknown in a later
// one, so stale clients cannot select against superseded offers.
type SettlementOption struct {
	// ID identifies the option within its round.
	ID string `json:"id"`

	proposal.Option

	// CarriedFrom is the ID this option had in the previous round, set
	// when a disputed option is carried forward into a compromise round.
	CarriedFrom string `json:"carried_from,omitempty"`
}

// PartySelection records one party's current choice in a round.
// A re-selection overwrites the previous one (last write wins).
type PartySelection struct {
	OptionID   string    `json:"option_id"`
	Reasoning  string    `json:"reasoning,omitempty"`
	SelectedAt time.Time `json:"selected_at"`
}

// Round is a single negotiation round for a case.
type Round struct {
	// ID is the round identifier, "r-" + UUID.
	ID string `json:"id"`

	// CaseID is the case this round belongs to.
	CaseID string `json:"case_id"`

	// Number is the 1-based round counter within the case.
	Number int `json:"number"`

	// Status is the round lifecycle status.
	Status RoundStatus `json:"status"`

	// Options are the selectable settlement options.
	Options []SettlementOption `json:"options"`

	// Selections maps party ID to that party's current selection.
	Selections map[string]PartySelection `json:"selections"`

	// Deadline, when set, is the selection cutoff enforced by the
	// timeout processor.
	Deadline *time.Time `json:"deadline,omitempty"`

	// ConsensusOptionID is set when the round closes in consensus.
	ConsensusOptionID string `json:"consensus_option_id,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// NewRound creates an open round over the given generated options,
// assigning each option a round-scoped ID.
func NewRound(caseID string, number int, options []proposal.Option, deadline *time.Time) *Round {
	r := &Round{
		ID:         "r-" + uuid.New().String(),
		CaseID:     caseID,
		Number:     number,
		Status:     RoundOpen,
		Options:    make([]SettlementOption, 0, len(options)),
		Selections: make(map[string]PartySelection),
		Deadline:   deadline,
		CreatedAt:  time.Now().UTC(),
	}
	for _, opt := range options {
		r.Options = append(r.Options, SettlementOption{
			ID:     newOptionID(),
			Option: opt,
		})
	}
	return r
}

// newOptionID generates a round-scoped option identifier.
func newOptionID() string {
	return "o-" + uuid.New().String()[:8]
}

// Option returns the option with the given ID, or nil.
func (r *Round) Option(id string) *SettlementOption {
	for i := range r.Options {
		if r.Options[i].ID == id {
			return &r.Options[i]
		}
	}
	return nil
}

// Closed reports whether the round no longer accepts selections.
func (r *Round) Closed() bool {
	return r.Status != RoundOpen
}

// Expired reports whether the round has a deadline in the past.
func (r *Round) Expired(now time.Time) bool {
	return r.Deadline != nil && now.After(*r.Deadline)
}

// SelectedOptions returns the distinct options currently selected,
// ordered by option position in the round.
func (r *Round) SelectedOptions() []SettlementOption {
	chosen := make(map[string]bool, len(r.Selections))
	for _, sel := range r.Selections {
		chosen[sel.OptionID] = true
	}

	out := make([]SettlementOption, 0, len(chosen))
	for _, opt := range r.Options {
		if chosen[opt.ID] {
			out = append(out, opt)
		}
	}
	return out
}
