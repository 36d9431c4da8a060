package dispute

import "fmt"

// Stage represents a phase in the case lifecycle.
// The lifecycle is a closed graph: a case may only move to a stage listed
// in the transition table below, and terminal stages have no successors.
type Stage string

const (
	// StageDraft is the initial stage: the claimant is assembling the filing.
	StageDraft Stage = "DRAFT"

	// StageAwaitingRespondent means the filing is complete and the
	// respondent has been invited but has not yet joined.
	StageAwaitingRespondent Stage = "AWAITING_RESPONDENT"

	// StageStatementCollection means both parties are submitting statements
	// and evidence.
	StageStatementCollection Stage = "STATEMENT_COLLECTION"

	// StageStatementFinalized means statements are locked for analysis.
	StageStatementFinalized Stage = "STATEMENT_FINALIZED"

	// StageAIAnalysis means the proposal generator is producing settlement
	// options from the case record.
	StageAIAnalysis Stage = "AI_ANALYSIS"

	// StageOptionsPresented means settlement options have been stored and
	// parties have been notified.
	StageOptionsPresented Stage = "OPTIONS_PRESENTED"

	// StageAwaitingSelection means a negotiation round is open and parties
	// are selecting options.
	StageAwaitingSelection Stage = "AWAITING_SELECTION"

	// StageConsensusReached means all parties selected the same option.
	StageConsensusReached Stage = "CONSENSUS_REACHED"

	// StageReanalysis means a compromise option is being synthesized after
	// a disagreement. Loops back to AWAITING_SELECTION.
	StageReanalysis Stage = "REANALYSIS"

	// StageSettlementReady means the settlement document is being prepared.
	StageSettlementReady Stage = "SETTLEMENT_READY"

	// StageSignaturePending means the settlement awaits party signatures.
	StageSignaturePending Stage = "SIGNATURE_PENDING"

	// StageClosedSettled is terminal: the dispute settled.
	StageClosedSettled Stage = "CLOSED_SETTLED"

	// StageForwardedToCourt is terminal for the negotiation subsystem: the
	// case was handed to an external court process.
	StageForwardedToCourt Stage = "FORWARDED_TO_COURT"

	// StageClosedRejected is terminal: the filing was withdrawn or rejected.
	StageClosedRejected Stage = "CLOSED_REJECTED"
)

// successors is the allowed-successor table for the case lifecycle.
// A stage absent from this map, or mapped to an empty set, is terminal.
var successors = map[Stage][]Stage{
	StageDraft:               {StageAwaitingRespondent, StageClosedRejected},
	StageAwaitingRespondent:  {StageStatementCollection, StageClosedRejected},
	StageStatementCollection: {StageStatementFinalized, StageClosedRejected},
	StageStatementFinalized:  {StageAIAnalysis},
	StageAIAnalysis:          {StageOptionsPresented, StageForwardedToCourt},
	StageOptionsPresented:    {StageAwaitingSelection},
	StageAwaitingSelection:   {StageConsensusReached, StageReanalysis, StageForwardedToCourt},
	StageConsensusReached:    {StageSettlementReady},
	StageReanalysis:          {StageAwaitingSelection, StageForwardedToCourt},
	StageSettlementReady:     {StageSignaturePending},
	StageSignaturePending:    {StageClosedSettled},
	StageClosedSettled:       {},
	StageForwardedToCourt:    {},
	StageClosedRejected:      {},
}

// IsValid checks whether s is a known lifecycle stage.
func (s Stage) IsValid() bool {
	switch s {
	case StageDraft, StageAwaitingRespondent, StageStatementCollection,
		StageStatementFinalized, StageAIAnalysis, StageOptionsPresented,
		StageAwaitingSelection, StageConsensusReached, StageReanalysis,
		StageSettlementReady, StageSignaturePending, StageClosedSettled,
		StageForwardedToCourt, StageClosedRejected:
		return true
	}
	return false
}

// IsTerminal reports whether the stage has no successors.
func (s Stage) IsTerminal() bool {
	return len(successors[s]) == 0
}

// CanTransition reports whether target is an allowed successor of s.
func (s Stage) CanTransition(target Stage) bool {
	for _, next := range successors[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Successors returns a copy of the allowed successors of s.
func (s Stage) Successors() []Stage {
	next := successors[s]
	out := make([]Stage, len(next))
	copy(out, next)
	return out
}

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// ParseStage converts a string to a Stage, failing on unknown values.
func ParseStage(s string) (Stage, error) {
	stage := Stage(s)
	if !stage.IsValid() {
		return "", fmt.Errorf("unknown stage: %q", s)
	}
	return stage, nil
}
