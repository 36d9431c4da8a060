package dispute

import "testing"

func TestStageTransitionTable(t *testing.T) {
	tests := []struct {
		from    Stage
		to      Stage
		allowed bool
	}{
		{StageDraft, StageAwaitingRespondent, true},
		{StageDraft, StageClosedRejected, true},
		{StageDraft, StageStatementCollection, false},
		{StageAwaitingRespondent, StageStatementCollection, true},
		{StageAwaitingRespondent, StageClosedRejected, true},
		{StageStatementCollection, StageStatementFinalized, true},
		{StageStatementFinalized, StageAIAnalysis, true},
		{StageStatementFinalized, StageClosedRejected, false},
		{StageAIAnalysis, StageOptionsPresented, true},
		{StageAIAnalysis, StageForwardedToCourt, true},
		{StageOptionsPresented, StageAwaitingSelection, true},
		{StageAwaitingSelection, StageConsensusReached, true},
		{StageAwaitingSelection, StageReanalysis, true},
		{StageAwaitingSelection, StageForwardedToCourt, true},
		{StageAwaitingSelection, StageSettlementReady, false},
		{StageConsensusReached, StageSettlementReady, true},
		{StageReanalysis, StageAwaitingSelection, true},
		{StageReanalysis, StageForwardedToCourt, true},
		{StageSettlementReady, StageSignaturePending, true},
		{StageSignaturePending, StageClosedSettled, true},
		// Terminal stages go nowhere
		{StageClosedSettled, StageDraft, false},
		{StageForwardedToCourt, StageAwaitingSelection, false},
		{StageClosedRejected, StageDraft, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.allowed {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestStageTableIsClosed(t *testing.T) {
	// Every successor named in the table must itself be a valid stage with
	// an entry in the table.
	for from, succs := range successors {
		if !from.IsValid() {
			t.Errorf("table key %q is not a valid stage", from)
		}
		for _, to := range succs {
			if !to.IsValid() {
				t.Errorf("successor %q of %s is not a valid stage", to, from)
			}
			if _, ok := successors[to]; !ok {
				t.Errorf("successor %s of %s has no table entry", to, from)
			}
		}
	}
}

func TestTerminalStages(t *testing.T) {
	terminals := []Stage{StageClosedSettled, StageForwardedToCourt, StageClosedRejected}
	for _, s := range terminals {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
		if len(s.Successors()) != 0 {
			t.Errorf("%s should have no successors", s)
		}
	}

	if StageDraft.IsTerminal() {
		t.Error("DRAFT should not be terminal")
	}
}

func TestParseStage(t *testing.T) {
	if s, err := ParseStage("AWAITING_SELECTION"); err != nil || s != StageAwaitingSelection {
		t.Errorf("ParseStage(AWAITING_SELECTION) = %v, %v", s, err)
	}
	if _, err := ParseStage("LIMBO"); err == nil {
		t.Error("ParseStage(LIMBO) should fail")
	}
}
