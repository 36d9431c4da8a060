package negotiation

import "sort"

// Verdict classifies the state of agreement in a round.
type Verdict string

// Verdicts.
const (
	// VerdictAwaiting means not every party has selected yet.
	VerdictAwaiting Verdict = "awaiting"

	// VerdictConsensus means every party selected the same option.
	VerdictConsensus Verdict = "consensus"

	// VerdictDisagreement means every party selected but not the same
	// option.
	VerdictDisagreement Verdict = "disagreement"
)

// Outcome is the result of evaluating a round's selections.
type Outcome struct {
	Verdict Verdict

	// OptionID is the agreed option when Verdict is VerdictConsensus.
	OptionID string

	// Selections maps party ID to selected option ID for the parties
	// that have selected.
	Selections map[string]string

	// Awaiting lists parties that have not selected yet, sorted.
	Awaiting []string

	// NearAgreement is a hint set on disagreement when the selected
	// amounts fall within the configured spread of each other. It never
	// changes the verdict; the compromise path reads it for logging and
	// events only.
	NearAgreement bool
}

// Evaluate computes the agreement outcome for a round.
//
// Consensus is exact: all parties selected and every selection names the
// same option ID. Amount equality across different options is not
// consensus; nearness only sets the NearAgreement hint. nearSpread is the
// maximum relative amount spread, e.g. 0.1 for 10 percent, and 0 disables
// the hint.
func Evaluate(r *Round, partyIDs []string, nearSpread float64) Outcome {
	out := Outcome{
		Verdict:    VerdictAwaiting,
		Selections: make(map[string]string, len(partyIDs)),
	}

	for _, pid := range partyIDs {
		sel, ok := r.Selections[pid]
		if !ok {
			out.Awaiting = append(out.Awaiting, pid)
			continue
		}
		out.Selections[pid] = sel.OptionID
	}
	sort.Strings(out.Awaiting)

	if len(out.Awaiting) > 0 {
		return out
	}

	distinct := map[string]bool{}
	for _, optID := range out.Selections {
		distinct[optID] = true
	}

	if len(distinct) == 1 {
		out.Verdict = VerdictConsensus
		for optID := range distinct {
			out.OptionID = optID
		}
		return out
	}

	out.Verdict = VerdictDisagreement
	out.NearAgreement = nearAgreement(r, distinct, nearSpread)
	return out
}

// nearAgreement reports whether the selected amounts lie within the
// relative spread of the largest selected amount.
func nearAgreement(r *Round, selected map[string]bool, spread float64) bool {
	if spread <= 0 {
		return false
	}

	var minAmt, maxAmt int64
	first := true
	for optID := range selected {
		opt := r.Option(optID)
		if opt == nil {
			return false
		}
		if first {
			minAmt, maxAmt = opt.Amount, opt.Amount
			first = false
			continue
		}
		if opt.Amount < minAmt {
			minAmt = opt.Amount
		}
		if opt.Amount > maxAmt {
			maxAmt = opt.Amount
		}
	}

	if maxAmt == 0 {
		return minAmt == maxAmt
	}
	return float64(maxAmt-minAmt) <= spread*float64(maxAmt)
}
