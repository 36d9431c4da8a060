package negotiation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/accordhq/accord/dispute"
	"github.com/accordhq/accord/notify"
	"github.com/accordhq/accord/proposal"
)

// metaCurrentRound is the case metadata key holding the open round ID.
const metaCurrentRound = "currentRoundID"

// maxCASRetries bounds round read-modify-write retry loops.
const maxCASRetries = 5

// DeadlinePolicy decides what happens when a round deadline expires.
type DeadlinePolicy string

const (
	// DeadlineCompromise synthesizes a compromise from whatever
	// conflicting selections exist, escalating only when fewer than two
	// distinct options were selected.
	DeadlineCompromise DeadlinePolicy = "compromise"

	// DeadlineEscalate forwards the case to court on expiry.
	DeadlineEscalate DeadlinePolicy = "escalate"
)

// Config tunes engine behavior.
type Config struct {
	// MaxCompromiseRounds caps how many rounds a case may go through
	// before disagreement escalates instead of synthesizing again.
	MaxCompromiseRounds int `yaml:"max_compromise_rounds"`

	// SelectionWindow is how long a round stays open. Zero means no
	// deadline.
	SelectionWindow time.Duration `yaml:"selection_window"`

	// DeadlinePolicy decides expiry handling.
	DeadlinePolicy DeadlinePolicy `yaml:"deadline_policy"`

	// NearAgreementSpread is the relative amount spread below which a
	// disagreement is flagged as near agreement, e.g. 0.1 for 10 percent.
	NearAgreementSpread float64 `yaml:"near_agreement_spread"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxCompromiseRounds: 3,
		SelectionWindow:     0,
		DeadlinePolicy:      DeadlineCompromise,
		NearAgreementSpread: 0.1,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxCompromiseRounds < 1 {
		return fmt.Errorf("max_compromise_rounds must be at least 1, got %d", c.MaxCompromiseRounds)
	}
	if c.DeadlinePolicy != DeadlineCompromise && c.DeadlinePolicy != DeadlineEscalate {
		return fmt.Errorf("deadline_policy must be %q or %q, got %q",
			DeadlineCompromise, DeadlineEscalate, c.DeadlinePolicy)
	}
	if c.NearAgreementSpread < 0 || c.NearAgreementSpread >= 1 {
		return fmt.Errorf("near_agreement_spread must be in [0,1), got %v", c.NearAgreementSpread)
	}
	return nil
}

// Engine orchestrates negotiation rounds over the case state machine.
// All dependencies are injected; the engine holds no state of its own, so
// multiple instances can serve the same stores concurrently.
type Engine struct {
	machine  *dispute.Machine
	cases    dispute.CaseStore
	rounds   RoundStore
	gen      proposal.Generator
	synth    *Synthesizer
	notifier notify.Notifier
	logger   *slog.Logger
	cfg      Config
}

// NewEngine creates a negotiation engine.
func NewEngine(machine *dispute.Machine, cases dispute.CaseStore, rounds RoundStore, gen proposal.Generator, notifier notify.Notifier, logger *slog.Logger, cfg Config) *Engine {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		machine:  machine,
		cases:    cases,
		rounds:   rounds,
		gen:      gen,
		synth:    NewSynthesizer(gen, 0, logger),
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
	}
}

// StartAnalysis runs AI analysis for a case with finalized statements and
// opens the first negotiation round with the generated options.
//
// When the generator fails entirely the case forwards to court: a dispute
// that cannot be mediated must not sit in analysis forever.
func (e *Engine) StartAnalysis(ctx context.Context, caseID, actor string) (*Round, error) {
	c, err := e.machine.Transition(ctx, caseID, dispute.StageAIAnalysis, actor, "analysis started")
	if err != nil {
		return nil, err
	}

	number := c.Round + 1
	options, err := e.gen.GenerateOptions(ctx, caseContext(c, number))
	if err == nil && len(options) == 0 {
		err = errors.New("generator returned no options")
	}
	if err != nil {
		e.logger.Error("Option generation failed, forwarding to court",
			"case_id", caseID,
			"error", err)
		if _, terr := e.machine.Transition(ctx, caseID, dispute.StageForwardedToCourt, "system", "option generation failed"); terr != nil {
			return nil, fmt.Errorf("generate options: %v; forward to court: %w", err, terr)
		}
		e.notifier.Notify(ctx, &EscalatedEvent{
			CaseID:    caseID,
			Reason:    "option generation failed",
			Timestamp: time.Now().UTC(),
		})
		return nil, fmt.Errorf("generate options for case %s: %w", caseID, err)
	}

	r, err := e.openRound(ctx, caseID, number, options, nil)
	if err != nil {
		return nil, err
	}

	if _, err := e.machine.Transition(ctx, caseID, dispute.StageOptionsPresented, "system", "options generated"); err != nil {
		return nil, err
	}
	if _, err := e.machine.Transition(ctx, caseID, dispute.StageAwaitingSelection, "system", fmt.Sprintf("round %d open", number)); err != nil {
		return nil, err
	}

	return r, nil
}

// RecordSelection stores a party's choice in a round and, when the roster
// is complete, closes the round. Re-selection in an open round overwrites
// the earlier choice. The reasoning is optional free text kept with the
// selection.
//
// Closing is at-most-once: concurrent final selections race on the round
// revision and exactly one caller drives consensus or the compromise path.
func (e *Engine) RecordSelection(ctx context.Context, roundID, partyID, optionID, reasoning string) (Outcome, error) {
	r, _, err := e.rounds.Get(ctx, roundID)
	if err != nil {
		return Outcome{}, err
	}

	c, _, err := e.cases.Get(ctx, r.CaseID)
	if err != nil {
		return Outcome{}, err
	}
	if c.Party(partyID) == nil {
		return Outcome{}, fmt.Errorf("%w: %s", dispute.ErrUnknownParty, partyID)
	}

	var rev uint64
	var lastErr error
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		r, rev, err = e.rounds.Get(ctx, roundID)
		if err != nil {
			return Outcome{}, err
		}
		if r.Closed() {
			return Outcome{}, fmt.Errorf("%w: %s is %s", ErrRoundClosed, roundID, r.Status)
		}
		if r.Option(optionID) == nil {
			return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownOption, optionID)
		}

		r.Selections[partyID] = PartySelection{
			OptionID:   optionID,
			Reasoning:  reasoning,
			SelectedAt: time.Now().UTC(),
		}

		rev, err = e.rounds.Update(ctx, r, rev)
		if err != nil {
			if errors.Is(err, ErrRevisionConflict) {
				lastErr = err
				continue
			}
			return Outcome{}, err
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return Outcome{}, fmt.Errorf("record selection after %d attempts: %w", maxCASRetries, lastErr)
	}

	e.notifier.Notify(ctx, &SelectionRecordedEvent{
		CaseID:    r.CaseID,
		RoundID:   r.ID,
		PartyID:   partyID,
		OptionID:  optionID,
		Timestamp: time.Now().UTC(),
	})

	out := Evaluate(r, c.PartyIDs(), e.cfg.NearAgreementSpread)
	switch out.Verdict {
	case VerdictConsensus:
		if err := e.closeConsensus(ctx, c, r.ID, out); err != nil {
			return out, err
		}
	case VerdictDisagreement:
		if err := e.resolveDisagreement(ctx, c, r.ID, out); err != nil {
			return out, err
		}
	}
	return out, nil
}

// Escalate closes the case's open round and forwards the case to court.
func (e *Engine) Escalate(ctx context.Context, caseID, actor, reason string) error {
	if reason == "" {
		reason = "escalated by " + actor
	}

	c, _, err := e.cases.Get(ctx, caseID)
	if err != nil {
		return err
	}

	var roundID string
	if id := c.Metadata[metaCurrentRound]; id != "" {
		if _, _, err := e.closeRound(ctx, id, RoundEscalated, ""); err != nil && !errors.Is(err, ErrRoundNotFound) {
			return err
		}
		roundID = id
	}

	if _, err := e.machine.Transition(ctx, caseID, dispute.StageForwardedToCourt, actor, reason); err != nil {
		return err
	}

	e.notifier.Notify(ctx, &EscalatedEvent{
		CaseID:    caseID,
		RoundID:   roundID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// ExpireRound applies the deadline policy to a round whose selection
// window has passed. Called by the round-timeout processor; calling it on
// a closed or unexpired round is a no-op, so redelivery is harmless.
func (e *Engine) ExpireRound(ctx context.Context, roundID string) error {
	r, _, err := e.rounds.Get(ctx, roundID)
	if err != nil {
		return err
	}
	if r.Closed() || !r.Expired(time.Now().UTC()) {
		return nil
	}

	c, _, err := e.cases.Get(ctx, r.CaseID)
	if err != nil {
		return err
	}

	distinct := r.SelectedOptions()
	resolution := "escalated"
	if e.cfg.DeadlinePolicy == DeadlineCompromise && len(distinct) >= 2 {
		resolution = "compromise"
	}

	e.notifier.Notify(ctx, &RoundExpiredEvent{
		CaseID:     r.CaseID,
		RoundID:    r.ID,
		Selections: len(r.Selections),
		Resolution: resolution,
		Timestamp:  time.Now().UTC(),
	})

	if resolution == "compromise" {
		out := Outcome{
			Verdict:       VerdictDisagreement,
			Selections:    map[string]string{},
			NearAgreement: false,
		}
		for pid, sel := range r.Selections {
			out.Selections[pid] = sel.OptionID
		}
		return e.resolveDisagreement(ctx, c, r.ID, out)
	}

	return e.Escalate(ctx, r.CaseID, "system", "round deadline expired")
}

// RoundSummary is a compact view of one round for the status surface.
type RoundSummary struct {
	ID                string      `json:"id"`
	Number            int         `json:"number"`
	Status            RoundStatus `json:"status"`
	Options           int         `json:"options"`
	Selections        int         `json:"selections"`
	ConsensusOptionID string      `json:"consensus_option_id,omitempty"`
}

// CaseStatus is the read model combining the case record with its rounds.
type CaseStatus struct {
	CaseID          string                 `json:"case_id"`
	Title           string                 `json:"title"`
	Stage           dispute.Stage          `json:"stage"`
	Parties         []dispute.Party        `json:"parties"`
	StatementCount  int                    `json:"statement_count"`
	ReanalysisCount int                    `json:"reanalysis_count"`
	CurrentRound    *Round                 `json:"current_round,omitempty"`
	Rounds          []RoundSummary         `json:"rounds"`
	History         []dispute.HistoryEntry `json:"history"`
}

// Status builds the combined case/negotiation view.
func (e *Engine) Status(ctx context.Context, caseID string) (*CaseStatus, error) {
	c, _, err := e.cases.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}

	rounds, err := e.rounds.ListByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	status := &CaseStatus{
		CaseID:          c.ID,
		Title:           c.Title,
		Stage:           c.Stage,
		Parties:         c.Parties,
		StatementCount:  len(c.Statements),
		ReanalysisCount: c.ReanalysisCount(),
		Rounds:          make([]RoundSummary, 0, len(rounds)),
		History:         c.History,
	}

	currentID := c.Metadata[metaCurrentRound]
	for _, r := range rounds {
		status.Rounds = append(status.Rounds, RoundSummary{
			ID:                r.ID,
			Number:            r.Number,
			Status:            r.Status,
			Options:           len(r.Options),
			Selections:        len(r.Selections),
			ConsensusOptionID: r.ConsensusOptionID,
		})
		if r.ID == currentID {
			status.CurrentRound = r
		}
	}
	return status, nil
}

// closeConsensus closes the round in consensus and settles the case.
// Only the caller that wins the close drives the case transitions.
func (e *Engine) closeConsensus(ctx context.Context, c *dispute.Case, roundID string, out Outcome) error {
	r, won, err := e.closeRound(ctx, roundID, RoundConsensus, out.OptionID)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	e.logger.Info("Consensus reached",
		"case_id", c.ID,
		"round_id", r.ID,
		"option_id", out.OptionID)

	if _, err := e.machine.Transition(ctx, c.ID, dispute.StageConsensusReached, "system", "all parties agreed"); err != nil {
		return err
	}
	if _, err := e.machine.Transition(ctx, c.ID, dispute.StageSettlementReady, "system", "settlement drafted from option "+out.OptionID); err != nil {
		return err
	}

	e.notifier.Notify(ctx, &ConsensusReachedEvent{
		CaseID:    c.ID,
		RoundID:   r.ID,
		OptionID:  out.OptionID,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// resolveDisagreement closes the round and either opens a compromise
// follow-up round or escalates when the round budget is spent.
func (e *Engine) resolveDisagreement(ctx context.Context, c *dispute.Case, roundID string, out Outcome) error {
	if r, _, err := e.rounds.Get(ctx, roundID); err != nil {
		return err
	} else if r.Number >= e.cfg.MaxCompromiseRounds {
		e.logger.Info("Compromise budget exhausted, escalating",
			"case_id", c.ID,
			"round", r.Number,
			"max_rounds", e.cfg.MaxCompromiseRounds)
		return e.Escalate(ctx, c.ID, "system", fmt.Sprintf("no agreement after %d rounds", r.Number))
	}

	r, won, err := e.closeRound(ctx, roundID, RoundCompromisePending, "")
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	disputed := r.SelectedOptions()
	disputedOpts := make([]proposal.Option, len(disputed))
	for i, opt := range disputed {
		disputedOpts[i] = opt.Option
	}

	compromise := e.synth.Synthesize(ctx, caseContext(c, r.Number), disputedOpts)
	fallback := compromise.Rationale == fallbackRationale

	e.logger.Info("Compromise synthesized",
		"case_id", c.ID,
		"round_id", r.ID,
		"amount", compromise.Amount,
		"fallback", fallback,
		"near_agreement", out.NearAgreement)

	if _, err := e.machine.BumpReanalysis(ctx, c.ID); err != nil {
		return err
	}
	if _, err := e.machine.Transition(ctx, c.ID, dispute.StageReanalysis, "system", "selections conflicted"); err != nil {
		return err
	}

	next, err := e.openRound(ctx, c.ID, r.Number+1, []proposal.Option{compromise}, disputed)
	if err != nil {
		return err
	}

	if _, err := e.machine.Transition(ctx, c.ID, dispute.StageAwaitingSelection, "system", fmt.Sprintf("round %d open", next.Number)); err != nil {
		return err
	}

	e.notifier.Notify(ctx, &CompromiseProposedEvent{
		CaseID:        c.ID,
		RoundID:       r.ID,
		NewRoundID:    next.ID,
		Amount:        compromise.Amount,
		Currency:      compromise.Currency,
		Fallback:      fallback,
		NearAgreement: out.NearAgreement,
		Timestamp:     time.Now().UTC(),
	})
	return nil
}

// closeRound moves an open round to a closed status. Returns the round and
// whether this caller won the close; a round already closed by a
// concurrent caller is reported with won=false and no error.
func (e *Engine) closeRound(ctx context.Context, roundID string, status RoundStatus, consensusOptionID string) (*Round, bool, error) {
	var lastErr error
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		r, rev, err := e.rounds.Get(ctx, roundID)
		if err != nil {
			return nil, false, err
		}
		if r.Closed() {
			return r, false, nil
		}

		now := time.Now().UTC()
		r.Status = status
		r.ClosedAt = &now
		r.ConsensusOptionID = consensusOptionID

		if _, err := e.rounds.Update(ctx, r, rev); err != nil {
			if errors.Is(err, ErrRevisionConflict) {
				lastErr = err
				continue
			}
			return nil, false, err
		}
		return r, true, nil
	}
	return nil, false, fmt.Errorf("close round %s after %d attempts: %w", roundID, maxCASRetries, lastErr)
}

// openRound creates a round, optionally carrying forward the disputed
// options from the previous round, and claims it as the case's current
// round. A case holds at most one open round; a second opener loses the
// claim and fails with ErrRoundAlreadyOpen.
func (e *Engine) openRound(ctx context.Context, caseID string, number int, options []proposal.Option, carried []SettlementOption) (*Round, error) {
	var deadline *time.Time
	if e.cfg.SelectionWindow > 0 {
		d := time.Now().UTC().Add(e.cfg.SelectionWindow)
		deadline = &d
	}

	r := NewRound(caseID, number, options, deadline)
	for _, prev := range carried {
		opt := prev.Option
		opt.Rank = len(r.Options) + 1
		r.Options = append(r.Options, SettlementOption{
			ID:          newOptionID(),
			Option:      opt,
			CarriedFrom: prev.ID,
		})
	}
	if len(r.Options) == 0 {
		return nil, fmt.Errorf("open round %d for case %s: %w", number, caseID, ErrNoOptions)
	}

	if err := e.rounds.Create(ctx, r); err != nil {
		return nil, err
	}
	if err := e.claimRound(ctx, caseID, r); err != nil {
		if errors.Is(err, ErrRoundAlreadyOpen) {
			// Lost the claim race. Remove the unclaimed round so the
			// timeout scanner never sees it.
			if derr := e.rounds.Delete(ctx, r.ID); derr != nil {
				e.logger.Warn("Failed to remove unclaimed round",
					"round_id", r.ID,
					"error", derr)
			}
		}
		return nil, err
	}

	optionIDs := make([]string, len(r.Options))
	for i, opt := range r.Options {
		optionIDs[i] = opt.ID
	}
	e.notifier.Notify(ctx, &OptionsPresentedEvent{
		CaseID:    caseID,
		RoundID:   r.ID,
		Round:     number,
		OptionIDs: optionIDs,
		Deadline:  deadline,
		Timestamp: time.Now().UTC(),
	})

	e.logger.Info("Round opened",
		"case_id", caseID,
		"round_id", r.ID,
		"round", number,
		"options", len(r.Options))
	return r, nil
}

// claimRound points the case record at its new round. The pointer write is
// a revision CAS on the case, so of two concurrent openers exactly one
// claims it; the loser re-reads, finds the winner's round still open and
// fails with ErrRoundAlreadyOpen.
func (e *Engine) claimRound(ctx context.Context, caseID string, r *Round) error {
	var lastErr error
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		c, rev, err := e.cases.Get(ctx, caseID)
		if err != nil {
			return err
		}

		if cur := c.Metadata[metaCurrentRound]; cur != "" && cur != r.ID {
			prev, _, err := e.rounds.Get(ctx, cur)
			switch {
			case errors.Is(err, ErrRoundNotFound):
				// Stale pointer, the claim may proceed.
			case err != nil:
				return err
			case !prev.Closed():
				return fmt.Errorf("%w: case %s round %s", ErrRoundAlreadyOpen, caseID, cur)
			}
		}

		c.Round = r.Number
		if c.Metadata == nil {
			c.Metadata = map[string]string{}
		}
		c.Metadata[metaCurrentRound] = r.ID

		if _, err := e.cases.Update(ctx, c, rev); err != nil {
			if errors.Is(err, dispute.ErrRevisionConflict) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("claim round %s after %d attempts: %w", r.ID, maxCASRetries, lastErr)
}

// caseContext projects the case record into the generator's view.
func caseContext(c *dispute.Case, round int) proposal.CaseContext {
	cc := proposal.CaseContext{
		CaseID: c.ID,
		Title:  c.Title,
		Round:  round,
	}
	for _, st := range c.Statements {
		role := "party"
		if p := c.Party(st.PartyID); p != nil {
			role = string(p.Role)
		}
		cc.Statements = append(cc.Statements, proposal.StatementContext{
			Role: role,
			Text: st.Text,
		})
	}
	return cc
}
