// Package dispute owns the case lifecycle: the case record, the stage
// graph, and the state machine that is the only writer of case stage.
//
// The machine is stateless between calls. Every operation is a single
// read-modify-write against the case store guarded by revision
// compare-and-swap, retried on conflict, so concurrent request handlers
// can drive the same case without corrupting the stage history.
package dispute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/accordhq/accord/notify"
)

// maxCASRetries bounds the read-modify-write retry loop. Conflicts are
// rare (two handlers racing on one case); exhausting this indicates a
// pathological hot case and is surfaced as ErrRevisionConflict.
const maxCASRetries = 5

// Hook is a stage-entry callback invoked after a transition commits.
// Hook errors are logged and never roll back the transition.
type Hook func(ctx context.Context, c *Case) error

// Machine validates and executes case stage transitions.
type Machine struct {
	store    CaseStore
	notifier notify.Notifier
	logger   *slog.Logger
	hooks    map[Stage][]Hook
}

// NewMachine creates a state machine over the given store.
// The notifier receives a StageChangedEvent after every committed
// transition; pass notify.Nop{} when no dispatch is wanted.
func NewMachine(store CaseStore, notifier notify.Notifier, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Machine{
		store:    store,
		notifier: notifier,
		logger:   logger,
		hooks:    make(map[Stage][]Hook),
	}
}

// OnEnter registers a stage-entry hook. Hooks run in registration order
// after the transition commits; their failures are logged, never returned.
func (m *Machine) OnEnter(stage Stage, hook Hook) {
	m.hooks[stage] = append(m.hooks[stage], hook)
}

// File creates and stores a new case in DRAFT.
func (m *Machine) File(ctx context.Context, title string, parties []Party) (*Case, error) {
	c := NewCase(title, parties)
	if err := m.store.Create(ctx, c); err != nil {
		return nil, err
	}

	m.logger.Info("Case filed",
		"case_id", c.ID,
		"parties", len(c.Parties))
	return c, nil
}

// Get loads a case by ID.
func (m *Machine) Get(ctx context.Context, caseID string) (*Case, error) {
	c, _, err := m.store.Get(ctx, caseID)
	return c, err
}

// Transition moves a case to the target stage.
//
// Fails with ErrCaseNotFound if the case does not exist and with
// ErrInvalidTransition if target is not an allowed successor of the
// current stage; in both failure modes the case is unchanged.
//
// Transition is idempotent under retry: if the case is already at the
// target stage the call succeeds as a no-op without appending a duplicate
// history entry, which protects against at-least-once delivery of the
// triggering event.
func (m *Machine) Transition(ctx context.Context, caseID string, target Stage, actor, note string) (*Case, error) {
	if !target.IsValid() {
		return nil, fmt.Errorf("%w: unknown stage %q", ErrInvalidTransition, target)
	}

	var lastErr error
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		c, rev, err := m.store.Get(ctx, caseID)
		if err != nil {
			return nil, err
		}

		// Idempotent no-op: retried delivery of an already-applied event.
		if c.Stage == target {
			return c, nil
		}

		from := c.Stage
		if !from.CanTransition(target) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, target)
		}

		ts := time.Now().UTC()
		if last := c.History[len(c.History)-1].Timestamp; !ts.After(last) {
			// History timestamps are monotonic per case.
			ts = last.Add(time.Nanosecond)
		}

		c.Stage = target
		c.History = append(c.History, HistoryEntry{
			Stage:     target,
			Timestamp: ts,
			Actor:     actor,
			Note:      note,
		})

		if _, err := m.store.Update(ctx, c, rev); err != nil {
			if errors.Is(err, ErrRevisionConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}

		m.logger.Info("Case stage changed",
			"case_id", c.ID,
			"from", from,
			"to", target,
			"actor", actor)

		m.runHooks(ctx, c)
		m.notifier.Notify(ctx, &StageChangedEvent{
			CaseID:    c.ID,
			From:      from,
			To:        target,
			Actor:     actor,
			Note:      note,
			Timestamp: ts,
		})

		return c, nil
	}

	return nil, fmt.Errorf("transition %s after %d attempts: %w", caseID, maxCASRetries, lastErr)
}

// runHooks executes stage-entry hooks. Failures are logged only: transition
// success is independent of hook success.
func (m *Machine) runHooks(ctx context.Context, c *Case) {
	for _, hook := range m.hooks[c.Stage] {
		if err := hook(ctx, c); err != nil {
			m.logger.Warn("Stage-entry hook failed",
				"case_id", c.ID,
				"stage", c.Stage,
				"error", err)
		}
	}
}

// SubmitStatement records a party statement during statement collection.
func (m *Machine) SubmitStatement(ctx context.Context, caseID, partyID, text string) (*Case, error) {
	if text == "" {
		return nil, fmt.Errorf("statement text is required")
	}

	var lastErr error
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		c, rev, err := m.store.Get(ctx, caseID)
		if err != nil {
			return nil, err
		}
		if c.Closed() {
			return nil, fmt.Errorf("%w: %s", ErrCaseClosed, caseID)
		}
		if c.Stage != StageStatementCollection {
			return nil, fmt.Errorf("%w: case is in %s", ErrStatementsClosed, c.Stage)
		}
		if c.Party(partyID) == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownParty, partyID)
		}

		now := time.Now().UTC()
		c.Statements = append(c.Statements, Statement{
			PartyID:     partyID,
			Text:        text,
			SubmittedAt: now,
		})

		if _, err := m.store.Update(ctx, c, rev); err != nil {
			if errors.Is(err, ErrRevisionConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}

		m.notifier.Notify(ctx, &StatementSubmittedEvent{
			CaseID:    c.ID,
			PartyID:   partyID,
			Timestamp: now,
		})
		return c, nil
	}

	return nil, fmt.Errorf("submit statement %s after %d attempts: %w", caseID, maxCASRetries, lastErr)
}

// FinalizeStatements locks statement collection once every party has
// submitted at least one statement.
func (m *Machine) FinalizeStatements(ctx context.Context, caseID, actor string) (*Case, error) {
	c, _, err := m.store.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}

	submitted := map[string]bool{}
	for _, st := range c.Statements {
		submitted[st.PartyID] = true
	}
	for _, p := range c.Parties {
		if !submitted[p.ID] {
			return nil, fmt.Errorf("party %s has not submitted a statement", p.ID)
		}
	}

	return m.Transition(ctx, caseID, StageStatementFinalized, actor, "statements finalized")
}

// BumpReanalysis increments the reanalysisCount metadata counter and
// returns the new value. Uses the same CAS discipline as Transition.
func (m *Machine) BumpReanalysis(ctx context.Context, caseID string) (int, error) {
	var lastErr error
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		c, rev, err := m.store.Get(ctx, caseID)
		if err != nil {
			return 0, err
		}

		n := c.ReanalysisCount() + 1
		c.SetReanalysisCount(n)

		if _, err := m.store.Update(ctx, c, rev); err != nil {
			if errors.Is(err, ErrRevisionConflict) {
				lastErr = err
				continue
			}
			return 0, err
		}
		return n, nil
	}

	return 0, fmt.Errorf("bump reanalysis %s after %d attempts: %w", caseID, maxCASRetries, lastErr)
}
