package roundtimeout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/accordhq/accord/dispute"
	"github.com/accordhq/accord/negotiation"
	"github.com/accordhq/accord/notify"
	"github.com/accordhq/accord/proposal"
)

// stubGenerator returns canned options so tests never touch an LLM.
type stubGenerator struct {
	options  []proposal.Option
	synthErr error
}

func (g *stubGenerator) GenerateOptions(_ context.Context, _ proposal.CaseContext) ([]proposal.Option, error) {
	return g.options, nil
}

func (g *stubGenerator) SynthesizeCompromise(_ context.Context, _ proposal.CaseContext, _ []proposal.Option) (proposal.Option, error) {
	return proposal.Option{}, g.synthErr
}

func rankedOptions() []proposal.Option {
	return []proposal.Option{
		{Rank: 1, Amount: 40000, Currency: "INR", PaymentTerms: "lump sum",
			FairnessScore: 0.8, AcceptanceProbability: 0.7, Rationale: "split difference"},
		{Rank: 2, Amount: 90000, Currency: "INR", PaymentTerms: "installments",
			FairnessScore: 0.6, AcceptanceProbability: 0.5, Rationale: "full claim"},
	}
}

type testEnv struct {
	comp    *Component
	machine *dispute.Machine
	engine  *negotiation.Engine
	rounds  negotiation.RoundStore
	rec     *notify.Recorder
}

// newTestEnv wires a component over in-memory stores so checkDeadlines can
// run without NATS.
func newTestEnv(t *testing.T, cfg negotiation.Config) *testEnv {
	t.Helper()

	rec := &notify.Recorder{}
	cases := dispute.NewMemoryCaseStore()
	rounds := negotiation.NewMemoryRoundStore()
	machine := dispute.NewMachine(cases, rec, nil)
	engine := negotiation.NewEngine(machine, cases, rounds, &stubGenerator{
		options:  rankedOptions(),
		synthErr: fmt.Errorf("synthesis offline"),
	}, rec, nil, cfg)

	comp := &Component{
		name:   "round-timeout",
		config: DefaultConfig(),
		logger: slog.Default(),
		rounds: rounds,
		engine: engine,
	}
	return &testEnv{comp: comp, machine: machine, engine: engine, rounds: rounds, rec: rec}
}

// openSelectionRound drives a case to AWAITING_SELECTION and returns the
// open round.
func (env *testEnv) openSelectionRound(t *testing.T, parties []dispute.Party) *negotiation.Round {
	t.Helper()
	ctx := context.Background()

	c, err := env.machine.File(ctx, "Unpaid invoice", parties)
	if err != nil {
		t.Fatalf("File() error: %v", err)
	}
	for _, target := range []dispute.Stage{dispute.StageAwaitingRespondent, dispute.StageStatementCollection} {
		if _, err := env.machine.Transition(ctx, c.ID, target, "system", ""); err != nil {
			t.Fatalf("Transition(%s) error: %v", target, err)
		}
	}
	for _, p := range parties {
		if _, err := env.machine.SubmitStatement(ctx, c.ID, p.ID, "statement from "+p.Name); err != nil {
			t.Fatalf("SubmitStatement() error: %v", err)
		}
	}
	if _, err := env.machine.FinalizeStatements(ctx, c.ID, "system"); err != nil {
		t.Fatalf("FinalizeStatements() error: %v", err)
	}

	round, err := env.engine.StartAnalysis(ctx, c.ID, "system")
	if err != nil {
		t.Fatalf("StartAnalysis() error: %v", err)
	}
	return round
}

func twoParties() []dispute.Party {
	return []dispute.Party{
		dispute.NewParty(dispute.RoleClaimant, "Asha"),
		dispute.NewParty(dispute.RoleRespondent, "Vikram"),
	}
}

func (env *testEnv) mustStage(t *testing.T, caseID string, want dispute.Stage) {
	t.Helper()
	c, err := env.machine.Get(context.Background(), caseID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if c.Stage != want {
		t.Fatalf("stage = %s, want %s", c.Stage, want)
	}
}

func TestNewComponent_Unit(t *testing.T) {
	tests := []struct {
		name      string
		rawConfig json.RawMessage
		wantErr   bool
	}{
		{
			name:      "invalid JSON",
			rawConfig: json.RawMessage(`{invalid json}`),
			wantErr:   true,
		},
		{
			name:      "negative check interval",
			rawConfig: json.RawMessage(`{"check_interval_seconds":-5}`),
			wantErr:   true,
		},
		{
			name:      "unknown deadline policy",
			rawConfig: json.RawMessage(`{"deadline_policy":"split"}`),
			wantErr:   true,
		},
		{
			name:      "defaults fill empty config",
			rawConfig: json.RawMessage(`{}`),
			wantErr:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := component.Dependencies{
				Logger: slog.Default(),
			}

			_, err := NewComponent(tt.rawConfig, deps)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewComponent() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestComponent_Lifecycle(t *testing.T) {
	c := &Component{
		name:   "round-timeout",
		logger: slog.Default(),
		config: DefaultConfig(),
	}

	if err := c.Initialize(); err != nil {
		t.Errorf("Initialize() error = %v, want nil", err)
	}

	// Stop when already stopped is a no-op
	if err := c.Stop(time.Second); err != nil {
		t.Error("Stop() should not error when already stopped")
	}
}

func TestComponent_StartWithoutNATSClient(t *testing.T) {
	c := &Component{
		name:   "round-timeout",
		logger: slog.Default(),
		config: DefaultConfig(),
	}

	if err := c.Start(context.Background()); err == nil {
		t.Error("Start() should return error when NATS client is nil")
	}

	c.mu.RLock()
	running := c.running
	c.mu.RUnlock()
	if running {
		t.Error("Component should not be running after failed start")
	}
}

func TestCheckDeadlines_EscalatesExpiredRound(t *testing.T) {
	env := newTestEnv(t, negotiation.Config{
		MaxCompromiseRounds: 3,
		SelectionWindow:     time.Nanosecond,
		DeadlinePolicy:      negotiation.DeadlineEscalate,
		NearAgreementSpread: 0.1,
	})
	round := env.openSelectionRound(t, twoParties())

	time.Sleep(time.Millisecond)
	env.comp.checkDeadlines(context.Background())

	env.mustStage(t, round.CaseID, dispute.StageForwardedToCourt)

	stored, _, err := env.rounds.Get(context.Background(), round.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !stored.Closed() || stored.Status != negotiation.RoundEscalated {
		t.Errorf("round status = %s, closed = %v, want escalated and closed", stored.Status, stored.Closed())
	}
	if got := env.comp.roundsExpired.Load(); got != 1 {
		t.Errorf("roundsExpired = %d, want 1", got)
	}

	expired := 0
	for _, ev := range env.rec.Events() {
		if _, ok := ev.(*negotiation.RoundExpiredEvent); ok {
			expired++
		}
	}
	if expired != 1 {
		t.Errorf("RoundExpiredEvent count = %d, want 1", expired)
	}
}

func TestCheckDeadlines_SkipsUnexpiredRound(t *testing.T) {
	env := newTestEnv(t, negotiation.Config{
		MaxCompromiseRounds: 3,
		SelectionWindow:     time.Hour,
		DeadlinePolicy:      negotiation.DeadlineEscalate,
		NearAgreementSpread: 0.1,
	})
	round := env.openSelectionRound(t, twoParties())

	env.comp.checkDeadlines(context.Background())

	env.mustStage(t, round.CaseID, dispute.StageAwaitingSelection)
	if got := env.comp.roundsExpired.Load(); got != 0 {
		t.Errorf("roundsExpired = %d, want 0", got)
	}
}

func TestCheckDeadlines_CompromiseWithPartialSelections(t *testing.T) {
	env := newTestEnv(t, negotiation.Config{
		MaxCompromiseRounds: 3,
		SelectionWindow:     50 * time.Millisecond,
		DeadlinePolicy:      negotiation.DeadlineCompromise,
		NearAgreementSpread: 0.1,
	})
	parties := []dispute.Party{
		dispute.NewParty(dispute.RoleClaimant, "Asha"),
		dispute.NewParty(dispute.RoleRespondent, "Vikram"),
		dispute.NewParty(dispute.RoleRespondent, "Meera"),
	}
	round := env.openSelectionRound(t, parties)

	// Two of three parties pick different options before the deadline.
	ctx := context.Background()
	if _, err := env.engine.RecordSelection(ctx, round.ID, parties[0].ID, round.Options[0].ID, ""); err != nil {
		t.Fatalf("RecordSelection() error: %v", err)
	}
	if _, err := env.engine.RecordSelection(ctx, round.ID, parties[1].ID, round.Options[1].ID, ""); err != nil {
		t.Fatalf("RecordSelection() error: %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	env.comp.checkDeadlines(ctx)

	// The compromise path closes the expired round and opens a new one.
	env.mustStage(t, round.CaseID, dispute.StageAwaitingSelection)

	stored, _, err := env.rounds.Get(ctx, round.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if stored.Status != negotiation.RoundCompromisePending {
		t.Errorf("expired round status = %s, want %s", stored.Status, negotiation.RoundCompromisePending)
	}

	status, err := env.engine.Status(ctx, round.CaseID)
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if len(status.Rounds) != 2 {
		t.Fatalf("round count = %d, want 2", len(status.Rounds))
	}
}

func TestCheckDeadlines_Redelivery(t *testing.T) {
	env := newTestEnv(t, negotiation.Config{
		MaxCompromiseRounds: 3,
		SelectionWindow:     time.Nanosecond,
		DeadlinePolicy:      negotiation.DeadlineEscalate,
		NearAgreementSpread: 0.1,
	})
	env.openSelectionRound(t, twoParties())

	time.Sleep(time.Millisecond)
	ctx := context.Background()
	env.comp.checkDeadlines(ctx)
	env.comp.checkDeadlines(ctx)

	if got := env.comp.roundsExpired.Load(); got != 1 {
		t.Errorf("roundsExpired = %d after rescan, want 1", got)
	}
	if got := env.comp.checksPerformed.Load(); got != 2 {
		t.Errorf("checksPerformed = %d, want 2", got)
	}
}

func TestComponent_Meta(t *testing.T) {
	c := &Component{name: "round-timeout"}

	meta := c.Meta()
	if meta.Name != "round-timeout" {
		t.Errorf("Meta.Name = %q, want %q", meta.Name, "round-timeout")
	}
	if meta.Type != "processor" {
		t.Errorf("Meta.Type = %q, want %q", meta.Type, "processor")
	}
	if meta.Description == "" {
		t.Error("Meta.Description should not be empty")
	}
}

func TestComponent_Health(t *testing.T) {
	c := &Component{
		name:   "round-timeout",
		logger: slog.Default(),
	}

	health := c.Health()
	if health.Healthy {
		t.Error("Health.Healthy should be false when stopped")
	}
	if health.Status != "stopped" {
		t.Errorf("Health.Status = %q, want %q", health.Status, "stopped")
	}

	c.mu.Lock()
	c.running = true
	c.startTime = time.Now()
	c.mu.Unlock()

	health = c.Health()
	if !health.Healthy {
		t.Error("Health.Healthy should be true when running")
	}
	if health.Status != "running" {
		t.Errorf("Health.Status = %q, want %q", health.Status, "running")
	}
}

func TestConfig_GeneratorFromModelSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelDefault = "qwen2.5-coder:32b"
	cfg.ModelEndpoint = "http://localhost:11434/v1"
	cfg.ModelTemperature = 0.2
	cfg.ModelTimeoutSeconds = 60

	if cfg.generator(slog.Default()) == nil {
		t.Fatal("expected a generator built from the model settings")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			config:  DefaultConfig(),
			wantErr: false,
		},
		{
			name: "zero check interval",
			config: Config{
				CheckIntervalSeconds: 0,
				MaxCompromiseRounds:  3,
				DeadlinePolicy:       "compromise",
			},
			wantErr: true,
		},
		{
			name: "unknown deadline policy",
			config: Config{
				CheckIntervalSeconds: 30,
				MaxCompromiseRounds:  3,
				DeadlinePolicy:       "split",
			},
			wantErr: true,
		},
		{
			name: "zero compromise rounds",
			config: Config{
				CheckIntervalSeconds: 30,
				MaxCompromiseRounds:  0,
				DeadlinePolicy:       "compromise",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
