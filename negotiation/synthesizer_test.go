package negotiation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/accordhq/accord/proposal"
)

type fakeGenerator struct {
	options    []proposal.Option
	genErr     error
	compromise *proposal.Option
	synthErr   error

	// gate, when set, makes GenerateOptions rendezvous with the other
	// callers before returning. Lets tests hold several callers inside
	// generation at once.
	gate *sync.WaitGroup
}

func (g *fakeGenerator) GenerateOptions(_ context.Context, _ proposal.CaseContext) ([]proposal.Option, error) {
	if g.gate != nil {
		g.gate.Done()
		g.gate.Wait()
	}
	if g.genErr != nil {
		return nil, g.genErr
	}
	return g.options, nil
}

func (g *fakeGenerator) SynthesizeCompromise(_ context.Context, _ proposal.CaseContext, _ []proposal.Option) (proposal.Option, error) {
	if g.synthErr != nil {
		return proposal.Option{}, g.synthErr
	}
	if g.compromise == nil {
		return proposal.Option{}, errors.New("no compromise configured")
	}
	return *g.compromise, nil
}

func disputedPair() []proposal.Option {
	return []proposal.Option{
		{Rank: 1, Amount: 50000, Currency: "INR", PaymentTerms: "lump sum within 30 days"},
		{Rank: 3, Amount: 100000, Currency: "INR", PaymentTerms: "three installments",
			NonMonetaryTerms: []string{"written apology"}},
	}
}

func TestSynthesizeUsesGeneratorResult(t *testing.T) {
	gen := &fakeGenerator{compromise: &proposal.Option{
		Amount:       80000,
		Currency:     "INR",
		PaymentTerms: "two installments",
		Rationale:    "bridges both positions",
	}}
	s := NewSynthesizer(gen, 0, nil)

	got := s.Synthesize(context.Background(), proposal.CaseContext{CaseID: "c-1"}, disputedPair())

	if got.Amount != 80000 {
		t.Errorf("amount = %d, want 80000", got.Amount)
	}
	if got.Rationale == fallbackRationale {
		t.Error("generator result should not be the fallback")
	}
}

func TestSynthesizeFallsBackOnError(t *testing.T) {
	gen := &fakeGenerator{synthErr: errors.New("model unavailable")}
	s := NewSynthesizer(gen, 0, nil)

	got := s.Synthesize(context.Background(), proposal.CaseContext{CaseID: "c-1"}, disputedPair())

	// Midpoint of 50000 and 100000
	if got.Amount != 75000 {
		t.Errorf("amount = %d, want 75000", got.Amount)
	}
	if got.Rationale != fallbackRationale {
		t.Errorf("rationale = %q, want fallback rationale", got.Rationale)
	}
	if got.Currency != "INR" {
		t.Errorf("currency = %q, want INR", got.Currency)
	}
	if len(got.NonMonetaryTerms) != 1 || got.NonMonetaryTerms[0] != "written apology" {
		t.Errorf("non-monetary terms = %v, want union of disputed terms", got.NonMonetaryTerms)
	}
}

func TestSynthesizeRejectsOutOfBoundsAmount(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
	}{
		{"below minimum", 10000},
		{"above maximum", 200000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{compromise: &proposal.Option{
				Amount:       tt.amount,
				Currency:     "INR",
				PaymentTerms: "whatever",
			}}
			s := NewSynthesizer(gen, 0, nil)

			got := s.Synthesize(context.Background(), proposal.CaseContext{CaseID: "c-1"}, disputedPair())

			if got.Amount != 75000 {
				t.Errorf("amount = %d, want midpoint 75000", got.Amount)
			}
			if got.Rationale != fallbackRationale {
				t.Error("out-of-bounds result must be replaced by the fallback")
			}
		})
	}
}

func TestSynthesizeRejectsCurrencyMismatch(t *testing.T) {
	gen := &fakeGenerator{compromise: &proposal.Option{
		Amount:       75000,
		Currency:     "USD",
		PaymentTerms: "wire",
	}}
	s := NewSynthesizer(gen, 0, nil)

	got := s.Synthesize(context.Background(), proposal.CaseContext{CaseID: "c-1"}, disputedPair())

	if got.Currency != "INR" {
		t.Errorf("currency = %q, want INR from disputed options", got.Currency)
	}
	if got.Rationale != fallbackRationale {
		t.Error("currency mismatch must fall back")
	}
}

func TestSynthesizeWithoutGenerator(t *testing.T) {
	s := NewSynthesizer(nil, 0, nil)

	got := s.Synthesize(context.Background(), proposal.CaseContext{CaseID: "c-1"}, disputedPair())

	if got.Amount != 75000 {
		t.Errorf("amount = %d, want 75000", got.Amount)
	}
}

func TestMidpointStaysWithinBounds(t *testing.T) {
	disputed := []proposal.Option{
		{Amount: 1, Currency: "INR", PaymentTerms: "x"},
		{Amount: 2, Currency: "INR", PaymentTerms: "y"},
	}
	lo, hi := amountBounds(disputed)

	got := midpoint(disputed, lo, hi)

	if got.Amount < lo || got.Amount > hi {
		t.Errorf("amount %d outside [%d, %d]", got.Amount, lo, hi)
	}
}
