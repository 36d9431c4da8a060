// Package proposal defines the settlement proposal generator capability and
// its LLM-backed implementation. The workflow core depends only on the
// Generator interface; the vendor, model, and prompt wording live behind it.
package proposal

import (
	"context"
	"fmt"
)

// Option is a settlement option as produced by a generator. It carries no
// identity; the negotiation registry assigns IDs when options are stored.
type Option struct {
	// Rank orders options by the generator's preference, 1 being first.
	Rank int `json:"rank"`

	// Amount is the monetary component in minor currency units
	// (paise, cents).
	Amount int64 `json:"amount"`

	// Currency is the ISO 4217 code, e.g. "INR".
	Currency string `json:"currency"`

	// PaymentTerms describes how the amount is paid
	// (e.g. "lump sum within 30 days").
	PaymentTerms string `json:"payment_terms"`

	// NonMonetaryTerms lists non-monetary obligations.
	NonMonetaryTerms []string `json:"non_monetary_terms,omitempty"`

	// FairnessScore is the generator's 0..1 fairness estimate.
	FairnessScore float64 `json:"fairness_score"`

	// AcceptanceProbability is the generator's 0..1 estimate that both
	// parties accept this option.
	AcceptanceProbability float64 `json:"acceptance_probability"`

	// Rationale is the legal/plain-language justification.
	Rationale string `json:"rationale"`
}

// Validate checks structural validity of a generated option.
func (o *Option) Validate() error {
	if o.Amount < 0 {
		return fmt.Errorf("amount must be non-negative, got %d", o.Amount)
	}
	if o.Currency == "" {
		return fmt.Errorf("currency is required")
	}
	if o.PaymentTerms == "" {
		return fmt.Errorf("payment_terms is required")
	}
	if o.FairnessScore < 0 || o.FairnessScore > 1 {
		return fmt.Errorf("fairness_score must be in [0,1], got %v", o.FairnessScore)
	}
	if o.AcceptanceProbability < 0 || o.AcceptanceProbability > 1 {
		return fmt.Errorf("acceptance_probability must be in [0,1], got %v", o.AcceptanceProbability)
	}
	return nil
}

// CaseContext is the slice of the case record a generator sees.
type CaseContext struct {
	CaseID     string
	Title      string
	Round      int
	Statements []StatementContext
}

// StatementContext is one party's statement as presented to the generator.
type StatementContext struct {
	Role string
	Text string
}

// Generator produces settlement options from case context.
//
// Implementations must return within the caller's context deadline; the
// caller treats any error, timeout, or malformed result as a failed call
// and falls back to deterministic logic, so Generator implementations
// should not retry beyond their own transport-level policy.
type Generator interface {
	// GenerateOptions returns ranked settlement options for a fresh
	// analysis round. The result is non-empty on success.
	GenerateOptions(ctx context.Context, cc CaseContext) ([]Option, error)

	// SynthesizeCompromise returns exactly one option bridging the
	// disputed options. Callers enforce the amount bound
	// [min(disputed), max(disputed)] and discard violating results.
	SynthesizeCompromise(ctx context.Context, cc CaseContext, disputed []Option) (Option, error)
}
