package negotiation

import (
	"context"
	"log/slog"
	"time"

	"github.com/accordhq/accord/proposal"
)

// fallbackRationale marks a compromise produced without AI assistance.
const fallbackRationale = "AI synthesis unavailable, computed midpoint applied"

// defaultSynthesisTimeout bounds the AI call; the deterministic fallback
// takes over when it elapses.
const defaultSynthesisTimeout = 30 * time.Second

// Synthesizer produces a compromise option between disputed selections.
// It never fails: when the generator errors, times out, or returns an
// option whose amount falls outside the disputed bounds, a deterministic
// midpoint compromise is substituted.
type Synthesizer struct {
	gen     proposal.Generator
	timeout time.Duration
	logger  *slog.Logger
}

// NewSynthesizer creates a synthesizer over the given generator.
// A zero timeout means the default of 30 seconds.
func NewSynthesizer(gen proposal.Generator, timeout time.Duration, logger *slog.Logger) *Synthesizer {
	if timeout <= 0 {
		timeout = defaultSynthesisTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{gen: gen, timeout: timeout, logger: logger}
}

// Synthesize returns one compromise option bridging the disputed options.
// The result's amount always lies within [min(disputed), max(disputed)].
func (s *Synthesizer) Synthesize(ctx context.Context, cc proposal.CaseContext, disputed []proposal.Option) proposal.Option {
	lo, hi := amountBounds(disputed)

	if s.gen != nil {
		synthCtx, cancel := context.WithTimeout(ctx, s.timeout)
		opt, err := s.gen.SynthesizeCompromise(synthCtx, cc, disputed)
		cancel()

		switch {
		case err != nil:
			s.logger.Warn("Compromise synthesis failed, using midpoint",
				"case_id", cc.CaseID,
				"error", err)
		case opt.Amount < lo || opt.Amount > hi:
			s.logger.Warn("Synthesized amount outside disputed bounds, using midpoint",
				"case_id", cc.CaseID,
				"amount", opt.Amount,
				"min", lo,
				"max", hi)
		case opt.Currency != disputed[0].Currency:
			s.logger.Warn("Synthesized currency mismatch, using midpoint",
				"case_id", cc.CaseID,
				"currency", opt.Currency)
		default:
			opt.Rank = 1
			return opt
		}
	}

	return midpoint(disputed, lo, hi)
}

// amountBounds returns the min and max amounts across the disputed options.
func amountBounds(disputed []proposal.Option) (int64, int64) {
	lo, hi := disputed[0].Amount, disputed[0].Amount
	for _, opt := range disputed[1:] {
		if opt.Amount < lo {
			lo = opt.Amount
		}
		if opt.Amount > hi {
			hi = opt.Amount
		}
	}
	return lo, hi
}

// midpoint builds the deterministic fallback compromise: the arithmetic
// mean of the disputed amounts, payment terms from the first disputed
// option, and the union of non-monetary terms.
func midpoint(disputed []proposal.Option, lo, hi int64) proposal.Option {
	var sum int64
	for _, opt := range disputed {
		sum += opt.Amount
	}
	amount := sum / int64(len(disputed))
	if amount < lo {
		amount = lo
	}
	if amount > hi {
		amount = hi
	}

	seen := map[string]bool{}
	var terms []string
	for _, opt := range disputed {
		for _, term := range opt.NonMonetaryTerms {
			if !seen[term] {
				seen[term] = true
				terms = append(terms, term)
			}
		}
	}

	return proposal.Option{
		Rank:                  1,
		Amount:                amount,
		Currency:              disputed[0].Currency,
		PaymentTerms:          disputed[0].PaymentTerms,
		NonMonetaryTerms:      terms,
		FairnessScore:         0.5,
		AcceptanceProbability: 0.5,
		Rationale:             fallbackRationale,
	}
}
