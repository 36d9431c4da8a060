package proposal

import (
	"fmt"
	"strings"
)

// optionsSystemPrompt instructs the model to act as a neutral mediator
// producing ranked settlement options.
const optionsSystemPrompt = `You are a neutral dispute mediator. Given the statements of the
parties in a dispute, produce a ranked list of settlement options that could resolve it.

Rules:
- Produce between 3 and 5 options.
- Every option must be actionable and specific.
- Monetary amounts are integers in minor currency units (e.g. cents, paise).
- fairness_score and acceptance_probability are between 0 and 1.
- rationale explains in one or two sentences why the option is fair.

Respond with ONLY a JSON array, no prose:
[
  {
    "rank": 1,
    "amount": 5000000,
    "currency": "INR",
    "payment_terms": "single transfer within 30 days",
    "non_monetary_terms": ["written apology"],
    "fairness_score": 0.8,
    "acceptance_probability": 0.7,
    "rationale": "why this option is fair"
  }
]`

// compromiseSystemPrompt instructs the model to synthesize a single
// middle-ground option from the options the parties disagreed over.
const compromiseSystemPrompt = `You are a neutral dispute mediator. The parties each selected a
different settlement option. Synthesize ONE new compromise option between their selections.

Rules:
- The compromise amount MUST lie between the lowest and highest selected amounts, inclusive.
- Amounts are integers in minor currency units.
- Combine non-monetary terms from both selections where they do not conflict.
- fairness_score and acceptance_probability are between 0 and 1.
- rationale explains how the compromise bridges the positions.

Respond with ONLY a JSON object, no prose:
{
  "amount": 7500000,
  "currency": "INR",
  "payment_terms": "single transfer within 30 days",
  "non_monetary_terms": [],
  "fairness_score": 0.8,
  "acceptance_probability": 0.7,
  "rationale": "how this bridges the positions"
}`

// buildOptionsPrompt renders the case statements into the user prompt
// for option generation.
func buildOptionsPrompt(cc CaseContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Dispute: %s\n", cc.Title)
	if cc.Round > 1 {
		fmt.Fprintf(&b, "This is negotiation round %d. Earlier rounds did not reach agreement, so propose fresh alternatives.\n", cc.Round)
	}
	b.WriteString("\nParty statements:\n")
	for _, s := range cc.Statements {
		fmt.Fprintf(&b, "\n[%s]\n%s\n", s.Role, s.Text)
	}
	b.WriteString("\nProduce the ranked settlement options now.")

	return b.String()
}

// buildCompromisePrompt renders the disputed selections into the user
// prompt for compromise synthesis.
func buildCompromisePrompt(cc CaseContext, disputed []Option) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Dispute: %s\n", cc.Title)
	b.WriteString("\nParty statements:\n")
	for _, s := range cc.Statements {
		fmt.Fprintf(&b, "\n[%s]\n%s\n", s.Role, s.Text)
	}

	b.WriteString("\nThe parties selected these conflicting options:\n")
	for _, opt := range disputed {
		fmt.Fprintf(&b, "\n- amount %d %s, terms: %s", opt.Amount, opt.Currency, opt.PaymentTerms)
		if len(opt.NonMonetaryTerms) > 0 {
			fmt.Fprintf(&b, ", non-monetary: %s", strings.Join(opt.NonMonetaryTerms, "; "))
		}
	}
	b.WriteString("\n\nSynthesize the single compromise option now.")

	return b.String()
}
