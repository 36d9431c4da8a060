package proposal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/accordhq/accord/llm"
	"github.com/accordhq/accord/model"
)

// Option count bounds enforced on generator output.
const (
	minGeneratedOptions = 3
	maxGeneratedOptions = 5
)

// LLMGenerator produces settlement options by prompting an LLM through
// the capability-routed client.
type LLMGenerator struct {
	client      *llm.Client
	logger      *slog.Logger
	temperature *float64
}

// GeneratorOption configures an LLMGenerator.
type GeneratorOption func(*LLMGenerator)

// WithTemperature sets the sampling temperature on every request instead
// of leaving it to the endpoint default.
func WithTemperature(t float64) GeneratorOption {
	return func(g *LLMGenerator) {
		g.temperature = &t
	}
}

// NewLLMGenerator creates a generator backed by the given LLM client.
func NewLLMGenerator(client *llm.Client, logger *slog.Logger, opts ...GeneratorOption) *LLMGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	g := &LLMGenerator{client: client, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateOptions asks the analysis model for a ranked set of settlement
// options based on the finalized party statements.
func (g *LLMGenerator) GenerateOptions(ctx context.Context, cc CaseContext) ([]Option, error) {
	if len(cc.Statements) == 0 {
		return nil, fmt.Errorf("no statements to analyze for case %s", cc.CaseID)
	}

	resp, err := g.client.Complete(ctx, llm.Request{
		Capability: string(model.CapabilityAnalysis),
		Messages: []llm.Message{
			{Role: "system", Content: optionsSystemPrompt},
			{Role: "user", Content: buildOptionsPrompt(cc)},
		},
		Temperature: g.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("generate options for case %s: %w", cc.CaseID, err)
	}

	options, err := parseOptions(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("parse options for case %s: %w", cc.CaseID, err)
	}

	g.logger.Debug("Generated settlement options",
		"case_id", cc.CaseID,
		"round", cc.Round,
		"options", len(options),
		"model", resp.Model,
		"tokens", resp.Usage.TotalTokens)

	return options, nil
}

// SynthesizeCompromise asks the synthesis model for a single middle-ground
// option between the parties' conflicting selections. Callers are expected
// to validate the result against the disputed amount bounds and fall back
// to a deterministic midpoint when this fails.
func (g *LLMGenerator) SynthesizeCompromise(ctx context.Context, cc CaseContext, disputed []Option) (Option, error) {
	if len(disputed) < 2 {
		return Option{}, fmt.Errorf("compromise needs at least 2 disputed options, got %d", len(disputed))
	}

	resp, err := g.client.Complete(ctx, llm.Request{
		Capability: string(model.CapabilitySynthesis),
		Messages: []llm.Message{
			{Role: "system", Content: compromiseSystemPrompt},
			{Role: "user", Content: buildCompromisePrompt(cc, disputed)},
		},
		Temperature: g.temperature,
	})
	if err != nil {
		return Option{}, fmt.Errorf("synthesize compromise for case %s: %w", cc.CaseID, err)
	}

	opt, err := parseOption(resp.Content)
	if err != nil {
		return Option{}, fmt.Errorf("parse compromise for case %s: %w", cc.CaseID, err)
	}

	g.logger.Debug("Synthesized compromise option",
		"case_id", cc.CaseID,
		"amount", opt.Amount,
		"model", resp.Model,
		"tokens", resp.Usage.TotalTokens)

	return opt, nil
}

// parseOptions extracts and validates a ranked option list from LLM output.
func parseOptions(content string) ([]Option, error) {
	raw := llm.ExtractJSONArray(content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var options []Option
	if err := json.Unmarshal([]byte(raw), &options); err != nil {
		return nil, fmt.Errorf("unmarshal options: %w", err)
	}

	if len(options) < minGeneratedOptions || len(options) > maxGeneratedOptions {
		return nil, fmt.Errorf("expected %d-%d options, got %d", minGeneratedOptions, maxGeneratedOptions, len(options))
	}

	// Normalize ranks to 1..N by sort order rather than trusting the model
	sort.SliceStable(options, func(i, j int) bool {
		return options[i].Rank < options[j].Rank
	})
	for i := range options {
		options[i].Rank = i + 1
		if err := options[i].Validate(); err != nil {
			return nil, fmt.Errorf("option %d: %w", i+1, err)
		}
	}

	return options, nil
}

// parseOption extracts and validates a single option from LLM output.
func parseOption(content string) (Option, error) {
	raw := llm.ExtractJSON(content)
	if raw == "" {
		return Option{}, fmt.Errorf("no JSON object in response")
	}

	var opt Option
	if err := json.Unmarshal([]byte(raw), &opt); err != nil {
		return Option{}, fmt.Errorf("unmarshal option: %w", err)
	}

	opt.Rank = 1
	if err := opt.Validate(); err != nil {
		return Option{}, err
	}

	return opt, nil
}
