// Package model provides capability-based model selection for settlement
// analysis. Callers specify a capability (analysis, synthesis, fast) rather
// than a model name; the registry resolves it to configured endpoints with
// a fallback chain and per-endpoint circuit breaking.
package model

// Capability represents a semantic capability for model selection.
type Capability string

const (
	// CapabilityAnalysis is for full settlement analysis: weighing both
	// statements and producing ranked options.
	CapabilityAnalysis Capability = "analysis"

	// CapabilitySynthesis is for compromise drafting between two
	// disputed positions.
	CapabilitySynthesis Capability = "synthesis"

	// CapabilityFast is for quick, low-stakes completions
	// (summaries, notification copy).
	CapabilityFast Capability = "fast"
)

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityAnalysis, CapabilitySynthesis, CapabilityFast:
		return true
	}
	return false
}

// String returns the string representation of the capability.
func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, returning empty for
// invalid values.
func ParseCapability(s string) Capability {
	c := Capability(s)
	if c.IsValid() {
		return c
	}
	return ""
}
