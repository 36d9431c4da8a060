package model

import "testing"

func TestResolve(t *testing.T) {
	r := NewDefaultRegistry()

	tests := []struct {
		cap  Capability
		want string
	}{
		{CapabilityAnalysis, "claude-sonnet"},
		{CapabilitySynthesis, "claude-sonnet"},
		{CapabilityFast, "claude-haiku"},
		{Capability("nonexistent"), "qwen"}, // falls to default
	}

	for _, tt := range tests {
		if got := r.Resolve(tt.cap); got != tt.want {
			t.Errorf("Resolve(%s) = %q, want %q", tt.cap, got, tt.want)
		}
	}
}

func TestGetFallbackChain(t *testing.T) {
	r := NewDefaultRegistry()

	chain := r.GetFallbackChain(CapabilityAnalysis)
	want := []string{"claude-sonnet", "gpt-4o", "qwen"}
	if len(chain) != len(want) {
		t.Fatalf("chain = %v, want %v", chain, want)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Errorf("chain[%d] = %q, want %q", i, chain[i], want[i])
		}
	}

	// Unknown capability yields the default model only
	chain = r.GetFallbackChain(Capability("nonexistent"))
	if len(chain) != 1 || chain[0] != "qwen" {
		t.Errorf("chain = %v, want [qwen]", chain)
	}
}

func TestNewRegistryWithDefault(t *testing.T) {
	r := NewRegistryWithDefault("qwen2.5-coder:32b", "http://localhost:11434/v1")

	ep := r.GetEndpoint("qwen2.5-coder:32b")
	if ep == nil {
		t.Fatal("expected endpoint for configured model")
	}
	if ep.Provider != "ollama" {
		t.Errorf("provider = %q, want ollama", ep.Provider)
	}
	if ep.URL != "http://localhost:11434/v1" {
		t.Errorf("url = %q, want the configured endpoint", ep.URL)
	}

	for _, cap := range []Capability{CapabilityAnalysis, CapabilitySynthesis, CapabilityFast} {
		if got := r.Resolve(cap); got != "qwen2.5-coder:32b" {
			t.Errorf("Resolve(%s) = %q, want the configured model", cap, got)
		}
		chain := r.GetFallbackChain(cap)
		if len(chain) < 2 {
			t.Errorf("chain for %s = %v, want stock fallbacks after the configured model", cap, chain)
		}
	}

	// Unknown capability falls to the configured default
	if got := r.Resolve(Capability("nonexistent")); got != "qwen2.5-coder:32b" {
		t.Errorf("default = %q, want the configured model", got)
	}
}

func TestNewRegistryWithDefaultEmptyName(t *testing.T) {
	r := NewRegistryWithDefault("", "")

	if got := r.Resolve(CapabilityAnalysis); got != "claude-sonnet" {
		t.Errorf("Resolve(analysis) = %q, want the stock default", got)
	}
}

func TestGetEndpoint(t *testing.T) {
	r := NewDefaultRegistry()

	ep := r.GetEndpoint("claude-sonnet")
	if ep == nil {
		t.Fatal("expected endpoint for claude-sonnet")
	}
	if ep.Provider != "anthropic" {
		t.Errorf("provider = %q, want anthropic", ep.Provider)
	}

	if r.GetEndpoint("nonexistent") != nil {
		t.Error("unknown model should return nil")
	}
}

func TestSetters(t *testing.T) {
	r := NewRegistry(nil, nil)

	r.SetEndpoint("local", &EndpointConfig{Provider: "ollama", Model: "llama3"})
	r.SetCapability(CapabilityFast, &CapabilityConfig{Preferred: []string{"local"}})
	r.SetDefault("local")

	if got := r.Resolve(CapabilityFast); got != "local" {
		t.Errorf("Resolve() = %q, want local", got)
	}
	if ep := r.GetEndpoint("local"); ep == nil || ep.Model != "llama3" {
		t.Errorf("endpoint = %+v, want llama3", ep)
	}
}

func TestRegistryJSONRoundTrip(t *testing.T) {
	r := NewDefaultRegistry()

	data, err := r.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error: %v", err)
	}

	var restored Registry
	if err := restored.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON() error: %v", err)
	}

	if got := restored.Resolve(CapabilityAnalysis); got != "claude-sonnet" {
		t.Errorf("restored Resolve() = %q, want claude-sonnet", got)
	}
}

func TestParseCapability(t *testing.T) {
	tests := []struct {
		in   string
		want Capability
	}{
		{"analysis", CapabilityAnalysis},
		{"synthesis", CapabilitySynthesis},
		{"fast", CapabilityFast},
		{"bogus", ""},
	}

	for _, tt := range tests {
		if got := ParseCapability(tt.in); got != tt.want {
			t.Errorf("ParseCapability(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
