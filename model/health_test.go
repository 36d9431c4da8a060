package model

import (
	"testing"
	"time"
)

func TestCircuitOpensAfterThreshold(t *testing.T) {
	r := NewDefaultRegistry()

	if !r.IsEndpointAvailable("claude-sonnet") {
		t.Fatal("endpoint should start available")
	}

	for i := 0; i < DefaultHealthConfig().FailureThreshold; i++ {
		r.MarkEndpointFailure("claude-sonnet")
	}

	if r.IsEndpointAvailable("claude-sonnet") {
		t.Error("circuit should be open after threshold failures")
	}

	health := r.GetEndpointHealth("claude-sonnet")
	if health == nil || !health.CircuitOpen {
		t.Errorf("health = %+v, want open circuit", health)
	}
}

func TestSuccessResetsCircuit(t *testing.T) {
	r := NewDefaultRegistry()

	for i := 0; i < DefaultHealthConfig().FailureThreshold; i++ {
		r.MarkEndpointFailure("claude-sonnet")
	}
	r.MarkEndpointSuccess("claude-sonnet")

	if !r.IsEndpointAvailable("claude-sonnet") {
		t.Error("success should close the circuit")
	}
	health := r.GetEndpointHealth("claude-sonnet")
	if health.FailureCount != 0 {
		t.Errorf("failure count = %d, want 0", health.FailureCount)
	}
}

func TestHalfOpenAfterRecoveryTimeout(t *testing.T) {
	r := NewDefaultRegistry()
	r.SetHealthConfig(HealthConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Millisecond,
	})

	r.MarkEndpointFailure("claude-sonnet")
	if r.IsEndpointAvailable("claude-sonnet") {
		t.Fatal("circuit should be open")
	}

	time.Sleep(5 * time.Millisecond)

	if !r.IsEndpointAvailable("claude-sonnet") {
		t.Error("endpoint should be half-open after recovery timeout")
	}
}

func TestGetAvailableFallbackChain(t *testing.T) {
	r := NewDefaultRegistry()

	for i := 0; i < DefaultHealthConfig().FailureThreshold; i++ {
		r.MarkEndpointFailure("claude-sonnet")
	}

	chain := r.GetAvailableFallbackChain(CapabilityAnalysis)
	for _, name := range chain {
		if name == "claude-sonnet" {
			t.Error("unavailable endpoint should be filtered from chain")
		}
	}
	if len(chain) != 2 {
		t.Errorf("chain = %v, want the two healthy fallbacks", chain)
	}
}

func TestFullChainWhenAllUnavailable(t *testing.T) {
	r := NewDefaultRegistry()

	for _, name := range []string{"claude-sonnet", "gpt-4o", "qwen"} {
		for i := 0; i < DefaultHealthConfig().FailureThreshold; i++ {
			r.MarkEndpointFailure(name)
		}
	}

	// Better to try something than nothing
	chain := r.GetAvailableFallbackChain(CapabilityAnalysis)
	if len(chain) != 3 {
		t.Errorf("chain = %v, want the full chain when everything is down", chain)
	}
}
