package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	base := errors.New("boom")

	transient := NewTransientError(base)
	if !IsTransient(transient) {
		t.Error("expected transient error to be classified transient")
	}
	if IsFatal(transient) {
		t.Error("transient error should not be fatal")
	}
	if !errors.Is(transient, base) {
		t.Error("transient error should unwrap to base")
	}

	fatal := NewFatalError(base)
	if !IsFatal(fatal) {
		t.Error("expected fatal error to be classified fatal")
	}
	if IsTransient(fatal) {
		t.Error("fatal error should not be transient")
	}

	wrapped := fmt.Errorf("outer: %w", transient)
	if !IsTransient(wrapped) {
		t.Error("classification should survive wrapping")
	}
}

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		status        int
		wantTransient bool
	}{
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{401, false},
		{403, false},
		{404, false},
	}

	for _, tt := range tests {
		err := classifyHTTPError(tt.status, []byte("error body"))
		if IsTransient(err) != tt.wantTransient {
			t.Errorf("status %d: transient = %v, want %v", tt.status, IsTransient(err), tt.wantTransient)
		}
	}
}

func TestCalculateBackoff(t *testing.T) {
	c := NewClient(nil)

	for attempt := 1; attempt <= 5; attempt++ {
		backoff := c.calculateBackoff(attempt)
		if backoff <= 0 {
			t.Errorf("attempt %d: backoff %v should be positive", attempt, backoff)
		}
		// Max backoff plus 25% jitter
		limit := c.retryConfig.MaxBackoff + c.retryConfig.MaxBackoff/4
		if backoff > limit {
			t.Errorf("attempt %d: backoff %v exceeds cap %v", attempt, backoff, limit)
		}
	}
}
