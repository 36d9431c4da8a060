package caseapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/accordhq/accord/dispute"
	"github.com/accordhq/accord/negotiation"
	"github.com/accordhq/accord/notify"
	"github.com/accordhq/accord/proposal"
)

type stubGenerator struct {
	options  []proposal.Option
	genErr   error
	synthErr error
}

func (g *stubGenerator) GenerateOptions(_ context.Context, _ proposal.CaseContext) ([]proposal.Option, error) {
	if g.genErr != nil {
		return nil, g.genErr
	}
	return g.options, nil
}

func (g *stubGenerator) SynthesizeCompromise(_ context.Context, _ proposal.CaseContext, _ []proposal.Option) (proposal.Option, error) {
	if g.synthErr != nil {
		return proposal.Option{}, g.synthErr
	}
	return proposal.Option{}, fmt.Errorf("not configured")
}

// newTestServer wires a component with in-memory stores behind httptest.
func newTestServer(t *testing.T, gen proposal.Generator) *httptest.Server {
	t.Helper()

	cases := dispute.NewMemoryCaseStore()
	machine := dispute.NewMachine(cases, notify.Nop{}, slog.Default())
	engine := negotiation.NewEngine(machine, cases, negotiation.NewMemoryRoundStore(),
		gen, notify.Nop{}, slog.Default(), negotiation.DefaultConfig())

	comp := &Component{
		name:    "case-api",
		config:  DefaultConfig(),
		logger:  slog.Default(),
		machine: machine,
		engine:  engine,
	}

	mux := http.NewServeMux()
	comp.RegisterHTTPHandlers("/case-api/", mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) (*http.Response, []byte) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func getJSON(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func fileTestCase(t *testing.T, srv *httptest.Server) *dispute.Case {
	t.Helper()
	resp, body := postJSON(t, srv.URL+"/case-api/cases", map[string]any{
		"title": "Unpaid invoice",
		"parties": []map[string]string{
			{"role": "claimant", "name": "Asha"},
			{"role": "respondent", "name": "Vikram"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("file case: status = %d, body = %s", resp.StatusCode, body)
	}
	var c dispute.Case
	if err := json.Unmarshal(body, &c); err != nil {
		t.Fatalf("unmarshal case: %v", err)
	}
	return &c
}

func defaultOptions() []proposal.Option {
	return []proposal.Option{
		{Rank: 1, Amount: 50000, Currency: "INR", PaymentTerms: "lump sum",
			FairnessScore: 0.8, AcceptanceProbability: 0.7, Rationale: "split"},
		{Rank: 2, Amount: 80000, Currency: "INR", PaymentTerms: "installments",
			FairnessScore: 0.6, AcceptanceProbability: 0.5, Rationale: "staged"},
		{Rank: 3, Amount: 100000, Currency: "INR", PaymentTerms: "installments",
			FairnessScore: 0.5, AcceptanceProbability: 0.4, Rationale: "full"},
	}
}

func TestFileCaseValidation(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{
			"missing title",
			map[string]any{"parties": []map[string]string{
				{"role": "claimant", "name": "A"},
				{"role": "respondent", "name": "B"},
			}},
			http.StatusBadRequest,
		},
		{
			"invalid role",
			map[string]any{"title": "t", "parties": []map[string]string{
				{"role": "witness", "name": "A"},
				{"role": "respondent", "name": "B"},
			}},
			http.StatusBadRequest,
		},
		{
			"single party",
			map[string]any{"title": "t", "parties": []map[string]string{
				{"role": "claimant", "name": "A"},
			}},
			http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := postJSON(t, srv.URL+"/case-api/cases", tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestFullNegotiationFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{options: defaultOptions()})
	c := fileTestCase(t, srv)
	base := srv.URL + "/case-api/cases/" + c.ID

	// Drive statement collection
	for _, target := range []string{"AWAITING_RESPONDENT", "STATEMENT_COLLECTION"} {
		resp, body := postJSON(t, base+"/transition", map[string]string{
			"target_stage": target, "actor": "system",
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("transition %s: status = %d, body = %s", target, resp.StatusCode, body)
		}
	}
	for _, p := range c.Parties {
		resp, body := postJSON(t, base+"/statements", map[string]string{
			"party_id": p.ID, "text": "statement from " + p.Name,
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("statement: status = %d, body = %s", resp.StatusCode, body)
		}
	}
	if resp, body := postJSON(t, base+"/finalize", map[string]string{"actor": "system"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("finalize: status = %d, body = %s", resp.StatusCode, body)
	}

	// Analysis opens a round
	resp, body := postJSON(t, base+"/analyze", map[string]string{"actor": "system"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("analyze: status = %d, body = %s", resp.StatusCode, body)
	}
	var round negotiation.Round
	if err := json.Unmarshal(body, &round); err != nil {
		t.Fatalf("unmarshal round: %v", err)
	}
	if len(round.Options) != 3 {
		t.Fatalf("options = %d, want 3", len(round.Options))
	}

	// An option ID that is not part of this round is rejected
	resp, _ = postJSON(t, srv.URL+"/case-api/rounds/"+round.ID+"/select", map[string]string{
		"party_id": c.Parties[0].ID, "option_id": "o-bogus",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("bogus option: status = %d, want 404", resp.StatusCode)
	}

	// Both parties select the same option
	agreed := round.Options[0].ID
	for _, p := range c.Parties {
		resp, body := postJSON(t, srv.URL+"/case-api/rounds/"+round.ID+"/select", map[string]string{
			"party_id": p.ID, "option_id": agreed, "reasoning": "acceptable split",
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("select: status = %d, body = %s", resp.StatusCode, body)
		}
	}

	// Status shows the settled case
	resp, body = getJSON(t, base+"/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: status = %d, body = %s", resp.StatusCode, body)
	}
	var status negotiation.CaseStatus
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if status.Stage != dispute.StageSettlementReady {
		t.Errorf("stage = %s, want %s", status.Stage, dispute.StageSettlementReady)
	}
	if len(status.Rounds) != 1 || status.Rounds[0].Status != negotiation.RoundConsensus {
		t.Errorf("rounds = %+v, want one consensus round", status.Rounds)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{options: defaultOptions()})
	c := fileTestCase(t, srv)
	base := srv.URL + "/case-api/cases/" + c.ID

	t.Run("unknown case is 404", func(t *testing.T) {
		resp, _ := getJSON(t, srv.URL+"/case-api/cases/c-missing/status")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("invalid transition is 409", func(t *testing.T) {
		resp, _ := postJSON(t, base+"/transition", map[string]string{
			"target_stage": "SETTLEMENT_READY", "actor": "system",
		})
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("status = %d, want 409", resp.StatusCode)
		}
	})

	t.Run("unknown stage is 400", func(t *testing.T) {
		resp, _ := postJSON(t, base+"/transition", map[string]string{
			"target_stage": "LIMBO", "actor": "system",
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("statement outside collection is 409", func(t *testing.T) {
		resp, _ := postJSON(t, base+"/statements", map[string]string{
			"party_id": c.Parties[0].ID, "text": "too early",
		})
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("status = %d, want 409", resp.StatusCode)
		}
	})

	t.Run("unknown round is 404", func(t *testing.T) {
		resp, _ := postJSON(t, srv.URL+"/case-api/rounds/r-missing/select", map[string]string{
			"party_id": c.Parties[0].ID, "option_id": "o-1",
		})
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("unknown party is 404", func(t *testing.T) {
		for _, target := range []string{"AWAITING_RESPONDENT", "STATEMENT_COLLECTION"} {
			postJSON(t, base+"/transition", map[string]string{"target_stage": target, "actor": "system"})
		}
		resp, _ := postJSON(t, base+"/statements", map[string]string{
			"party_id": "p-ghost", "text": "not on the roster",
		})
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})
}

func TestSelectionOnClosedRoundIs423(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{options: defaultOptions()})
	c := fileTestCase(t, srv)
	base := srv.URL + "/case-api/cases/" + c.ID

	for _, target := range []string{"AWAITING_RESPONDENT", "STATEMENT_COLLECTION"} {
		postJSON(t, base+"/transition", map[string]string{"target_stage": target, "actor": "system"})
	}
	for _, p := range c.Parties {
		postJSON(t, base+"/statements", map[string]string{"party_id": p.ID, "text": "s"})
	}
	postJSON(t, base+"/finalize", map[string]string{"actor": "system"})

	_, body := postJSON(t, base+"/analyze", map[string]string{"actor": "system"})
	var round negotiation.Round
	if err := json.Unmarshal(body, &round); err != nil {
		t.Fatalf("unmarshal round: %v", err)
	}

	// Escalate closes the round
	if resp, body := postJSON(t, base+"/escalate", map[string]string{"actor": c.Parties[0].ID, "reason": "opting out"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("escalate: status = %d, body = %s", resp.StatusCode, body)
	}

	resp, _ := postJSON(t, srv.URL+"/case-api/rounds/"+round.ID+"/select", map[string]string{
		"party_id": c.Parties[0].ID, "option_id": round.Options[0].ID,
	})
	if resp.StatusCode != http.StatusLocked {
		t.Errorf("status = %d, want 423", resp.StatusCode)
	}
}

func TestAnalysisFailureForwardsToCourtOverHTTP(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{genErr: fmt.Errorf("all endpoints failed")})
	c := fileTestCase(t, srv)
	base := srv.URL + "/case-api/cases/" + c.ID

	for _, target := range []string{"AWAITING_RESPONDENT", "STATEMENT_COLLECTION"} {
		postJSON(t, base+"/transition", map[string]string{"target_stage": target, "actor": "system"})
	}
	for _, p := range c.Parties {
		postJSON(t, base+"/statements", map[string]string{"party_id": p.ID, "text": "s"})
	}
	postJSON(t, base+"/finalize", map[string]string{"actor": "system"})

	resp, _ := postJSON(t, base+"/analyze", map[string]string{"actor": "system"})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("analyze status = %d, want 500", resp.StatusCode)
	}

	_, body := getJSON(t, base+"/status")
	var status negotiation.CaseStatus
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if status.Stage != dispute.StageForwardedToCourt {
		t.Errorf("stage = %s, want %s", status.Stage, dispute.StageForwardedToCourt)
	}
}
