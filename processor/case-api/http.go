package caseapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/accordhq/accord/dispute"
	"github.com/accordhq/accord/negotiation"
)

// RegisterHTTPHandlers registers HTTP handlers for the case-api component.
// The prefix includes the trailing slash (e.g., "/case-api/").
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	mux.HandleFunc(prefix+"cases", c.handleCases)
	mux.HandleFunc(prefix+"cases/", c.handleCaseAction)
	mux.HandleFunc(prefix+"rounds/", c.handleRoundAction)
}

// fileCaseRequest is the body for POST /cases.
type fileCaseRequest struct {
	Title   string `json:"title"`
	Parties []struct {
		Role string `json:"role"`
		Name string `json:"name"`
	} `json:"parties"`
}

// transitionRequest is the body for POST /cases/{id}/transition.
type transitionRequest struct {
	Target string `json:"target_stage"`
	Actor  string `json:"actor"`
	Note   string `json:"note,omitempty"`
}

// statementRequest is the body for POST /cases/{id}/statements.
type statementRequest struct {
	PartyID string `json:"party_id"`
	Text    string `json:"text"`
}

// actorRequest is the body for finalize, analyze and escalate actions.
type actorRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason,omitempty"`
}

// selectRequest is the body for POST /rounds/{id}/select.
type selectRequest struct {
	PartyID   string `json:"party_id"`
	OptionID  string `json:"option_id"`
	Reasoning string `json:"reasoning,omitempty"`
}

// handleCases handles POST /cases (file a new case).
func (c *Component) handleCases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req fileCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	parties := make([]dispute.Party, 0, len(req.Parties))
	for _, p := range req.Parties {
		role := dispute.Role(p.Role)
		if !role.IsValid() {
			writeError(w, http.StatusBadRequest, "invalid party role: "+p.Role)
			return
		}
		parties = append(parties, dispute.NewParty(role, p.Name))
	}
	if draft := dispute.NewCase(req.Title, parties); draft.Validate() != nil {
		writeError(w, http.StatusBadRequest, "a case requires a claimant and a respondent")
		return
	}

	machine, err := c.getMachine(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "case storage not available")
		return
	}

	filed, err := machine.File(r.Context(), req.Title, parties)
	if err != nil {
		c.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, filed)
}

// handleCaseAction dispatches /cases/{id}/{action}.
func (c *Component) handleCaseAction(w http.ResponseWriter, r *http.Request) {
	caseID, action := splitResourcePath(r.URL.Path, "/cases/")
	if caseID == "" {
		writeError(w, http.StatusBadRequest, "case ID required")
		return
	}

	engine, err := c.getEngine(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "case storage not available")
		return
	}
	machine, _ := c.getMachine(r.Context())

	switch {
	case action == "status" && r.Method == http.MethodGet:
		status, err := engine.Status(r.Context(), caseID)
		if err != nil {
			c.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)

	case action == "transition" && r.Method == http.MethodPost:
		var req transitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		target, err := dispute.ParseStage(req.Target)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := machine.Transition(r.Context(), caseID, target, req.Actor, req.Note)
		if err != nil {
			c.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case action == "statements" && r.Method == http.MethodPost:
		var req statementRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Text == "" {
			writeError(w, http.StatusBadRequest, "text is required")
			return
		}
		updated, err := machine.SubmitStatement(r.Context(), caseID, req.PartyID, req.Text)
		if err != nil {
			c.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case action == "finalize" && r.Method == http.MethodPost:
		var req actorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		updated, err := machine.FinalizeStatements(r.Context(), caseID, req.Actor)
		if err != nil {
			c.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case action == "analyze" && r.Method == http.MethodPost:
		var req actorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		round, err := engine.StartAnalysis(r.Context(), caseID, req.Actor)
		if err != nil {
			c.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, round)

	case action == "escalate" && r.Method == http.MethodPost:
		var req actorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := engine.Escalate(r.Context(), caseID, req.Actor, req.Reason); err != nil {
			c.writeDomainError(w, err)
			return
		}
		status, err := engine.Status(r.Context(), caseID)
		if err != nil {
			c.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)

	default:
		writeError(w, http.StatusNotFound, "unknown endpoint")
	}
}

// handleRoundAction dispatches /rounds/{id}/{action}.
func (c *Component) handleRoundAction(w http.ResponseWriter, r *http.Request) {
	roundID, action := splitResourcePath(r.URL.Path, "/rounds/")
	if roundID == "" {
		writeError(w, http.StatusBadRequest, "round ID required")
		return
	}
	if action != "select" || r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "unknown endpoint")
		return
	}

	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PartyID == "" || req.OptionID == "" {
		writeError(w, http.StatusBadRequest, "party_id and option_id are required")
		return
	}

	engine, err := c.getEngine(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "round storage not available")
		return
	}

	outcome, err := engine.RecordSelection(r.Context(), roundID, req.PartyID, req.OptionID, req.Reasoning)
	if err != nil {
		c.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// writeDomainError maps domain errors onto HTTP status codes.
func (c *Component) writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dispute.ErrCaseNotFound),
		errors.Is(err, negotiation.ErrRoundNotFound),
		errors.Is(err, dispute.ErrUnknownParty),
		errors.Is(err, negotiation.ErrUnknownOption):
		status = http.StatusNotFound
	case errors.Is(err, dispute.ErrInvalidTransition),
		errors.Is(err, dispute.ErrCaseClosed),
		errors.Is(err, dispute.ErrStatementsClosed),
		errors.Is(err, negotiation.ErrRoundAlreadyOpen),
		errors.Is(err, dispute.ErrRevisionConflict),
		errors.Is(err, negotiation.ErrRevisionConflict):
		status = http.StatusConflict
	case errors.Is(err, negotiation.ErrRoundClosed):
		status = http.StatusLocked
	}

	if status == http.StatusInternalServerError {
		c.logger.Error("Request failed", "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// writeJSON writes a JSON response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// splitResourcePath extracts the resource ID and action from a path like
// /case-api/cases/{id}/{action}.
func splitResourcePath(path, marker string) (id, action string) {
	idx := strings.Index(path, marker)
	if idx == -1 {
		return "", ""
	}
	remainder := strings.TrimSuffix(path[idx+len(marker):], "/")
	parts := strings.SplitN(remainder, "/", 2)
	id = parts[0]
	if len(parts) > 1 {
		action = parts[1]
	}
	return id, action
}
