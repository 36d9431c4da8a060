package dispute

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies a party's side in the dispute.
type Role string

const (
	RoleClaimant   Role = "claimant"
	RoleRespondent Role = "respondent"
)

// IsValid checks whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleClaimant || r == RoleRespondent
}

// Party is a participant in a case.
type Party struct {
	// ID uniquely identifies this party (format: p-{uuid}).
	ID string `json:"id"`

	// Role is the party's side: claimant or respondent.
	Role Role `json:"role"`

	// Name is the display name used in notifications and documents.
	Name string `json:"name"`

	// JoinedAt is when the party entered the case.
	JoinedAt time.Time `json:"joined_at"`
}

// Statement is a party's account of the dispute, collected before analysis.
type Statement struct {
	PartyID     string    `json:"party_id"`
	Text        string    `json:"text"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// HistoryEntry records one successful stage transition.
// Entries are append-only and strictly ordered by transition sequence.
type HistoryEntry struct {
	// Stage is the stage the case entered.
	Stage Stage `json:"stage"`

	// Timestamp is when the transition committed. Monotonic per case:
	// never earlier than the preceding entry.
	Timestamp time.Time `json:"timestamp"`

	// Actor identifies who drove the transition (party ID, "system", ...).
	Actor string `json:"actor"`

	// Note is free-text context recorded with the transition.
	Note string `json:"note,omitempty"`
}

// Case is the authoritative record of a dispute.
// It is mutated only through validated transitions in the Machine and is
// never deleted; a finished case sits in one of the terminal stages.
type Case struct {
	// ID uniquely identifies this case (format: c-{uuid}).
	ID string `json:"id"`

	// Title is a short human-readable summary of the dispute.
	Title string `json:"title"`

	// Stage is the current lifecycle stage.
	Stage Stage `json:"stage"`

	// Parties lists the case participants. Consensus requires exactly the
	// full roster to respond; the engine supports any roster of two or more.
	Parties []Party `json:"parties"`

	// Statements holds party statements collected before analysis.
	Statements []Statement `json:"statements,omitempty"`

	// History is the append-only stage transition log.
	History []HistoryEntry `json:"history"`

	// Round counts negotiation rounds opened for this case.
	Round int `json:"round"`

	// Metadata accumulates free-form key/value data from stage handlers,
	// e.g. "reanalysisCount".
	Metadata map[string]string `json:"metadata,omitempty"`

	// CreatedAt is when the case was filed.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the case record last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// MetaReanalysisCount is the metadata key tracking compromise rounds.
const MetaReanalysisCount = "reanalysisCount"

// NewCase creates a case in DRAFT with an initial history entry.
func NewCase(title string, parties []Party) *Case {
	now := time.Now().UTC()
	return &Case{
		ID:      fmt.Sprintf("c-%s", uuid.New().String()),
		Title:   title,
		Stage:   StageDraft,
		Parties: parties,
		History: []HistoryEntry{{
			Stage:     StageDraft,
			Timestamp: now,
			Actor:     "system",
			Note:      "case filed",
		}},
		Metadata:  map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewParty creates a party with a generated ID.
func NewParty(role Role, name string) Party {
	return Party{
		ID:       fmt.Sprintf("p-%s", uuid.New().String()[:8]),
		Role:     role,
		Name:     name,
		JoinedAt: time.Now().UTC(),
	}
}

// Party returns the party with the given ID, or nil if not on the roster.
func (c *Case) Party(partyID string) *Party {
	for i := range c.Parties {
		if c.Parties[i].ID == partyID {
			return &c.Parties[i]
		}
	}
	return nil
}

// PartyIDs returns the roster's party IDs in declaration order.
func (c *Case) PartyIDs() []string {
	ids := make([]string, len(c.Parties))
	for i, p := range c.Parties {
		ids[i] = p.ID
	}
	return ids
}

// Closed reports whether the case is in a terminal stage.
func (c *Case) Closed() bool {
	return c.Stage.IsTerminal()
}

// ReanalysisCount returns the number of compromise rounds recorded so far.
func (c *Case) ReanalysisCount() int {
	if c.Metadata == nil {
		return 0
	}
	n := 0
	_, _ = fmt.Sscanf(c.Metadata[MetaReanalysisCount], "%d", &n)
	return n
}

// SetReanalysisCount stores the compromise round counter in metadata.
func (c *Case) SetReanalysisCount(n int) {
	if c.Metadata == nil {
		c.Metadata = map[string]string{}
	}
	c.Metadata[MetaReanalysisCount] = fmt.Sprintf("%d", n)
}

// Validate checks structural invariants of the case record.
func (c *Case) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("case ID is required")
	}
	if !c.Stage.IsValid() {
		return fmt.Errorf("invalid stage: %q", c.Stage)
	}
	if len(c.Parties) < 2 {
		return fmt.Errorf("a case requires at least two parties, got %d", len(c.Parties))
	}
	roles := map[Role]bool{}
	for _, p := range c.Parties {
		if !p.Role.IsValid() {
			return fmt.Errorf("party %s has invalid role %q", p.ID, p.Role)
		}
		roles[p.Role] = true
	}
	if !roles[RoleClaimant] || !roles[RoleRespondent] {
		return fmt.Errorf("a case requires a claimant and a respondent")
	}
	return nil
}
