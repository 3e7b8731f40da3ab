package models

import (
	"time"

	"github.com/google/uuid"
)

// Canonical participant roles used by the reconciler and the role-split
// table in the attribution config.
const (
	RoleBookrunner        = "bookrunner"
	RoleJointBookrunner   = "joint_bookrunner"
	RoleCoManager         = "co_manager"
	RoleLeadUnderwriter   = "lead_underwriter"
	RoleUnderwriter       = "underwriter"
	RoleLeadArranger      = "lead_arranger"
	RoleJointLeadArranger = "joint_lead_arranger"
	RoleArranger          = "arranger"
	RoleAdminAgent        = "admin_agent"
	RoleSyndicationAgent  = "syndication_agent"
	RoleAgent             = "agent"
	RoleOther             = "other"
)

// CanonicalRoles is the closed role vocabulary.
var CanonicalRoles = map[string]bool{
	RoleBookrunner:        true,
	RoleJointBookrunner:   true,
	RoleCoManager:         true,
	RoleLeadUnderwriter:   true,
	RoleUnderwriter:       true,
	RoleLeadArranger:      true,
	RoleJointLeadArranger: true,
	RoleArranger:          true,
	RoleAdminAgent:        true,
	RoleSyndicationAgent:  true,
	RoleAgent:             true,
	RoleOther:             true,
}

// FinancingEvent is one financing instrument linked to a deal, materialized
// by the reconciler. Events are idempotent on SourceFactIDs.
type FinancingEvent struct {
	ID     uuid.UUID
	DealID uuid.UUID

	InstrumentFamily string // bond, loan, bridge, unknown
	InstrumentType   string // term_loan_b, rcf, hy_bond, ig_bond, bridge, ...
	MarketTag        string

	AmountUSD float64
	AmountRaw string
	Currency  string

	MaturityDate *time.Time
	Maturity     string
	InterestRate string
	Purpose      string

	ReconciliationConfidence  float64
	ReconciliationExplanation string

	SourceExhibitID *uuid.UUID
	SourceFactIDs   []uuid.UUID

	EstimatedFeeUSD float64

	Participants []*FinancingParticipant

	CreatedAt time.Time
}

// TableCellCoords locates a participant's evidence inside a parsed table.
type TableCellCoords struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// FinancingParticipant is one bank playing a role in a FinancingEvent.
type FinancingParticipant struct {
	ID               uuid.UUID
	FinancingEventID uuid.UUID
	BankID           *uuid.UUID

	BankNameRaw        string
	BankNameNormalized string

	Role           string
	RoleNormalized string

	EvidenceSnippet string
	EvidenceSource  string // "table", "text", "manual"
	TableCellCoords *TableCellCoords

	RoleWeight      float64
	EstimatedFeeUSD float64

	CreatedAt time.Time
}
