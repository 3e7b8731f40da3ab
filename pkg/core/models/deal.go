package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DealState is the deal lifecycle state machine.
type DealState string

const (
	DealCandidate   DealState = "CANDIDATE"
	DealOpen        DealState = "OPEN"
	DealClosed      DealState = "CLOSED"
	DealLocked      DealState = "LOCKED"
	DealNeedsReview DealState = "NEEDS_REVIEW"
)

// Market tags classify the financing mix of an event or deal.
const (
	TagIGBond    = "IG_Bond"
	TagHYBond    = "HY_Bond"
	TagTermLoanB = "Term_Loan_B"
	TagOtherLoan = "Other_Loan"
	TagBridge    = "Bridge"
	TagUnknown   = "Unknown"
)

// SponsorEvidence records where a deal's sponsor attribution came from.
type SponsorEvidence struct {
	FactID  uuid.UUID `json:"fact_id"`
	Snippet string    `json:"snippet"`
	Pattern string    `json:"pattern"`
}

// Deal is one M&A transaction assembled by the clusterer.
//
// The sponsor identity is deliberately separate from the acquirer identity:
// the sponsor is not a signatory of the merger agreement.
type Deal struct {
	ID    uuid.UUID
	State DealState

	AcquirerCIK            string
	AcquirerNameRaw        string
	AcquirerNameDisplay    string
	AcquirerNameNormalized string

	TargetCIK            string
	TargetNameRaw        string
	TargetNameDisplay    string
	TargetNameNormalized string

	// Stable clustering key, unique across non-LOCKED deals.
	DealKey string

	AnnouncementDate  *time.Time
	AgreementDate     *time.Time
	ExpectedCloseDate *time.Time
	ActualCloseDate   *time.Time

	DealValueUSD      float64
	DealValueEvidence string

	IsSponsorBacked         *bool
	SponsorNameRaw          string
	SponsorNameNormalized   string
	SponsorConfidence       float64
	SponsorEvidence         *SponsorEvidence
	SponsorEntityID         *uuid.UUID
	UnresolvedSponsorEntity bool

	MarketTag     string // IG_Bond, HY_Bond, Term_Loan_B, Other_Loan, Bridge, Unknown
	IsCrossBorder bool

	AdvisoryFeeEstimated     float64
	UnderwritingFeeEstimated float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BuildDealKey computes the stable tiered clustering key.
//
// Priority:
//  1. cik:<acquirer_cik>:cik:<target_cik>
//  2. cik:<acquirer_cik>:name:<target_name_normalized>
//  3. name:<acquirer_name_normalized>:name:<target_name_normalized>
//
// The name-only tier returns needsReview=true; callers must place the deal
// in NEEDS_REVIEW. Returns "" when no key can be built.
func BuildDealKey(acquirerCIK, acquirerName, targetCIK, targetName string) (key string, needsReview bool) {
	switch {
	case acquirerCIK != "" && targetCIK != "":
		return fmt.Sprintf("cik:%s:cik:%s", acquirerCIK, targetCIK), false
	case acquirerCIK != "" && targetName != "":
		return fmt.Sprintf("cik:%s:name:%s", acquirerCIK, targetName), false
	case acquirerName != "" && targetName != "":
		return fmt.Sprintf("name:%s:name:%s", acquirerName, targetName), true
	}
	return "", false
}
