package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FactType discriminates the atomic fact tagged union.
type FactType string

const (
	FactPartyMention     FactType = "PARTY_MENTION"
	FactPartyDefinition  FactType = "PARTY_DEFINITION"
	FactSponsorMention   FactType = "SPONSOR_MENTION"
	FactDealDate         FactType = "DEAL_DATE"
	FactFinancingMention FactType = "FINANCING_MENTION"
	FactAdvisorMention   FactType = "ADVISOR_MENTION"
	FactDealValue        FactType = "DEAL_VALUE"
	FactManual           FactType = "MANUAL"
)

// AtomicFact is the sole output of extraction. Every fact carries verbatim
// evidence; DealID stays nil until the clusterer assigns it, and assignment
// is write-once.
type AtomicFact struct {
	ID       uuid.UUID
	FactType FactType

	FilingID  *uuid.UUID
	ExhibitID *uuid.UUID
	DealID    *uuid.UUID

	EvidenceSnippet     string
	EvidenceStartOffset *int
	EvidenceEndOffset   *int
	SourceSection       string // "preamble", "item_1.01", "item_8.01", ...

	ExtractionMethod  string // "regex", "table", "manual"
	ExtractionPattern string
	Confidence        float64

	// Variant-shaped payload, accessed through the typed accessors below.
	Payload json.RawMessage

	CreatedAt time.Time
}

// PartyPayload is the payload of PARTY_DEFINITION and PARTY_MENTION facts.
type PartyPayload struct {
	PartyNameRaw        string `json:"party_name_raw"`
	PartyNameNormalized string `json:"party_name_normalized"`
	PartyNameDisplay    string `json:"party_name_display"`
	RoleLabel           string `json:"role_label"` // "Company", "Parent", "Merger Sub", "Unknown"
	CIK                 string `json:"cik,omitempty"`
}

// SponsorPayload is the payload of SPONSOR_MENTION facts.
type SponsorPayload struct {
	SponsorNameRaw        string `json:"sponsor_name_raw"`
	SponsorNameNormalized string `json:"sponsor_name_normalized"`
	SourcePattern         string `json:"source_pattern"` // "seed_list", "affiliation_pattern"
	ContextSnippet        string `json:"context_snippet"`
	IsNegated             bool   `json:"is_negated"`
}

// DatePayload is the payload of DEAL_DATE facts. DateValue is ISO 8601.
type DatePayload struct {
	DateType  string `json:"date_type"` // "agreement_date", "announcement_date", "expected_close"
	DateValue string `json:"date_value"`
	DateRaw   string `json:"date_raw"`
}

// FinancingParticipantPayload is one bank inside a financing payload.
type FinancingParticipantPayload struct {
	Bank           string `json:"bank"`
	BankNormalized string `json:"bank_normalized"`
	Role           string `json:"role"`
	Evidence       string `json:"evidence,omitempty"`
}

// FinancingPayload is the payload of FINANCING_MENTION facts.
type FinancingPayload struct {
	InstrumentType    string                        `json:"instrument_type"` // bond, term_loan, rcf, bridge_loan, ...
	InstrumentSubtype string                        `json:"instrument_subtype,omitempty"`
	AmountUSD         float64                       `json:"amount_usd,omitempty"`
	AmountRaw         string                        `json:"amount_raw,omitempty"`
	Currency          string                        `json:"currency"`
	Participants      []FinancingParticipantPayload `json:"participants"`
	Purpose           string                        `json:"purpose,omitempty"`
	Maturity          string                        `json:"maturity,omitempty"`
	InterestRate      string                        `json:"interest_rate,omitempty"`
}

// AdvisorPayload is the payload of ADVISOR_MENTION facts.
type AdvisorPayload struct {
	BankNameRaw        string `json:"bank_name_raw"`
	BankNameNormalized string `json:"bank_name_normalized"`
	Role               string `json:"role"`        // "underwriter", "lead_advisor", "fairness_opinion"
	ClientSide         string `json:"client_side"` // "target", "acquirer", "issuer"
}

// DealValuePayload is the payload of DEAL_VALUE facts.
type DealValuePayload struct {
	ValueUSD float64 `json:"value_usd"`
	ValueRaw string  `json:"value_raw"`
}

// ManualPayload is the payload of MANUAL facts created from human input.
type ManualPayload struct {
	InputType string          `json:"input_type"`
	Data      json.RawMessage `json:"data"`
	EnteredBy string          `json:"entered_by"`
	Notes     string          `json:"notes,omitempty"`
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("models: marshal fact payload: %v", err))
	}
	return b
}

// NewFact builds a fact with a fresh id and the given variant payload.
func NewFact(ft FactType, payload any) *AtomicFact {
	return &AtomicFact{
		ID:        uuid.New(),
		FactType:  ft,
		Payload:   mustMarshal(payload),
		CreatedAt: time.Now().UTC(),
	}
}

// Party decodes the payload of a party fact.
func (f *AtomicFact) Party() (*PartyPayload, error) {
	if f.FactType != FactPartyDefinition && f.FactType != FactPartyMention {
		return nil, fmt.Errorf("fact %s is not a party fact", f.FactType)
	}
	var p PartyPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode party payload: %w", err)
	}
	return &p, nil
}

// Sponsor decodes the payload of a SPONSOR_MENTION fact.
func (f *AtomicFact) Sponsor() (*SponsorPayload, error) {
	if f.FactType != FactSponsorMention {
		return nil, fmt.Errorf("fact %s is not a sponsor fact", f.FactType)
	}
	var p SponsorPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode sponsor payload: %w", err)
	}
	return &p, nil
}

// Date decodes the payload of a DEAL_DATE fact.
func (f *AtomicFact) Date() (*DatePayload, error) {
	if f.FactType != FactDealDate {
		return nil, fmt.Errorf("fact %s is not a date fact", f.FactType)
	}
	var p DatePayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode date payload: %w", err)
	}
	return &p, nil
}

// Financing decodes the payload of a FINANCING_MENTION fact.
func (f *AtomicFact) Financing() (*FinancingPayload, error) {
	if f.FactType != FactFinancingMention {
		return nil, fmt.Errorf("fact %s is not a financing fact", f.FactType)
	}
	var p FinancingPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode financing payload: %w", err)
	}
	return &p, nil
}

// Advisor decodes the payload of an ADVISOR_MENTION fact.
func (f *AtomicFact) Advisor() (*AdvisorPayload, error) {
	if f.FactType != FactAdvisorMention {
		return nil, fmt.Errorf("fact %s is not an advisor fact", f.FactType)
	}
	var p AdvisorPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode advisor payload: %w", err)
	}
	return &p, nil
}

// EvidenceFingerprint identifies a fact for idempotent re-extraction:
// same exhibit, same pattern, same first 100 evidence characters.
func (f *AtomicFact) EvidenceFingerprint() string {
	snippet := f.EvidenceSnippet
	if len(snippet) > 100 {
		snippet = snippet[:100]
	}
	var exhibit string
	if f.ExhibitID != nil {
		exhibit = f.ExhibitID.String()
	} else if f.FilingID != nil {
		exhibit = f.FilingID.String()
	}
	return exhibit + "|" + f.ExtractionPattern + "|" + snippet
}
