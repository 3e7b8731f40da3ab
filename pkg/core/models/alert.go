package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AlertType tags human-review tasks emitted by the pipeline.
type AlertType string

const (
	AlertUnparsedMaterialExhibit       AlertType = "UNPARSED_MATERIAL_EXHIBIT"
	AlertFailedPrivateTargetExtraction AlertType = "FAILED_PRIVATE_TARGET_EXTRACTION"
	AlertFailedSponsorExtraction       AlertType = "FAILED_SPONSOR_EXTRACTION"
	AlertLowConfidenceMatch            AlertType = "LOW_CONFIDENCE_MATCH"
	AlertDealMergeCandidate            AlertType = "DEAL_MERGE_CANDIDATE"
	AlertUnresolvedBank                AlertType = "UNRESOLVED_BANK"
)

// Alert is a queued human-review task. Every extraction failure and
// low-confidence match surfaces as one of these instead of a silent guess.
type Alert struct {
	ID        uuid.UUID
	AlertType AlertType

	FilingID  *uuid.UUID
	ExhibitID *uuid.UUID
	DealID    *uuid.UUID

	Title       string
	Description string

	// For UNPARSED_MATERIAL_EXHIBIT: what a human should supply.
	ExhibitLink  string
	FieldsNeeded []string

	// For FAILED_PRIVATE_TARGET_EXTRACTION: dedup key for repeated failures.
	PreambleHash    string
	PreamblePreview string

	IsResolved      bool
	ResolvedAt      *time.Time
	ResolvedBy      string
	ResolutionNotes string

	CreatedAt time.Time
}

// NewAlert builds an alert with a fresh id.
func NewAlert(at AlertType, title, description string) *Alert {
	return &Alert{
		ID:          uuid.New(),
		AlertType:   at,
		Title:       title,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
}

// ManualInput is a structured human-provided payload linked to an alert.
// Persisting one also materializes a MANUAL atomic fact so downstream
// stages treat it like machine-extracted data.
type ManualInput struct {
	ID      uuid.UUID
	AlertID *uuid.UUID

	DealID           *uuid.UUID
	FinancingEventID *uuid.UUID

	InputType string
	Data      json.RawMessage

	EnteredBy string
	EnteredAt time.Time
	Notes     string

	CreatedAt time.Time
}
