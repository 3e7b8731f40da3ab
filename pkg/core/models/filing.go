// Package models defines the persistent entities of the deal graph:
// filings and exhibits, atomic facts, deals, financing events, banks,
// alerts and manual inputs.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Filing is a fetched SEC EDGAR filing identified by accession number.
type Filing struct {
	ID              uuid.UUID
	AccessionNumber string
	CIK             string
	FormType        string
	FilingDate      time.Time
	CompanyName     string
	FilingURL       string

	Processed   bool
	ProcessedAt *time.Time

	// Cached content
	RawHTML    string
	VisualText string

	Exhibits []*Exhibit

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Exhibit is a child artifact of a Filing (EX-2.1, EX-10.1, EX-99.1, ...).
type Exhibit struct {
	ID       uuid.UUID
	FilingID uuid.UUID

	ExhibitType string // "EX-2.1", "EX-10.1", ...
	Description string
	Filename    string
	URL         string

	IsPDF      bool
	IsMaterial bool

	Processed         bool
	ExtractionQuality string // "good", "poor", "failed"

	RawContent string
	VisualText string

	CreatedAt time.Time
}
