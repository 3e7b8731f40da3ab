// Package store persists the deal graph: filings, exhibits, atomic
// facts, deals, financing events, alerts and bank reference data.
//
// Two implementations exist: a Postgres store backed by pgxpool for
// production, and an in-memory store for tests and offline pipeline
// runs.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"dealgraph/pkg/core/models"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("store: not found")

// ErrDealAssigned guards the write-once rule: a fact's deal id is
// assigned exactly once and never reassigned except by an explicit merge.
var ErrDealAssigned = errors.New("store: fact already assigned to a deal")

// DealFilter narrows ListDeals. Zero values mean "no constraint".
type DealFilter struct {
	Query           string // substring match on target/acquirer names
	States          []models.DealState
	MarketTag       string
	IsSponsorBacked *bool
	Limit           int
	Offset          int
}

// AlertFilter narrows ListAlerts.
type AlertFilter struct {
	AlertType models.AlertType
	Resolved  *bool
	FilingID  *uuid.UUID
	DealID    *uuid.UUID
	Limit     int
	Offset    int
}

// FilingFilter narrows ListFilings.
type FilingFilter struct {
	CIK       string
	FormType  string
	Processed *bool
	Limit     int
	Offset    int
}

// Store is the full persistence surface of the pipeline.
type Store interface {
	// Filings and exhibits.
	SaveFiling(ctx context.Context, filing *models.Filing) error
	FilingByID(ctx context.Context, id uuid.UUID) (*models.Filing, error)
	FilingByAccession(ctx context.Context, accessionNumber string) (*models.Filing, error)
	ListFilings(ctx context.Context, filter FilingFilter) ([]*models.Filing, error)
	MarkFilingProcessed(ctx context.Context, id uuid.UUID) error

	// Atomic facts.
	SaveFacts(ctx context.Context, facts []*models.AtomicFact) error
	FactByID(ctx context.Context, id uuid.UUID) (*models.AtomicFact, error)
	FactsByFiling(ctx context.Context, filingID uuid.UUID) ([]*models.AtomicFact, error)
	FactsByDeal(ctx context.Context, dealID uuid.UUID) ([]*models.AtomicFact, error)
	UnassignedFacts(ctx context.Context, types ...models.FactType) ([]*models.AtomicFact, error)
	// AssignFactDeal is write-once; assigning an already-assigned fact
	// returns ErrDealAssigned unless force is set (merge path only).
	AssignFactDeal(ctx context.Context, factID, dealID uuid.UUID, force bool) error

	// Deals.
	SaveDeal(ctx context.Context, deal *models.Deal) error
	DealByID(ctx context.Context, id uuid.UUID) (*models.Deal, error)
	DealByKey(ctx context.Context, dealKey string) (*models.Deal, error)
	ListDeals(ctx context.Context, filter DealFilter) ([]*models.Deal, error)
	DeleteDeal(ctx context.Context, id uuid.UUID) error

	// Financing events.
	SaveEvent(ctx context.Context, event *models.FinancingEvent) error
	EventByID(ctx context.Context, id uuid.UUID) (*models.FinancingEvent, error)
	EventsByDeal(ctx context.Context, dealID uuid.UUID) ([]*models.FinancingEvent, error)
	ListEvents(ctx context.Context) ([]*models.FinancingEvent, error)
	ReassignEvents(ctx context.Context, fromDeal, toDeal uuid.UUID) error

	// Alerts and manual inputs.
	SaveAlert(ctx context.Context, alert *models.Alert) error
	AlertByID(ctx context.Context, id uuid.UUID) (*models.Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]*models.Alert, error)
	SaveManualInput(ctx context.Context, input *models.ManualInput) error

	// Bank reference data.
	SaveBank(ctx context.Context, bank *models.Bank) error
	ListBanks(ctx context.Context) ([]*models.Bank, error)
	BankByNormalizedName(ctx context.Context, normalized string) (*models.Bank, error)
}
