package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"dealgraph/pkg/core/models"
)

func newFiling(accession, cik, formType, date string) *models.Filing {
	d, _ := time.Parse("2006-01-02", date)
	return &models.Filing{
		AccessionNumber: accession,
		CIK:             cik,
		FormType:        formType,
		FilingDate:      d,
	}
}

func TestFilingRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	filing := newFiling("0000320193-24-000001", "0000320193", "8-K", "2024-06-12")
	if err := s.SaveFiling(ctx, filing); err != nil {
		t.Fatalf("SaveFiling: %v", err)
	}
	if filing.ID == uuid.Nil {
		t.Fatal("expected id to be assigned on save")
	}

	got, err := s.FilingByAccession(ctx, "0000320193-24-000001")
	if err != nil {
		t.Fatalf("FilingByAccession: %v", err)
	}
	if got.ID != filing.ID {
		t.Errorf("got id %s, want %s", got.ID, filing.ID)
	}

	if _, err := s.FilingByAccession(ctx, "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := s.MarkFilingProcessed(ctx, filing.ID); err != nil {
		t.Fatalf("MarkFilingProcessed: %v", err)
	}
	got, _ = s.FilingByID(ctx, filing.ID)
	if !got.Processed || got.ProcessedAt == nil {
		t.Error("filing not marked processed")
	}
}

func TestListFilingsFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for _, f := range []*models.Filing{
		newFiling("acc-1", "111", "8-K", "2024-01-15"),
		newFiling("acc-2", "111", "S-4", "2024-03-01"),
		newFiling("acc-3", "222", "8-K", "2024-02-10"),
	} {
		if err := s.SaveFiling(ctx, f); err != nil {
			t.Fatalf("SaveFiling: %v", err)
		}
	}

	got, err := s.ListFilings(ctx, FilingFilter{CIK: "111"})
	if err != nil {
		t.Fatalf("ListFilings: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d filings, want 2", len(got))
	}
	if got[0].AccessionNumber != "acc-2" {
		t.Errorf("expected newest filing first, got %s", got[0].AccessionNumber)
	}

	got, _ = s.ListFilings(ctx, FilingFilter{FormType: "8-K"})
	if len(got) != 2 {
		t.Errorf("got %d 8-K filings, want 2", len(got))
	}
}

func TestAssignFactDealWriteOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	fact := models.NewFact(models.FactPartyMention, nil)
	if err := s.SaveFacts(ctx, []*models.AtomicFact{fact}); err != nil {
		t.Fatalf("SaveFacts: %v", err)
	}

	dealA := uuid.New()
	dealB := uuid.New()

	if err := s.AssignFactDeal(ctx, fact.ID, dealA, false); err != nil {
		t.Fatalf("first assignment: %v", err)
	}
	// Idempotent re-assignment to the same deal is fine.
	if err := s.AssignFactDeal(ctx, fact.ID, dealA, false); err != nil {
		t.Fatalf("same-deal reassignment: %v", err)
	}
	if err := s.AssignFactDeal(ctx, fact.ID, dealB, false); err != ErrDealAssigned {
		t.Fatalf("expected ErrDealAssigned, got %v", err)
	}
	// The merge path overrides with force.
	if err := s.AssignFactDeal(ctx, fact.ID, dealB, true); err != nil {
		t.Fatalf("forced reassignment: %v", err)
	}

	got, _ := s.FactByID(ctx, fact.ID)
	if got.DealID == nil || *got.DealID != dealB {
		t.Error("forced reassignment did not stick")
	}

	if err := s.AssignFactDeal(ctx, uuid.New(), dealA, false); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for unknown fact, got %v", err)
	}
}

func TestUnassignedFactsByType(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	party := models.NewFact(models.FactPartyMention, nil)
	sponsor := models.NewFact(models.FactSponsorMention, nil)
	assigned := models.NewFact(models.FactPartyMention, nil)
	dealID := uuid.New()
	assigned.DealID = &dealID

	if err := s.SaveFacts(ctx, []*models.AtomicFact{party, sponsor, assigned}); err != nil {
		t.Fatalf("SaveFacts: %v", err)
	}

	got, err := s.UnassignedFacts(ctx, models.FactPartyMention)
	if err != nil {
		t.Fatalf("UnassignedFacts: %v", err)
	}
	if len(got) != 1 || got[0].ID != party.ID {
		t.Fatalf("got %d facts, want only the unassigned party fact", len(got))
	}

	got, _ = s.UnassignedFacts(ctx)
	if len(got) != 2 {
		t.Errorf("got %d untyped unassigned facts, want 2", len(got))
	}
}

func TestListDealsFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	sponsorBacked := true
	early := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)

	deals := []*models.Deal{
		{
			State:                "CANDIDATE",
			TargetNameDisplay:    "Target Technologies",
			TargetNameNormalized: "target technologies",
			DealKey:              "cik:1:name:target technologies",
			AnnouncementDate:     &early,
		},
		{
			State:                  "OPEN",
			TargetNameDisplay:      "Widget Corp",
			TargetNameNormalized:   "widget",
			AcquirerNameDisplay:    "Mega Holdings",
			AcquirerNameNormalized: "mega holdings",
			DealKey:                "cik:2:cik:3",
			AnnouncementDate:       &late,
			IsSponsorBacked:        &sponsorBacked,
			MarketTag:              "Term_Loan_B",
		},
		{
			State:   "LOCKED",
			DealKey: "cik:4:cik:5",
		},
	}
	for _, d := range deals {
		if err := s.SaveDeal(ctx, d); err != nil {
			t.Fatalf("SaveDeal: %v", err)
		}
	}

	got, err := s.ListDeals(ctx, DealFilter{})
	if err != nil {
		t.Fatalf("ListDeals: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d deals, want 3", len(got))
	}
	if got[0].DealKey != "cik:2:cik:3" {
		t.Errorf("expected most recent announcement first, got %s", got[0].DealKey)
	}
	if got[2].DealKey != "cik:4:cik:5" {
		t.Errorf("expected undated deal last, got %s", got[2].DealKey)
	}

	got, _ = s.ListDeals(ctx, DealFilter{Query: "widget"})
	if len(got) != 1 || got[0].TargetNameDisplay != "Widget Corp" {
		t.Errorf("query filter failed: %d deals", len(got))
	}

	got, _ = s.ListDeals(ctx, DealFilter{States: []models.DealState{models.DealCandidate, models.DealOpen}})
	if len(got) != 2 {
		t.Errorf("state filter: got %d deals, want 2", len(got))
	}

	got, _ = s.ListDeals(ctx, DealFilter{IsSponsorBacked: &sponsorBacked})
	if len(got) != 1 || got[0].MarketTag != "Term_Loan_B" {
		t.Errorf("sponsor filter: got %d deals", len(got))
	}

	got, _ = s.ListDeals(ctx, DealFilter{Limit: 1, Offset: 1})
	if len(got) != 1 || got[0].DealKey != "cik:1:name:target technologies" {
		t.Errorf("pagination: unexpected page contents")
	}
}

func TestDealByKey(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	deal := &models.Deal{State: models.DealCandidate, DealKey: "cik:9:cik:10"}
	if err := s.SaveDeal(ctx, deal); err != nil {
		t.Fatalf("SaveDeal: %v", err)
	}

	got, err := s.DealByKey(ctx, "cik:9:cik:10")
	if err != nil {
		t.Fatalf("DealByKey: %v", err)
	}
	if got.ID != deal.ID {
		t.Errorf("got deal %s, want %s", got.ID, deal.ID)
	}
	if _, err := s.DealByKey(ctx, "cik:0:cik:0"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReassignEvents(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	from := uuid.New()
	to := uuid.New()
	other := uuid.New()

	for _, dealID := range []uuid.UUID{from, from, other} {
		if err := s.SaveEvent(ctx, &models.FinancingEvent{DealID: dealID}); err != nil {
			t.Fatalf("SaveEvent: %v", err)
		}
	}

	if err := s.ReassignEvents(ctx, from, to); err != nil {
		t.Fatalf("ReassignEvents: %v", err)
	}

	moved, _ := s.EventsByDeal(ctx, to)
	if len(moved) != 2 {
		t.Errorf("got %d events on target deal, want 2", len(moved))
	}
	kept, _ := s.EventsByDeal(ctx, other)
	if len(kept) != 1 {
		t.Errorf("unrelated deal lost events")
	}
}

func TestListAlertsFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	filingID := uuid.New()
	resolved := models.NewAlert(models.AlertLowConfidenceMatch, "t1", "d1")
	resolved.IsResolved = true
	open := models.NewAlert(models.AlertUnparsedMaterialExhibit, "t2", "d2")
	open.FilingID = &filingID

	for _, a := range []*models.Alert{resolved, open} {
		if err := s.SaveAlert(ctx, a); err != nil {
			t.Fatalf("SaveAlert: %v", err)
		}
	}

	unresolvedOnly := false
	got, err := s.ListAlerts(ctx, AlertFilter{Resolved: &unresolvedOnly})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(got) != 1 || got[0].ID != open.ID {
		t.Errorf("resolved filter failed: %d alerts", len(got))
	}

	got, _ = s.ListAlerts(ctx, AlertFilter{FilingID: &filingID})
	if len(got) != 1 || got[0].AlertType != models.AlertUnparsedMaterialExhibit {
		t.Errorf("filing filter failed: %d alerts", len(got))
	}

	got, _ = s.ListAlerts(ctx, AlertFilter{AlertType: models.AlertLowConfidenceMatch})
	if len(got) != 1 || got[0].ID != resolved.ID {
		t.Errorf("type filter failed: %d alerts", len(got))
	}
}

func TestBankLookupByAlias(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	bank := &models.Bank{
		Name:           "JPMorgan Chase & Co.",
		NameNormalized: "jpmorgan chase & co",
		Aliases: []*models.BankAlias{
			{Alias: "J.P. Morgan", AliasNormalized: "jp morgan"},
		},
	}
	if err := s.SaveBank(ctx, bank); err != nil {
		t.Fatalf("SaveBank: %v", err)
	}

	got, err := s.BankByNormalizedName(ctx, "jpmorgan chase & co")
	if err != nil {
		t.Fatalf("lookup by name: %v", err)
	}
	if got.ID != bank.ID {
		t.Errorf("wrong bank by name")
	}

	got, err = s.BankByNormalizedName(ctx, "jp morgan")
	if err != nil {
		t.Fatalf("lookup by alias: %v", err)
	}
	if got.ID != bank.ID {
		t.Errorf("wrong bank by alias")
	}

	if _, err := s.BankByNormalizedName(ctx, "unknown bank"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
