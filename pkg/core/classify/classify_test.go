package classify

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"dealgraph/pkg/core/models"
	"dealgraph/pkg/core/store"
)

func TestClassifyDecisionTree(t *testing.T) {
	cases := []struct {
		name           string
		instrumentType string
		evidence       string
		sponsorBacked  bool
		wantTag        string
		wantFamily     string
	}{
		{
			name:           "bridge evidence wins over everything",
			instrumentType: "bond",
			evidence:       "a bridge facility pending issuance of senior notes",
			wantTag:        models.TagBridge,
			wantFamily:     FamilyBridge,
		},
		{
			name:           "bridge instrument type",
			instrumentType: "bridge_loan",
			evidence:       "interim commitment",
			wantTag:        models.TagBridge,
			wantFamily:     FamilyBridge,
		},
		{
			name:           "term loan b evidence",
			instrumentType: "term_loan",
			evidence:       "a $2.0 billion Term Loan B facility",
			wantTag:        models.TagTermLoanB,
			wantFamily:     FamilyLoan,
		},
		{
			name:           "revolver",
			instrumentType: "credit_facility",
			evidence:       "a five-year revolving credit facility",
			wantTag:        models.TagOtherLoan,
			wantFamily:     FamilyLoan,
		},
		{
			name:           "high yield bond",
			instrumentType: "bond",
			evidence:       "high yield senior notes rated BB-",
			wantTag:        models.TagHYBond,
			wantFamily:     FamilyBond,
		},
		{
			name:           "investment grade bond",
			instrumentType: "bond",
			evidence:       "senior notes rated BBB+ by S&P",
			wantTag:        models.TagIGBond,
			wantFamily:     FamilyBond,
		},
		{
			name:           "rating conflict resolves to IG",
			instrumentType: "bond",
			evidence:       "upgraded from BB+ to investment grade",
			wantTag:        models.TagIGBond,
			wantFamily:     FamilyBond,
		},
		{
			name:           "unrated bond of sponsor deal defaults HY",
			instrumentType: "bond",
			evidence:       "senior notes due 2031",
			sponsorBacked:  true,
			wantTag:        models.TagHYBond,
			wantFamily:     FamilyBond,
		},
		{
			name:           "unrated bond of strategic deal defaults IG",
			instrumentType: "bond",
			evidence:       "senior notes due 2031",
			wantTag:        models.TagIGBond,
			wantFamily:     FamilyBond,
		},
		{
			name:           "leveraged loan becomes TLB",
			instrumentType: "term_loan",
			evidence:       "a leveraged loan financing",
			wantTag:        models.TagTermLoanB,
			wantFamily:     FamilyLoan,
		},
		{
			name:           "plain term loan",
			instrumentType: "term_loan",
			evidence:       "a three-year term loan",
			wantTag:        models.TagOtherLoan,
			wantFamily:     FamilyLoan,
		},
		{
			name:           "unknown instrument",
			instrumentType: "",
			evidence:       "a financing arrangement",
			wantTag:        models.TagUnknown,
			wantFamily:     FamilyUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.instrumentType, tc.evidence, tc.sponsorBacked)
			if got.MarketTag != tc.wantTag {
				t.Errorf("tag = %q, want %q", got.MarketTag, tc.wantTag)
			}
			if got.InstrumentFamily != tc.wantFamily {
				t.Errorf("family = %q, want %q", got.InstrumentFamily, tc.wantFamily)
			}
		})
	}
}

func TestArticleDoesNotTriggerRating(t *testing.T) {
	got := Classify("bond", "a senior note issued under an indenture", false)
	if got.MarketTag != models.TagIGBond {
		t.Errorf("bare article misread as rating: tag %q", got.MarketTag)
	}
}

func TestRunTagsEventsAndDeal(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	deal := &models.Deal{State: models.DealOpen, DealKey: "cik:1:cik:2"}
	if err := s.SaveDeal(ctx, deal); err != nil {
		t.Fatalf("SaveDeal: %v", err)
	}

	igFact := models.NewFact(models.FactFinancingMention, models.FinancingPayload{InstrumentType: "bond"})
	igFact.EvidenceSnippet = "investment grade senior notes"
	tlbFact := models.NewFact(models.FactFinancingMention, models.FinancingPayload{InstrumentType: "term_loan"})
	tlbFact.EvidenceSnippet = "a Term Loan B facility"
	if err := s.SaveFacts(ctx, []*models.AtomicFact{igFact, tlbFact}); err != nil {
		t.Fatalf("SaveFacts: %v", err)
	}

	for _, ev := range []*models.FinancingEvent{
		{DealID: deal.ID, InstrumentType: "bond", SourceFactIDs: []uuid.UUID{igFact.ID}},
		{DealID: deal.ID, InstrumentType: "term_loan", SourceFactIDs: []uuid.UUID{tlbFact.ID}},
	} {
		if err := s.SaveEvent(ctx, ev); err != nil {
			t.Fatalf("SaveEvent: %v", err)
		}
	}

	stats, err := New(s).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.EventsClassified != 2 {
		t.Errorf("got %d events classified, want 2", stats.EventsClassified)
	}

	got, _ := s.DealByID(ctx, deal.ID)
	if got.MarketTag != models.TagTermLoanB {
		t.Errorf("deal tag = %q, want Term_Loan_B (priority over IG_Bond)", got.MarketTag)
	}
	if got.IsSponsorBacked == nil || !*got.IsSponsorBacked {
		t.Error("TLB signal must set the sponsor flag when unset")
	}

	events, _ := s.EventsByDeal(ctx, deal.ID)
	tags := map[string]bool{}
	for _, ev := range events {
		tags[ev.MarketTag] = true
	}
	if !tags[models.TagIGBond] || !tags[models.TagTermLoanB] {
		t.Errorf("event tags wrong: %v", tags)
	}
}
