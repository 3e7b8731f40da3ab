package reconcile

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"dealgraph/pkg/core/models"
	"dealgraph/pkg/core/store"
)

func financingFact(evidence string, payload models.FinancingPayload) *models.AtomicFact {
	fact := models.NewFact(models.FactFinancingMention, payload)
	fact.EvidenceSnippet = evidence
	fact.Confidence = 0.9
	return fact
}

func TestLinkedFactBecomesEvent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	deal := &models.Deal{State: models.DealOpen, DealKey: "cik:1:cik:2"}
	if err := s.SaveDeal(ctx, deal); err != nil {
		t.Fatalf("SaveDeal: %v", err)
	}

	exhibitID := uuid.New()
	fact := financingFact("$1.5 billion of Senior Notes due 2029", models.FinancingPayload{
		InstrumentType: "bond",
		AmountUSD:      1.5e9,
		AmountRaw:      "$1.5 billion",
		Maturity:       "2029",
		Participants: []models.FinancingParticipantPayload{
			{Bank: "Goldman Sachs & Co. LLC", Role: "joint bookrunner"},
			{Bank: "JPMorgan Chase Bank, N.A.", Role: "underwriter"},
		},
	})
	fact.DealID = &deal.ID
	fact.ExhibitID = &exhibitID
	if err := s.SaveFacts(ctx, []*models.AtomicFact{fact}); err != nil {
		t.Fatalf("SaveFacts: %v", err)
	}

	stats, err := New(s).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.EventsCreated != 1 {
		t.Fatalf("got %d events, want 1", stats.EventsCreated)
	}

	events, _ := s.EventsByDeal(ctx, deal.ID)
	if len(events) != 1 {
		t.Fatalf("got %d events on deal, want 1", len(events))
	}
	event := events[0]
	if event.ReconciliationConfidence != 1.0 {
		t.Errorf("got confidence %v, want 1.0", event.ReconciliationConfidence)
	}
	if event.ReconciliationExplanation != "Direct link via clustering" {
		t.Errorf("unexpected explanation %q", event.ReconciliationExplanation)
	}
	if event.Currency != "USD" {
		t.Errorf("currency default missing: %q", event.Currency)
	}
	if event.SourceExhibitID == nil || *event.SourceExhibitID != exhibitID {
		t.Error("source exhibit not carried over")
	}
	if len(event.SourceFactIDs) != 1 || event.SourceFactIDs[0] != fact.ID {
		t.Error("source fact ids wrong")
	}
	if len(event.Participants) != 2 {
		t.Fatalf("got %d participants, want 2", len(event.Participants))
	}
	if event.Participants[0].RoleNormalized != models.RoleJointBookrunner {
		t.Errorf("got role %q, want joint_bookrunner", event.Participants[0].RoleNormalized)
	}
	if event.Participants[1].BankNameNormalized != "jpmorgan chase bank" {
		t.Errorf("bank not normalized: %q", event.Participants[1].BankNameNormalized)
	}

	// Second run must not duplicate the event.
	if _, err := New(s).Run(ctx); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	events, _ = s.EventsByDeal(ctx, deal.ID)
	if len(events) != 1 {
		t.Errorf("re-run duplicated the event: %d", len(events))
	}
}

func TestUnlinkedFactScoredToDeal(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	deal := &models.Deal{
		State:                  models.DealOpen,
		DealKey:                "cik:1:cik:2",
		TargetNameNormalized:   "target technologies",
		AcquirerNameNormalized: "acme holdings",
	}
	if err := s.SaveDeal(ctx, deal); err != nil {
		t.Fatalf("SaveDeal: %v", err)
	}

	fact := financingFact(
		"Acme Holdings announced a term loan to finance its acquisition of Target Technologies",
		models.FinancingPayload{InstrumentType: "term_loan"})
	if err := s.SaveFacts(ctx, []*models.AtomicFact{fact}); err != nil {
		t.Fatalf("SaveFacts: %v", err)
	}

	stats, err := New(s).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.FactsLinked != 1 {
		t.Fatalf("got %d facts linked, want 1", stats.FactsLinked)
	}

	got, _ := s.FactByID(ctx, fact.ID)
	if got.DealID == nil || *got.DealID != deal.ID {
		t.Fatal("fact not assigned to deal")
	}

	events, _ := s.EventsByDeal(ctx, deal.ID)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	// Target exact (0.5) + acquirer exact (0.3).
	if events[0].ReconciliationConfidence < 0.79 || events[0].ReconciliationConfidence > 0.81 {
		t.Errorf("got confidence %v, want 0.8", events[0].ReconciliationConfidence)
	}
}

func TestUnlinkedFactBelowFloorSkipped(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	deal := &models.Deal{
		State:                models.DealOpen,
		DealKey:              "cik:1:cik:2",
		TargetNameNormalized: "target technologies",
	}
	if err := s.SaveDeal(ctx, deal); err != nil {
		t.Fatalf("SaveDeal: %v", err)
	}

	fact := financingFact("a revolving credit facility for general corporate purposes",
		models.FinancingPayload{InstrumentType: "rcf"})
	if err := s.SaveFacts(ctx, []*models.AtomicFact{fact}); err != nil {
		t.Fatalf("SaveFacts: %v", err)
	}

	stats, err := New(s).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.LowConfidenceSkipped != 1 {
		t.Errorf("got %d skipped, want 1", stats.LowConfidenceSkipped)
	}
	got, _ := s.FactByID(ctx, fact.ID)
	if got.DealID != nil {
		t.Error("low-confidence fact must stay unassigned")
	}
}

func TestScoreDealWeights(t *testing.T) {
	deal := &models.Deal{
		TargetNameNormalized:   "target technologies",
		AcquirerNameNormalized: "acme holdings",
		SponsorNameNormalized:  "thoma bravo",
	}

	score, why := scoreDeal("financing for the acquisition of target technologies by acme holdings, backed by thoma bravo", deal)
	if score != 1.0 {
		t.Errorf("got score %v, want 1.0 (0.5+0.3+0.2)", score)
	}
	if why == "" {
		t.Error("expected a non-empty explanation")
	}

	score, _ = scoreDeal("unrelated press release about widgets", deal)
	if score != 0 {
		t.Errorf("got score %v for unrelated evidence, want 0", score)
	}
}

func TestNormalizeBankName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"JPMorgan Chase Bank, N.A.", "jpmorgan chase bank"},
		{"Goldman Sachs & Co. LLC", "goldman sachs & co."},
		{"Barclays Capital Inc", "barclays capital"},
		{"Wells Fargo Securities, LLC", "wells fargo securities"},
		{"Citigroup", "citigroup"},
	}
	for _, tc := range cases {
		if got := NormalizeBankName(tc.in); got != tc.want {
			t.Errorf("NormalizeBankName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeRole(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Joint Bookrunner", models.RoleJointBookrunner},
		{"bookrunner", models.RoleBookrunner},
		{"Co-Manager", models.RoleCoManager},
		{"Lead Underwriter", models.RoleLeadUnderwriter},
		{"Senior Underwriter", models.RoleLeadUnderwriter},
		{"underwriter", models.RoleUnderwriter},
		{"Joint Lead Arranger", models.RoleJointLeadArranger},
		{"Mandated Lead Arranger", models.RoleLeadArranger},
		{"arranger", models.RoleArranger},
		{"Administrative Agent", models.RoleAdminAgent},
		{"Syndication Agent", models.RoleSyndicationAgent},
		{"agent", models.RoleAgent},
		{"lead arranger", models.RoleLeadArranger},
		{"structuring advisor", models.RoleOther},
		{"", models.RoleOther},
	}
	for _, tc := range cases {
		if got := NormalizeRole(tc.in); got != tc.want {
			t.Errorf("NormalizeRole(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
