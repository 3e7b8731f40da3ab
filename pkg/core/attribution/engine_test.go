package attribution

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"dealgraph/pkg/core/models"
	"dealgraph/pkg/core/store"
)

func testConfig() *Config {
	return &Config{
		AdvisoryFeeBps: map[string]float64{
			"default":           60,
			"deal_size_over_1B": 40,
			"deal_size_over_5B": 25,
		},
		UnderwritingFeeBps: map[string]float64{
			"IG_Bond":     50,
			"HY_Bond":     150,
			"Term_Loan_B": 200,
			"Unknown":     100,
		},
		RoleSplits: map[string]map[string]float64{
			"bond": {
				"bookrunner":       1.0,
				"joint_bookrunner": 1.0,
				"co_manager":       0.2,
				"other":            0.1,
			},
			"loan": {
				"lead_arranger": 1.0,
				"other":         0.25,
			},
		},
		Thresholds: Thresholds{FuzzyBankMatchMin: 92},
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "attribution_config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFailFast(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("missing file must fail")
	}
	if _, err := LoadConfig(writeConfig(t, "{not json")); err == nil {
		t.Error("invalid JSON must fail")
	}
	if _, err := LoadConfig(writeConfig(t, `{"advisory_fee_bps":{"default":60}}`)); err == nil {
		t.Error("missing underwriting_fee_bps must fail")
	}
	if _, err := LoadConfig(writeConfig(t,
		`{"advisory_fee_bps":{"deal_size_over_1B":40},"underwriting_fee_bps":{"Unknown":100},"role_splits":{"bond":{}}}`)); err == nil {
		t.Error("missing advisory default must fail")
	}
	if _, err := LoadConfig(writeConfig(t,
		`{"advisory_fee_bps":{"default":60},"underwriting_fee_bps":{"Unknown":100},"role_splits":{"bond":{"other":0.1}}}`)); err == nil {
		t.Error("missing thresholds must fail")
	}

	cfg, err := LoadConfig(writeConfig(t,
		`{"advisory_fee_bps":{"default":60},"underwriting_fee_bps":{"Unknown":100},"role_splits":{"bond":{"other":0.1}},"thresholds":{"fuzzy_bank_match_min":92}}`))
	if err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if cfg.Thresholds.FuzzyBankMatchMin != 92 {
		t.Errorf("threshold not loaded: %d", cfg.Thresholds.FuzzyBankMatchMin)
	}
}

func TestAdvisoryFeeTiers(t *testing.T) {
	e := NewEngine(testConfig(), store.NewMemoryStore())

	cases := []struct {
		value float64
		want  float64
	}{
		{500e6, 500e6 * 60 / 10000},
		{2e9, 2e9 * 40 / 10000},
		{6e9, 6e9 * 25 / 10000},
		{0, 0},
	}
	for _, tc := range cases {
		if got := e.AdvisoryFee(tc.value); math.Abs(got-tc.want) > 0.01 {
			t.Errorf("AdvisoryFee(%g) = %g, want %g", tc.value, got, tc.want)
		}
	}
}

func TestEventFee(t *testing.T) {
	e := NewEngine(testConfig(), store.NewMemoryStore())

	event := &models.FinancingEvent{AmountUSD: 1e9, MarketTag: "HY_Bond"}
	if got := e.EventFee(event); math.Abs(got-15e6) > 0.01 {
		t.Errorf("HY fee = %g, want 15e6", got)
	}

	event.MarketTag = "Never_Seen"
	if got := e.EventFee(event); math.Abs(got-10e6) > 0.01 {
		t.Errorf("unknown tag fee = %g, want Unknown fallback 10e6", got)
	}

	event.AmountUSD = 0
	if got := e.EventFee(event); got != 0 {
		t.Errorf("amountless event fee = %g, want 0", got)
	}
}

func TestAllocateEqualJointBookrunners(t *testing.T) {
	e := NewEngine(testConfig(), store.NewMemoryStore())

	event := &models.FinancingEvent{
		InstrumentFamily: "bond",
		EstimatedFeeUSD:  10e6,
		Participants: []*models.FinancingParticipant{
			{BankNameRaw: "Bank A", RoleNormalized: "joint_bookrunner"},
			{BankNameRaw: "Bank B", RoleNormalized: "joint_bookrunner"},
		},
	}
	e.Allocate(event)

	for _, p := range event.Participants {
		if math.Abs(p.EstimatedFeeUSD-5e6) > 0.01 {
			t.Errorf("%s share = %g, want 5e6", p.BankNameRaw, p.EstimatedFeeUSD)
		}
	}
}

func TestAllocateWeightedSplit(t *testing.T) {
	e := NewEngine(testConfig(), store.NewMemoryStore())

	event := &models.FinancingEvent{
		InstrumentFamily: "bond",
		EstimatedFeeUSD:  12e6,
		Participants: []*models.FinancingParticipant{
			{BankNameRaw: "Lead", RoleNormalized: "bookrunner"},
			{BankNameRaw: "Junior", RoleNormalized: "co_manager"},
		},
	}
	e.Allocate(event)

	// 1.0 vs 0.2: the lead takes 5/6 of the fee.
	if math.Abs(event.Participants[0].EstimatedFeeUSD-10e6) > 0.01 {
		t.Errorf("lead share = %g, want 10e6", event.Participants[0].EstimatedFeeUSD)
	}
	if math.Abs(event.Participants[1].EstimatedFeeUSD-2e6) > 0.01 {
		t.Errorf("junior share = %g, want 2e6", event.Participants[1].EstimatedFeeUSD)
	}

	var sum float64
	for _, p := range event.Participants {
		sum += p.EstimatedFeeUSD
	}
	if math.Abs(sum-event.EstimatedFeeUSD) > 0.01 {
		t.Errorf("allocation not conservative: %g vs %g", sum, event.EstimatedFeeUSD)
	}
}

func TestAllocateUnknownRoleFallsBack(t *testing.T) {
	e := NewEngine(testConfig(), store.NewMemoryStore())

	event := &models.FinancingEvent{
		InstrumentFamily: "bond",
		EstimatedFeeUSD:  11e6,
		Participants: []*models.FinancingParticipant{
			{BankNameRaw: "Lead", RoleNormalized: "bookrunner"},
			{BankNameRaw: "Stray", RoleNormalized: "structuring_advisor"},
		},
	}
	e.Allocate(event)

	// 1.0 vs the "other" weight 0.1.
	if math.Abs(event.Participants[0].EstimatedFeeUSD-10e6) > 0.01 {
		t.Errorf("lead share = %g, want 10e6", event.Participants[0].EstimatedFeeUSD)
	}
	if math.Abs(event.Participants[1].EstimatedFeeUSD-1e6) > 0.01 {
		t.Errorf("stray share = %g, want 1e6", event.Participants[1].EstimatedFeeUSD)
	}
}

func TestRunEstimatesDealAndEvents(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	deal := &models.Deal{State: models.DealOpen, DealKey: "cik:1:cik:2", DealValueUSD: 2e9}
	if err := s.SaveDeal(ctx, deal); err != nil {
		t.Fatalf("SaveDeal: %v", err)
	}
	event := &models.FinancingEvent{
		DealID:           deal.ID,
		InstrumentFamily: "bond",
		MarketTag:        "IG_Bond",
		AmountUSD:        1e9,
		Participants: []*models.FinancingParticipant{
			{BankNameRaw: "Bank A", RoleNormalized: "bookrunner"},
		},
	}
	if err := s.SaveEvent(ctx, event); err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}

	stats, err := NewEngine(testConfig(), s).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.DealsEstimated != 1 || stats.EventsEstimated != 1 {
		t.Errorf("stats = %+v", stats)
	}

	got, _ := s.DealByID(ctx, deal.ID)
	if math.Abs(got.AdvisoryFeeEstimated-8e6) > 0.01 {
		t.Errorf("advisory fee = %g, want 8e6 (2B at 40bps)", got.AdvisoryFeeEstimated)
	}
	if math.Abs(got.UnderwritingFeeEstimated-5e6) > 0.01 {
		t.Errorf("underwriting fee = %g, want 5e6 (1B at 50bps)", got.UnderwritingFeeEstimated)
	}

	gotEvent, _ := s.EventByID(ctx, event.ID)
	if math.Abs(gotEvent.Participants[0].EstimatedFeeUSD-5e6) > 0.01 {
		t.Errorf("sole bookrunner must take the whole fee")
	}
}
