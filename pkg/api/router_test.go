package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dealgraph/pkg/core/attribution"
	"dealgraph/pkg/core/models"
	"dealgraph/pkg/core/pipeline"
	"dealgraph/pkg/core/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testRouter(t *testing.T) (*gin.Engine, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	orch := pipeline.New(st, nil, &attribution.Config{
		AdvisoryFeeBps:     map[string]float64{"default": 60},
		UnderwritingFeeBps: map[string]float64{models.TagUnknown: 100},
		RoleSplits:         map[string]map[string]float64{"bond": {"other": 0.1}},
	})
	return SetupRouter(st, orch), st
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("%s %s: bad JSON response: %v\n%s", method, path, err, w.Body.String())
		}
	}
	return w, decoded
}

func seedDeal(t *testing.T, st *store.MemoryStore, target, acquirer string, state models.DealState) *models.Deal {
	t.Helper()
	deal := &models.Deal{
		ID:                     uuid.New(),
		State:                  state,
		DealKey:                "name:" + acquirer + ":name:" + target,
		TargetNameDisplay:      target,
		TargetNameNormalized:   strings.ToLower(target),
		AcquirerNameDisplay:    acquirer,
		AcquirerNameNormalized: strings.ToLower(acquirer),
		MarketTag:              models.TagUnknown,
	}
	if err := st.SaveDeal(t.Context(), deal); err != nil {
		t.Fatal(err)
	}
	return deal
}

func TestHealth(t *testing.T) {
	r, _ := testRouter(t)
	w, body := doJSON(t, r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestListDealsFiltersAndSearchAlias(t *testing.T) {
	r, st := testRouter(t)
	seedDeal(t, st, "Target Technologies", "Acme Holdings", models.DealOpen)
	seedDeal(t, st, "Widget Corp", "Gadget Inc", models.DealCandidate)

	for _, path := range []string{"/deals?query=widget", "/api/search?query=widget"} {
		w, body := doJSON(t, r, http.MethodGet, path, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", path, w.Code)
		}
		data := body["data"].([]any)
		if len(data) != 1 {
			t.Fatalf("%s: got %d deals, want 1", path, len(data))
		}
		deal := data[0].(map[string]any)
		if deal["target_name"] != "Widget Corp" {
			t.Errorf("%s: wrong deal: %v", path, deal)
		}
	}

	w, body := doJSON(t, r, http.MethodGet, "/deals?state=OPEN", "")
	if w.Code != http.StatusOK || len(body["data"].([]any)) != 1 {
		t.Errorf("state filter failed: %d %v", w.Code, body)
	}

	w, _ = doJSON(t, r, http.MethodGet, "/deals?is_sponsor_backed=notabool", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad boolean should 400, got %d", w.Code)
	}
}

func TestDealDetailAndNotFound(t *testing.T) {
	r, st := testRouter(t)
	deal := seedDeal(t, st, "Target Technologies", "Acme Holdings", models.DealOpen)

	w, body := doJSON(t, r, http.MethodGet, "/deals/"+deal.ID.String(), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["deal_key"] != deal.DealKey {
		t.Errorf("deal_key = %v", body["deal_key"])
	}

	w, _ = doJSON(t, r, http.MethodGet, "/deals/"+uuid.NewString(), "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing deal should 404, got %d", w.Code)
	}
	w, _ = doJSON(t, r, http.MethodGet, "/deals/not-a-uuid", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad uuid should 400, got %d", w.Code)
	}
}

func TestDealFinancingAndAdvisors(t *testing.T) {
	r, st := testRouter(t)
	ctx := t.Context()
	deal := seedDeal(t, st, "Target Technologies", "Acme Holdings", models.DealOpen)

	event := &models.FinancingEvent{
		ID:               uuid.New(),
		DealID:           deal.ID,
		InstrumentFamily: "bond",
		InstrumentType:   "bond",
		MarketTag:        models.TagHYBond,
		AmountUSD:        1e9,
		Currency:         "USD",
		Participants: []*models.FinancingParticipant{{
			ID:             uuid.New(),
			BankNameRaw:    "Morgan Stanley & Co. LLC",
			Role:           "joint bookrunner",
			RoleNormalized: models.RoleJointBookrunner,
		}},
	}
	if err := st.SaveEvent(ctx, event); err != nil {
		t.Fatal(err)
	}

	advisor := models.NewFact(models.FactAdvisorMention, models.AdvisorPayload{
		BankNameRaw: "Evercore", Role: "lead_advisor", ClientSide: "target",
	})
	advisor.Confidence = 0.85
	advisor.DealID = &deal.ID
	if err := st.SaveFacts(ctx, []*models.AtomicFact{advisor}); err != nil {
		t.Fatal(err)
	}

	w, body := doJSON(t, r, http.MethodGet, "/deals/"+deal.ID.String()+"/financing", "")
	if w.Code != http.StatusOK {
		t.Fatalf("financing status = %d", w.Code)
	}
	events := body["data"].([]any)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0].(map[string]any)
	if ev["market_tag"] != models.TagHYBond || ev["amount_usd"].(float64) != 1e9 {
		t.Errorf("event wrong: %v", ev)
	}
	participants := ev["participants"].([]any)
	if len(participants) != 1 || participants[0].(map[string]any)["role_normalized"] != "joint_bookrunner" {
		t.Errorf("participants wrong: %v", participants)
	}

	w, body = doJSON(t, r, http.MethodGet, "/deals/"+deal.ID.String()+"/advisors", "")
	if w.Code != http.StatusOK {
		t.Fatalf("advisors status = %d", w.Code)
	}
	advisors := body["data"].([]any)
	if len(advisors) != 1 || advisors[0].(map[string]any)["bank_name"] != "Evercore" {
		t.Errorf("advisors wrong: %v", advisors)
	}
}

func TestDealsSummary(t *testing.T) {
	r, st := testRouter(t)
	seedDeal(t, st, "Target Technologies", "Acme Holdings", models.DealOpen)
	seedDeal(t, st, "Widget Corp", "Gadget Inc", models.DealOpen)

	w, body := doJSON(t, r, http.MethodGet, "/deals/stats/summary", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["total_deals"].(float64) != 2 {
		t.Errorf("total_deals = %v", body["total_deals"])
	}
	byState := body["by_state"].(map[string]any)
	if byState["OPEN"].(float64) != 2 {
		t.Errorf("by_state = %v", byState)
	}
}

func TestFilingsListAndExhibits(t *testing.T) {
	r, st := testRouter(t)
	ctx := t.Context()

	filing := &models.Filing{
		ID:              uuid.New(),
		AccessionNumber: "0000320193-24-000001",
		CIK:             "320193",
		FormType:        "8-K",
		FilingDate:      time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC),
		CompanyName:     "Target Technologies, Inc.",
		Exhibits: []*models.Exhibit{{
			ID:          uuid.New(),
			ExhibitType: "EX-2.1",
			Description: "Agreement and Plan of Merger",
			IsMaterial:  false,
		}},
	}
	if err := st.SaveFiling(ctx, filing); err != nil {
		t.Fatal(err)
	}

	w, body := doJSON(t, r, http.MethodGet, "/filings?cik=320193", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	data := body["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("got %d filings, want 1", len(data))
	}
	got := data[0].(map[string]any)
	if got["accession_number"] != filing.AccessionNumber || got["filing_date"] != "2024-06-12" {
		t.Errorf("filing wrong: %v", got)
	}

	w, body = doJSON(t, r, http.MethodGet, "/filings/"+filing.ID.String()+"/exhibits", "")
	if w.Code != http.StatusOK {
		t.Fatalf("exhibits status = %d", w.Code)
	}
	exhibits := body["data"].([]any)
	if len(exhibits) != 1 || exhibits[0].(map[string]any)["exhibit_type"] != "EX-2.1" {
		t.Errorf("exhibits wrong: %v", exhibits)
	}
}

func TestAlertResolveFlow(t *testing.T) {
	r, st := testRouter(t)
	ctx := t.Context()

	alert := models.NewAlert(models.AlertUnresolvedBank, "Unresolved bank: example partners", "")
	if err := st.SaveAlert(ctx, alert); err != nil {
		t.Fatal(err)
	}

	w, body := doJSON(t, r, http.MethodGet, "/alerts/unresolved", "")
	if w.Code != http.StatusOK || len(body["data"].([]any)) != 1 {
		t.Fatalf("unresolved listing failed: %d %v", w.Code, body)
	}

	w, _ = doJSON(t, r, http.MethodPost, "/alerts/"+alert.ID.String()+"/resolve", `{"resolved_by":"analyst@example.com","notes":"checked manually"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("resolve status = %d", w.Code)
	}

	w, _ = doJSON(t, r, http.MethodPost, "/alerts/"+alert.ID.String()+"/resolve", `{"resolved_by":"analyst@example.com"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("double resolve should 409, got %d", w.Code)
	}

	w, body = doJSON(t, r, http.MethodGet, "/alerts/unresolved", "")
	if w.Code != http.StatusOK || len(body["data"].([]any)) != 0 {
		t.Errorf("alert still unresolved: %v", body)
	}
}

func TestAlertManualInput(t *testing.T) {
	r, st := testRouter(t)
	ctx := t.Context()

	alert := models.NewAlert(models.AlertUnparsedMaterialExhibit, "Unparsed material exhibit: EX-10.1", "")
	if err := st.SaveAlert(ctx, alert); err != nil {
		t.Fatal(err)
	}

	payload := `{"input_type":"financing_terms","data":{"instrument_type":"term_loan","amount_usd":500000000},"entered_by":"analyst@example.com"}`
	w, body := doJSON(t, r, http.MethodPost, "/alerts/"+alert.ID.String()+"/manual-input", payload)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %v", w.Code, body)
	}

	factID, err := uuid.Parse(body["fact_id"].(string))
	if err != nil {
		t.Fatalf("fact_id not a uuid: %v", body["fact_id"])
	}
	fact, err := st.FactByID(ctx, factID)
	if err != nil {
		t.Fatalf("manual fact not stored: %v", err)
	}
	if fact.FactType != models.FactManual {
		t.Errorf("fact type = %s", fact.FactType)
	}

	resolved, _ := st.AlertByID(ctx, alert.ID)
	if !resolved.IsResolved {
		t.Error("alert not resolved by manual input")
	}

	w, _ = doJSON(t, r, http.MethodPost, "/alerts/"+alert.ID.String()+"/manual-input", `{"input_type":"x"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("incomplete payload should 400, got %d", w.Code)
	}
}

func TestPipelineRunEndpoint(t *testing.T) {
	r, st := testRouter(t)
	ctx := t.Context()

	filingID := uuid.New()
	exhibitID := uuid.New()
	for _, p := range []struct{ label, name, cik string }{
		{"Company", "target technologies", "0000111111"},
		{"Parent", "acme holdings", "0000222222"},
	} {
		fact := models.NewFact(models.FactPartyDefinition, models.PartyPayload{
			PartyNameRaw:        p.name,
			PartyNameNormalized: p.name,
			PartyNameDisplay:    p.name,
			RoleLabel:           p.label,
			CIK:                 p.cik,
		})
		fact.FilingID = &filingID
		fact.ExhibitID = &exhibitID
		fact.Confidence = 0.9
		if err := st.SaveFacts(ctx, []*models.AtomicFact{fact}); err != nil {
			t.Fatal(err)
		}
	}

	w, body := doJSON(t, r, http.MethodPost, "/api/pipeline/run", "{}")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", w.Code, body)
	}
	clusterStats := body["cluster"].(map[string]any)
	if clusterStats["deals_created"].(float64) != 1 {
		t.Errorf("cluster stats = %v", clusterStats)
	}
}
