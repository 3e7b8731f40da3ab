// Package deals serves the deal read API: search, detail, financing
// events, advisors and the supporting facts of a deal.
package deals

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dealgraph/pkg/core/models"
	"dealgraph/pkg/core/store"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Handler holds the read-side dependencies.
type Handler struct {
	store store.Store
}

// New builds the deals handler.
func New(st store.Store) *Handler {
	return &Handler{store: st}
}

// Register wires the routes onto the /deals group.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.GET("", h.list)
	g.GET("/stats/summary", h.summary)
	g.GET("/:id", h.get)
	g.GET("/:id/financing", h.financing)
	g.GET("/:id/advisors", h.advisors)
	g.GET("/:id/facts", h.facts)
}

// RegisterSearch exposes the same listing under /api/search.
func (h *Handler) RegisterSearch(g *gin.RouterGroup) {
	g.GET("/search", h.list)
}

type dealResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`

	TargetName   string `json:"target_name"`
	TargetCIK    string `json:"target_cik,omitempty"`
	AcquirerName string `json:"acquirer_name"`
	AcquirerCIK  string `json:"acquirer_cik,omitempty"`
	DealKey      string `json:"deal_key"`

	AnnouncementDate  *string `json:"announcement_date,omitempty"`
	AgreementDate     *string `json:"agreement_date,omitempty"`
	ExpectedCloseDate *string `json:"expected_close_date,omitempty"`
	ActualCloseDate   *string `json:"actual_close_date,omitempty"`

	DealValueUSD float64 `json:"deal_value_usd,omitempty"`

	IsSponsorBacked         *bool   `json:"is_sponsor_backed,omitempty"`
	SponsorName             string  `json:"sponsor_name,omitempty"`
	SponsorConfidence       float64 `json:"sponsor_confidence,omitempty"`
	UnresolvedSponsorEntity bool    `json:"unresolved_sponsor_entity,omitempty"`

	MarketTag string `json:"market_tag,omitempty"`

	AdvisoryFeeEstimatedUSD     float64 `json:"advisory_fee_estimated_usd,omitempty"`
	UnderwritingFeeEstimatedUSD float64 `json:"underwriting_fee_estimated_usd,omitempty"`
}

func isoDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}

func toDealResponse(d *models.Deal) dealResponse {
	return dealResponse{
		ID:                          d.ID.String(),
		State:                       string(d.State),
		TargetName:                  d.TargetNameDisplay,
		TargetCIK:                   d.TargetCIK,
		AcquirerName:                d.AcquirerNameDisplay,
		AcquirerCIK:                 d.AcquirerCIK,
		DealKey:                     d.DealKey,
		AnnouncementDate:            isoDate(d.AnnouncementDate),
		AgreementDate:               isoDate(d.AgreementDate),
		ExpectedCloseDate:           isoDate(d.ExpectedCloseDate),
		ActualCloseDate:             isoDate(d.ActualCloseDate),
		DealValueUSD:                d.DealValueUSD,
		IsSponsorBacked:             d.IsSponsorBacked,
		SponsorName:                 d.SponsorNameRaw,
		SponsorConfidence:           d.SponsorConfidence,
		UnresolvedSponsorEntity:     d.UnresolvedSponsorEntity,
		MarketTag:                   d.MarketTag,
		AdvisoryFeeEstimatedUSD:     d.AdvisoryFeeEstimated,
		UnderwritingFeeEstimatedUSD: d.UnderwritingFeeEstimated,
	}
}

func parseLimitOffset(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (h *Handler) list(c *gin.Context) {
	filter := store.DealFilter{
		Query:     c.Query("query"),
		MarketTag: c.Query("market_tag"),
	}
	filter.Limit, filter.Offset = parseLimitOffset(c)

	if s := c.Query("state"); s != "" {
		for _, part := range strings.Split(s, ",") {
			filter.States = append(filter.States, models.DealState(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	if v := c.Query("is_sponsor_backed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "is_sponsor_backed must be a boolean"})
			return
		}
		filter.IsSponsorBacked = &b
	}

	dealList, err := h.store.ListDeals(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list deals"})
		return
	}

	data := make([]dealResponse, 0, len(dealList))
	for _, d := range dealList {
		data = append(data, toDealResponse(d))
	}
	c.JSON(http.StatusOK, gin.H{"data": data, "limit": filter.Limit, "offset": filter.Offset})
}

func (h *Handler) dealByParam(c *gin.Context) (*models.Deal, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deal id"})
		return nil, false
	}
	deal, err := h.store.DealByID(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "deal not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load deal"})
		return nil, false
	}
	return deal, true
}

func (h *Handler) get(c *gin.Context) {
	deal, ok := h.dealByParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toDealResponse(deal))
}

type participantResponse struct {
	BankID          *string `json:"bank_id,omitempty"`
	BankName        string  `json:"bank_name"`
	Role            string  `json:"role"`
	RoleNormalized  string  `json:"role_normalized"`
	RoleWeight      float64 `json:"role_weight,omitempty"`
	EstimatedFeeUSD float64 `json:"estimated_fee_usd,omitempty"`
	EvidenceSource  string  `json:"evidence_source,omitempty"`
}

type eventResponse struct {
	ID               string  `json:"id"`
	InstrumentFamily string  `json:"instrument_family"`
	InstrumentType   string  `json:"instrument_type"`
	MarketTag        string  `json:"market_tag,omitempty"`
	AmountUSD        float64 `json:"amount_usd,omitempty"`
	AmountRaw        string  `json:"amount_raw,omitempty"`
	Currency         string  `json:"currency"`
	Maturity         string  `json:"maturity,omitempty"`
	InterestRate     string  `json:"interest_rate,omitempty"`
	Purpose          string  `json:"purpose,omitempty"`

	ReconciliationConfidence  float64 `json:"reconciliation_confidence"`
	ReconciliationExplanation string  `json:"reconciliation_explanation,omitempty"`

	EstimatedFeeUSD float64               `json:"estimated_fee_usd,omitempty"`
	Participants    []participantResponse `json:"participants"`
}

func (h *Handler) financing(c *gin.Context) {
	deal, ok := h.dealByParam(c)
	if !ok {
		return
	}
	events, err := h.store.EventsByDeal(c.Request.Context(), deal.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load financing events"})
		return
	}

	data := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		resp := eventResponse{
			ID:                        ev.ID.String(),
			InstrumentFamily:          ev.InstrumentFamily,
			InstrumentType:            ev.InstrumentType,
			MarketTag:                 ev.MarketTag,
			AmountUSD:                 ev.AmountUSD,
			AmountRaw:                 ev.AmountRaw,
			Currency:                  ev.Currency,
			Maturity:                  ev.Maturity,
			InterestRate:              ev.InterestRate,
			Purpose:                   ev.Purpose,
			ReconciliationConfidence:  ev.ReconciliationConfidence,
			ReconciliationExplanation: ev.ReconciliationExplanation,
			EstimatedFeeUSD:           ev.EstimatedFeeUSD,
			Participants:              make([]participantResponse, 0, len(ev.Participants)),
		}
		for _, p := range ev.Participants {
			pr := participantResponse{
				BankName:        p.BankNameRaw,
				Role:            p.Role,
				RoleNormalized:  p.RoleNormalized,
				RoleWeight:      p.RoleWeight,
				EstimatedFeeUSD: p.EstimatedFeeUSD,
				EvidenceSource:  p.EvidenceSource,
			}
			if p.BankID != nil {
				s := p.BankID.String()
				pr.BankID = &s
			}
			resp.Participants = append(resp.Participants, pr)
		}
		data = append(data, resp)
	}
	c.JSON(http.StatusOK, gin.H{"deal_id": deal.ID.String(), "data": data})
}

type advisorResponse struct {
	FactID     string  `json:"fact_id"`
	BankName   string  `json:"bank_name"`
	Role       string  `json:"role"`
	ClientSide string  `json:"client_side"`
	Confidence float64 `json:"confidence"`
}

func (h *Handler) advisors(c *gin.Context) {
	deal, ok := h.dealByParam(c)
	if !ok {
		return
	}
	facts, err := h.store.FactsByDeal(c.Request.Context(), deal.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load facts"})
		return
	}

	data := make([]advisorResponse, 0)
	for _, f := range facts {
		if f.FactType != models.FactAdvisorMention {
			continue
		}
		payload, err := f.Advisor()
		if err != nil {
			continue
		}
		data = append(data, advisorResponse{
			FactID:     f.ID.String(),
			BankName:   payload.BankNameRaw,
			Role:       payload.Role,
			ClientSide: payload.ClientSide,
			Confidence: f.Confidence,
		})
	}
	c.JSON(http.StatusOK, gin.H{"deal_id": deal.ID.String(), "data": data})
}

type factResponse struct {
	ID               string  `json:"id"`
	FactType         string  `json:"fact_type"`
	FilingID         *string `json:"filing_id,omitempty"`
	ExhibitID        *string `json:"exhibit_id,omitempty"`
	SourceSection    string  `json:"source_section,omitempty"`
	ExtractionMethod string  `json:"extraction_method,omitempty"`
	Confidence       float64 `json:"confidence"`
	EvidenceSnippet  string  `json:"evidence_snippet,omitempty"`

	Payload any `json:"payload"`
}

func (h *Handler) facts(c *gin.Context) {
	deal, ok := h.dealByParam(c)
	if !ok {
		return
	}
	facts, err := h.store.FactsByDeal(c.Request.Context(), deal.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load facts"})
		return
	}

	data := make([]factResponse, 0, len(facts))
	for _, f := range facts {
		resp := factResponse{
			ID:               f.ID.String(),
			FactType:         string(f.FactType),
			SourceSection:    f.SourceSection,
			ExtractionMethod: f.ExtractionMethod,
			Confidence:       f.Confidence,
			EvidenceSnippet:  f.EvidenceSnippet,
			Payload:          f.Payload,
		}
		if f.FilingID != nil {
			s := f.FilingID.String()
			resp.FilingID = &s
		}
		if f.ExhibitID != nil {
			s := f.ExhibitID.String()
			resp.ExhibitID = &s
		}
		data = append(data, resp)
	}
	c.JSON(http.StatusOK, gin.H{"deal_id": deal.ID.String(), "data": data})
}

type summaryResponse struct {
	TotalDeals    int            `json:"total_deals"`
	ByState       map[string]int `json:"by_state"`
	ByMarketTag   map[string]int `json:"by_market_tag"`
	SponsorBacked int            `json:"sponsor_backed"`

	TotalDealValueUSD float64 `json:"total_deal_value_usd"`
	TotalAdvisoryUSD  float64 `json:"total_advisory_fee_estimated_usd"`
	TotalUnderwritUSD float64 `json:"total_underwriting_fee_estimated_usd"`
}

func (h *Handler) summary(c *gin.Context) {
	dealList, err := h.store.ListDeals(c.Request.Context(), store.DealFilter{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list deals"})
		return
	}

	resp := summaryResponse{
		TotalDeals:  len(dealList),
		ByState:     map[string]int{},
		ByMarketTag: map[string]int{},
	}
	for _, d := range dealList {
		resp.ByState[string(d.State)]++
		if d.MarketTag != "" {
			resp.ByMarketTag[d.MarketTag]++
		}
		if d.IsSponsorBacked != nil && *d.IsSponsorBacked {
			resp.SponsorBacked++
		}
		resp.TotalDealValueUSD += d.DealValueUSD
		resp.TotalAdvisoryUSD += d.AdvisoryFeeEstimated
		resp.TotalUnderwritUSD += d.UnderwritingFeeEstimated
	}
	c.JSON(http.StatusOK, resp)
}
