// Package filings serves the filing read API and the ingest trigger.
package filings

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dealgraph/pkg/core/models"
	"dealgraph/pkg/core/pipeline"
	"dealgraph/pkg/core/store"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Handler holds the filing routes' dependencies. The orchestrator is
// only used by the ingest trigger.
type Handler struct {
	store store.Store
	orch  *pipeline.Orchestrator
}

// New builds the filings handler.
func New(st store.Store, orch *pipeline.Orchestrator) *Handler {
	return &Handler{store: st, orch: orch}
}

// Register wires the routes onto the /filings group.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.GET("", h.list)
	g.GET("/stats/summary", h.summary)
	g.POST("/ingest", h.ingest)
	g.GET("/:id", h.get)
	g.GET("/:id/exhibits", h.exhibits)
}

type filingResponse struct {
	ID              string `json:"id"`
	AccessionNumber string `json:"accession_number"`
	CIK             string `json:"cik"`
	FormType        string `json:"form_type"`
	FilingDate      string `json:"filing_date,omitempty"`
	CompanyName     string `json:"company_name,omitempty"`
	FilingURL       string `json:"filing_url,omitempty"`
	Processed       bool   `json:"processed"`
	ExhibitCount    int    `json:"exhibit_count"`
}

func toFilingResponse(f *models.Filing) filingResponse {
	resp := filingResponse{
		ID:              f.ID.String(),
		AccessionNumber: f.AccessionNumber,
		CIK:             f.CIK,
		FormType:        f.FormType,
		CompanyName:     f.CompanyName,
		FilingURL:       f.FilingURL,
		Processed:       f.Processed,
		ExhibitCount:    len(f.Exhibits),
	}
	if !f.FilingDate.IsZero() {
		resp.FilingDate = f.FilingDate.Format("2006-01-02")
	}
	return resp
}

func (h *Handler) list(c *gin.Context) {
	filter := store.FilingFilter{
		CIK:      c.Query("cik"),
		FormType: c.Query("form_type"),
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	filter.Limit = limit
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	if v := c.Query("processed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "processed must be a boolean"})
			return
		}
		filter.Processed = &b
	}

	filings, err := h.store.ListFilings(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list filings"})
		return
	}

	data := make([]filingResponse, 0, len(filings))
	for _, f := range filings {
		data = append(data, toFilingResponse(f))
	}
	c.JSON(http.StatusOK, gin.H{"data": data, "limit": filter.Limit, "offset": filter.Offset})
}

func (h *Handler) filingByParam(c *gin.Context) (*models.Filing, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filing id"})
		return nil, false
	}
	filing, err := h.store.FilingByID(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "filing not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load filing"})
		return nil, false
	}
	return filing, true
}

func (h *Handler) get(c *gin.Context) {
	filing, ok := h.filingByParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toFilingResponse(filing))
}

type exhibitResponse struct {
	ID                string `json:"id"`
	ExhibitType       string `json:"exhibit_type"`
	Description       string `json:"description,omitempty"`
	Filename          string `json:"filename,omitempty"`
	URL               string `json:"url,omitempty"`
	IsPDF             bool   `json:"is_pdf"`
	IsMaterial        bool   `json:"is_material"`
	ExtractionQuality string `json:"extraction_quality,omitempty"`
}

func (h *Handler) exhibits(c *gin.Context) {
	filing, ok := h.filingByParam(c)
	if !ok {
		return
	}
	data := make([]exhibitResponse, 0, len(filing.Exhibits))
	for _, ex := range filing.Exhibits {
		data = append(data, exhibitResponse{
			ID:                ex.ID.String(),
			ExhibitType:       ex.ExhibitType,
			Description:       ex.Description,
			Filename:          ex.Filename,
			URL:               ex.URL,
			IsPDF:             ex.IsPDF,
			IsMaterial:        ex.IsMaterial,
			ExtractionQuality: ex.ExtractionQuality,
		})
	}
	c.JSON(http.StatusOK, gin.H{"filing_id": filing.ID.String(), "data": data})
}

type ingestRequest struct {
	CIK      string `json:"cik" binding:"required"`
	FromDate string `json:"from_date"`
	ToDate   string `json:"to_date"`
}

func (h *Handler) ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cik is required"})
		return
	}

	stats, err := h.orch.Ingest(c.Request.Context(), req.CIK, req.FromDate, req.ToDate)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "ingest failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cik": req.CIK, "stats": stats})
}

func (h *Handler) summary(c *gin.Context) {
	filings, err := h.store.ListFilings(c.Request.Context(), store.FilingFilter{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list filings"})
		return
	}

	byForm := map[string]int{}
	processed := 0
	exhibits := 0
	for _, f := range filings {
		byForm[f.FormType]++
		if f.Processed {
			processed++
		}
		exhibits += len(f.Exhibits)
	}
	c.JSON(http.StatusOK, gin.H{
		"total_filings":  len(filings),
		"processed":      processed,
		"by_form_type":   byForm,
		"total_exhibits": exhibits,
	})
}
