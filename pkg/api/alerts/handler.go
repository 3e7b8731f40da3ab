// Package alerts serves the human-review queue: listing, resolution
// and manual-input submission.
package alerts

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

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

// Handler holds the alert routes' dependencies.
type Handler struct {
	store store.Store
	orch  *pipeline.Orchestrator
}

// New builds the alerts handler.
func New(st store.Store, orch *pipeline.Orchestrator) *Handler {
	return &Handler{store: st, orch: orch}
}

// Register wires the routes onto the /alerts group.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.GET("", h.list)
	g.GET("/unresolved", h.unresolved)
	g.GET("/:id", h.get)
	g.POST("/:id/resolve", h.resolve)
	g.POST("/:id/manual-input", h.manualInput)
}

type alertResponse struct {
	ID        string `json:"id"`
	AlertType string `json:"alert_type"`

	FilingID  *string `json:"filing_id,omitempty"`
	ExhibitID *string `json:"exhibit_id,omitempty"`
	DealID    *string `json:"deal_id,omitempty"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	ExhibitLink  string   `json:"exhibit_link,omitempty"`
	FieldsNeeded []string `json:"fields_needed,omitempty"`

	IsResolved      bool   `json:"is_resolved"`
	ResolvedBy      string `json:"resolved_by,omitempty"`
	ResolutionNotes string `json:"resolution_notes,omitempty"`

	CreatedAt string `json:"created_at"`
}

func idString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func toAlertResponse(a *models.Alert) alertResponse {
	return alertResponse{
		ID:              a.ID.String(),
		AlertType:       string(a.AlertType),
		FilingID:        idString(a.FilingID),
		ExhibitID:       idString(a.ExhibitID),
		DealID:          idString(a.DealID),
		Title:           a.Title,
		Description:     a.Description,
		ExhibitLink:     a.ExhibitLink,
		FieldsNeeded:    a.FieldsNeeded,
		IsResolved:      a.IsResolved,
		ResolvedBy:      a.ResolvedBy,
		ResolutionNotes: a.ResolutionNotes,
		CreatedAt:       a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *Handler) listWithFilter(c *gin.Context, filter store.AlertFilter) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	filter.Limit = limit
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	if t := c.Query("alert_type"); t != "" {
		filter.AlertType = models.AlertType(t)
	}
	if v := c.Query("deal_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deal_id"})
			return
		}
		filter.DealID = &id
	}
	if v := c.Query("filing_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filing_id"})
			return
		}
		filter.FilingID = &id
	}

	alerts, err := h.store.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list alerts"})
		return
	}
	data := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		data = append(data, toAlertResponse(a))
	}
	c.JSON(http.StatusOK, gin.H{"data": data, "limit": filter.Limit, "offset": filter.Offset})
}

func (h *Handler) list(c *gin.Context) {
	filter := store.AlertFilter{}
	if v := c.Query("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "resolved must be a boolean"})
			return
		}
		filter.Resolved = &b
	}
	h.listWithFilter(c, filter)
}

func (h *Handler) unresolved(c *gin.Context) {
	resolved := false
	h.listWithFilter(c, store.AlertFilter{Resolved: &resolved})
}

func (h *Handler) alertByParam(c *gin.Context) (*models.Alert, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return nil, false
	}
	alert, err := h.store.AlertByID(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load alert"})
		return nil, false
	}
	return alert, true
}

func (h *Handler) get(c *gin.Context) {
	alert, ok := h.alertByParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toAlertResponse(alert))
}

type resolveRequest struct {
	ResolvedBy string `json:"resolved_by" binding:"required"`
	Notes      string `json:"notes"`
}

func (h *Handler) resolve(c *gin.Context) {
	alert, ok := h.alertByParam(c)
	if !ok {
		return
	}
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "resolved_by is required"})
		return
	}
	if alert.IsResolved {
		c.JSON(http.StatusConflict, gin.H{"error": "alert already resolved"})
		return
	}

	now := time.Now().UTC()
	alert.IsResolved = true
	alert.ResolvedAt = &now
	alert.ResolvedBy = req.ResolvedBy
	alert.ResolutionNotes = req.Notes
	if err := h.store.SaveAlert(c.Request.Context(), alert); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve alert"})
		return
	}
	c.JSON(http.StatusOK, toAlertResponse(alert))
}

type manualInputRequest struct {
	InputType string          `json:"input_type" binding:"required"`
	Data      json.RawMessage `json:"data" binding:"required"`
	EnteredBy string          `json:"entered_by" binding:"required"`
	Notes     string          `json:"notes"`
}

func (h *Handler) manualInput(c *gin.Context) {
	alert, ok := h.alertByParam(c)
	if !ok {
		return
	}
	var req manualInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "input_type, data and entered_by are required"})
		return
	}

	fact, err := h.orch.SubmitManualInput(c.Request.Context(), &models.ManualInput{
		AlertID:   &alert.ID,
		InputType: req.InputType,
		Data:      req.Data,
		EnteredBy: req.EnteredBy,
		Notes:     req.Notes,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit manual input"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"alert_id": alert.ID.String(), "fact_id": fact.ID.String()})
}
