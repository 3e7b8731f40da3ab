// Package pipeline wires the processing stages into one orchestrator:
// ingest, cluster, reconcile, classify, resolve banks, attribute fees.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"dealgraph/pkg/core/attribution"
	"dealgraph/pkg/core/banks"
	"dealgraph/pkg/core/classify"
	"dealgraph/pkg/core/cluster"
	"dealgraph/pkg/core/edgar"
	"dealgraph/pkg/core/ingest"
	"dealgraph/pkg/core/models"
	"dealgraph/pkg/core/reconcile"
	"dealgraph/pkg/core/store"
)

// Orchestrator owns the stage ordering. Stages are idempotent, so a
// full run can be repeated after new filings arrive.
type Orchestrator struct {
	store      store.Store
	worker     *ingest.Worker
	clusterer  *cluster.Clusterer
	reconciler *reconcile.Reconciler
	classifier *classify.Classifier
	resolver   *banks.Resolver
	engine     *attribution.Engine
}

// New builds an orchestrator around a store, an EDGAR client and the
// fee attribution config.
func New(st store.Store, client *edgar.Client, cfg *attribution.Config) *Orchestrator {
	return &Orchestrator{
		store:      st,
		worker:     ingest.NewWorker(client, st),
		clusterer:  cluster.New(st),
		reconciler: reconcile.New(st),
		classifier: classify.New(st),
		resolver:   banks.NewResolver(st, banks.Options{FuzzyMin: cfg.Thresholds.FuzzyBankMatchMin}),
		engine:     attribution.NewEngine(cfg, st),
	}
}

// Ingest pulls M&A filings for one CIK and persists filings, facts and
// alerts. It does not run the downstream stages.
func (o *Orchestrator) Ingest(ctx context.Context, cik, fromDate, toDate string) (*ingest.Stats, error) {
	return o.worker.IngestCompany(ctx, cik, fromDate, toDate)
}

// RunStats aggregates the per-stage statistics of one pipeline run.
type RunStats struct {
	Cluster     *cluster.Stats     `json:"cluster"`
	Reconcile   *reconcile.Stats   `json:"reconcile"`
	Classify    *classify.Stats    `json:"classify"`
	Banks       *banks.Stats       `json:"banks"`
	Attribution *attribution.Stats `json:"attribution"`
}

// RunPipeline executes every post-ingest stage in dependency order.
func (o *Orchestrator) RunPipeline(ctx context.Context) (*RunStats, error) {
	start := time.Now()
	stats := &RunStats{}
	var err error

	if stats.Cluster, err = o.clusterer.Run(ctx); err != nil {
		return nil, fmt.Errorf("pipeline: cluster: %w", err)
	}
	if stats.Reconcile, err = o.reconciler.Run(ctx); err != nil {
		return nil, fmt.Errorf("pipeline: reconcile: %w", err)
	}
	if stats.Classify, err = o.classifier.Run(ctx); err != nil {
		return nil, fmt.Errorf("pipeline: classify: %w", err)
	}
	if stats.Banks, err = o.resolver.ResolveParticipants(ctx); err != nil {
		return nil, fmt.Errorf("pipeline: resolve banks: %w", err)
	}
	if stats.Attribution, err = o.engine.Run(ctx); err != nil {
		return nil, fmt.Errorf("pipeline: attribution: %w", err)
	}

	log.Printf("[Pipeline] full run complete in %v: %d deals created, %d events, %d banks resolved",
		time.Since(start), stats.Cluster.DealsCreated, stats.Reconcile.EventsCreated, stats.Banks.Resolved)
	return stats, nil
}

// SubmitManualInput persists a human-provided payload, materializes it
// as a MANUAL fact so downstream stages treat it like extracted data,
// and resolves the alert that requested it.
func (o *Orchestrator) SubmitManualInput(ctx context.Context, input *models.ManualInput) (*models.AtomicFact, error) {
	if input.EnteredBy == "" {
		return nil, fmt.Errorf("pipeline: manual input requires entered_by")
	}
	if input.ID == uuid.Nil {
		input.ID = uuid.New()
	}
	if input.EnteredAt.IsZero() {
		input.EnteredAt = time.Now().UTC()
	}

	fact := models.NewFact(models.FactManual, models.ManualPayload{
		InputType: input.InputType,
		Data:      input.Data,
		EnteredBy: input.EnteredBy,
		Notes:     input.Notes,
	})
	fact.ExtractionMethod = "manual"
	fact.SourceSection = "manual_input"
	fact.Confidence = 1.0
	fact.EvidenceSnippet = fmt.Sprintf("Manual input (%s) by %s", input.InputType, input.EnteredBy)
	fact.DealID = input.DealID

	if input.AlertID != nil {
		alert, err := o.store.AlertByID(ctx, *input.AlertID)
		if err != nil {
			return nil, fmt.Errorf("pipeline: manual input alert: %w", err)
		}
		fact.FilingID = alert.FilingID
		fact.ExhibitID = alert.ExhibitID
		if fact.DealID == nil {
			fact.DealID = alert.DealID
		}

		now := time.Now().UTC()
		alert.IsResolved = true
		alert.ResolvedAt = &now
		alert.ResolvedBy = input.EnteredBy
		alert.ResolutionNotes = fmt.Sprintf("Manual input %s provided", input.ID)
		if err := o.store.SaveAlert(ctx, alert); err != nil {
			return nil, fmt.Errorf("pipeline: resolve alert: %w", err)
		}
	}

	if err := o.store.SaveManualInput(ctx, input); err != nil {
		return nil, fmt.Errorf("pipeline: save manual input: %w", err)
	}
	if err := o.store.SaveFacts(ctx, []*models.AtomicFact{fact}); err != nil {
		return nil, fmt.Errorf("pipeline: save manual fact: %w", err)
	}
	return fact, nil
}
