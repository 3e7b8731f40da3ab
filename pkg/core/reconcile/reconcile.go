// Package reconcile materializes financing events from financing facts.
//
// Facts the clusterer already linked to a deal become events directly.
// Facts left unlinked are scored against every open deal on name evidence;
// a match below the confidence floor is skipped rather than guessed.
package reconcile

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"dealgraph/pkg/core/models"
	"dealgraph/pkg/core/store"
)

// minConfidence is the floor below which an unlinked financing fact is
// left for human review instead of being attached to a deal.
const minConfidence = 0.5

// Stats summarizes one reconciliation run.
type Stats struct {
	EventsCreated        int `json:"events_created"`
	FactsLinked          int `json:"facts_linked"`
	LowConfidenceSkipped int `json:"low_confidence_skipped"`
}

// Reconciler turns financing facts into financing events.
type Reconciler struct {
	store store.Store
}

// New returns a reconciler over the given store.
func New(st store.Store) *Reconciler {
	return &Reconciler{store: st}
}

// Run materializes events for clustered financing facts, then attempts to
// place the unlinked ones by evidence scoring.
func (r *Reconciler) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	consumed, err := r.consumedFactIDs(ctx)
	if err != nil {
		return stats, err
	}

	if err := r.materializeLinked(ctx, consumed, stats); err != nil {
		return stats, err
	}
	if err := r.placeUnlinked(ctx, consumed, stats); err != nil {
		return stats, err
	}

	log.Printf("[Reconciler] run complete: %d events created, %d facts linked, %d skipped low-confidence",
		stats.EventsCreated, stats.FactsLinked, stats.LowConfidenceSkipped)
	return stats, nil
}

// consumedFactIDs collects every fact id already backing an event, so
// repeated runs stay idempotent.
func (r *Reconciler) consumedFactIDs(ctx context.Context) (map[string]bool, error) {
	events, err := r.store.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	consumed := map[string]bool{}
	for _, event := range events {
		for _, id := range event.SourceFactIDs {
			consumed[id.String()] = true
		}
	}
	return consumed, nil
}

func (r *Reconciler) materializeLinked(ctx context.Context, consumed map[string]bool, stats *Stats) error {
	deals, err := r.store.ListDeals(ctx, store.DealFilter{})
	if err != nil {
		return fmt.Errorf("list deals: %w", err)
	}
	for _, deal := range deals {
		facts, err := r.store.FactsByDeal(ctx, deal.ID)
		if err != nil {
			return fmt.Errorf("facts for deal %s: %w", deal.DealKey, err)
		}
		for _, fact := range facts {
			if fact.FactType != models.FactFinancingMention || consumed[fact.ID.String()] {
				continue
			}
			if err := r.materialize(ctx, fact, deal, 1.0, "Direct link via clustering"); err != nil {
				return err
			}
			consumed[fact.ID.String()] = true
			stats.EventsCreated++
		}
	}
	return nil
}

func (r *Reconciler) placeUnlinked(ctx context.Context, consumed map[string]bool, stats *Stats) error {
	facts, err := r.store.UnassignedFacts(ctx, models.FactFinancingMention)
	if err != nil {
		return fmt.Errorf("load unlinked financing facts: %w", err)
	}
	if len(facts) == 0 {
		return nil
	}

	deals, err := r.store.ListDeals(ctx, store.DealFilter{
		States: []models.DealState{models.DealCandidate, models.DealOpen},
	})
	if err != nil {
		return fmt.Errorf("list open deals: %w", err)
	}

	for _, fact := range facts {
		if consumed[fact.ID.String()] {
			continue
		}

		var best *models.Deal
		var bestScore float64
		var bestWhy string
		for _, deal := range deals {
			score, why := scoreDeal(fact.EvidenceSnippet, deal)
			if score > bestScore {
				best, bestScore, bestWhy = deal, score, why
			}
		}

		if best == nil || bestScore < minConfidence {
			stats.LowConfidenceSkipped++
			continue
		}

		if err := r.store.AssignFactDeal(ctx, fact.ID, best.ID, false); err != nil && err != store.ErrDealAssigned {
			return fmt.Errorf("link fact %s: %w", fact.ID, err)
		}
		if err := r.materialize(ctx, fact, best, bestScore, bestWhy); err != nil {
			return err
		}
		consumed[fact.ID.String()] = true
		stats.FactsLinked++
		stats.EventsCreated++
	}
	return nil
}

// scoreDeal measures how strongly a fact's evidence points at a deal.
// Target name dominates, acquirer and sponsor names corroborate.
func scoreDeal(evidence string, deal *models.Deal) (float64, string) {
	evidence = strings.ToLower(evidence)
	var score float64
	var reasons []string

	match := func(name string, exactWeight, fuzzyWeight float64, threshold int, label string) {
		if name == "" {
			return
		}
		if strings.Contains(evidence, name) {
			score += exactWeight
			reasons = append(reasons, label+" name (exact)")
			return
		}
		if pr := fuzzy.PartialRatio(name, evidence); pr > threshold {
			score += fuzzyWeight * float64(pr) / 100
			reasons = append(reasons, fmt.Sprintf("%s name (fuzzy %d)", label, pr))
		}
	}

	match(deal.TargetNameNormalized, 0.5, 0.4, 85, "target")
	match(deal.AcquirerNameNormalized, 0.3, 0.2, 85, "acquirer")
	match(deal.SponsorNameNormalized, 0.2, 0.1, 80, "sponsor")

	if score > 1.0 {
		score = 1.0
	}
	if len(reasons) == 0 {
		return 0, ""
	}
	return score, "Matched " + strings.Join(reasons, ", ")
}

// materialize builds one financing event from a financing fact.
func (r *Reconciler) materialize(ctx context.Context, fact *models.AtomicFact, deal *models.Deal, confidence float64, explanation string) error {
	payload, err := fact.Financing()
	if err != nil {
		log.Printf("[Reconciler] malformed financing fact %s: %v", fact.ID, err)
		return nil
	}

	currency := payload.Currency
	if currency == "" {
		currency = "USD"
	}

	event := &models.FinancingEvent{
		DealID:                    deal.ID,
		InstrumentType:            payload.InstrumentType,
		AmountUSD:                 payload.AmountUSD,
		AmountRaw:                 payload.AmountRaw,
		Currency:                  currency,
		Maturity:                  payload.Maturity,
		InterestRate:              payload.InterestRate,
		Purpose:                   payload.Purpose,
		ReconciliationConfidence:  confidence,
		ReconciliationExplanation: explanation,
		SourceExhibitID:           fact.ExhibitID,
		SourceFactIDs:             []uuid.UUID{fact.ID},
	}
	for _, p := range payload.Participants {
		event.Participants = append(event.Participants, &models.FinancingParticipant{
			BankNameRaw:        p.Bank,
			BankNameNormalized: NormalizeBankName(p.Bank),
			Role:               p.Role,
			RoleNormalized:     NormalizeRole(p.Role),
			EvidenceSnippet:    p.Evidence,
			EvidenceSource:     "text",
		})
	}

	if err := r.store.SaveEvent(ctx, event); err != nil {
		return fmt.Errorf("save event for fact %s: %w", fact.ID, err)
	}
	return nil
}
