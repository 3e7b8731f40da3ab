// Package attribution estimates advisory and underwriting fees and
// allocates them across financing participants by role weight.
//
// Every estimate is derived from the loaded config; the allocation is
// conservative: participant shares always sum back to the event fee.
package attribution

import (
	"context"
	"fmt"
	"log"

	"dealgraph/pkg/core/models"
	"dealgraph/pkg/core/store"
)

// Stats summarizes one attribution run.
type Stats struct {
	DealsEstimated  int `json:"deals_estimated"`
	EventsEstimated int `json:"events_estimated"`
}

// Engine applies the fee model to deals and events.
type Engine struct {
	cfg   *Config
	store store.Store
}

// NewEngine returns an engine over the given store.
func NewEngine(cfg *Config, st store.Store) *Engine {
	return &Engine{cfg: cfg, store: st}
}

// AdvisoryFee estimates the M&A advisory fee for a deal value.
func (e *Engine) AdvisoryFee(dealValueUSD float64) float64 {
	if dealValueUSD <= 0 {
		return 0
	}
	return dealValueUSD * e.cfg.advisoryBps(dealValueUSD) / 10000
}

// EventFee estimates the underwriting fee for one financing event.
// Events without an extracted amount get no estimate.
func (e *Engine) EventFee(event *models.FinancingEvent) float64 {
	if event.AmountUSD <= 0 {
		return 0
	}
	return event.AmountUSD * e.cfg.underwritingBps(event.MarketTag) / 10000
}

// Allocate splits an event's fee across its participants proportionally
// to role weight. A zero weight sum degrades to an even split.
func (e *Engine) Allocate(event *models.FinancingEvent) {
	total := event.EstimatedFeeUSD
	if len(event.Participants) == 0 {
		return
	}

	var weightSum float64
	for _, p := range event.Participants {
		p.RoleWeight = e.cfg.roleWeight(event.InstrumentFamily, p.RoleNormalized)
		weightSum += p.RoleWeight
	}

	if weightSum == 0 {
		share := total / float64(len(event.Participants))
		for _, p := range event.Participants {
			p.EstimatedFeeUSD = share
		}
		return
	}
	for _, p := range event.Participants {
		p.EstimatedFeeUSD = total * p.RoleWeight / weightSum
	}
}

// Run estimates fees for every deal: advisory from deal value,
// underwriting from the deal's events, participant shares from roles.
func (e *Engine) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	deals, err := e.store.ListDeals(ctx, store.DealFilter{})
	if err != nil {
		return stats, fmt.Errorf("list deals: %w", err)
	}

	for _, deal := range deals {
		events, err := e.store.EventsByDeal(ctx, deal.ID)
		if err != nil {
			return stats, fmt.Errorf("events for deal %s: %w", deal.DealKey, err)
		}

		var underwriting float64
		for _, event := range events {
			event.EstimatedFeeUSD = e.EventFee(event)
			e.Allocate(event)
			underwriting += event.EstimatedFeeUSD
			if err := e.store.SaveEvent(ctx, event); err != nil {
				return stats, fmt.Errorf("save estimated event %s: %w", event.ID, err)
			}
			stats.EventsEstimated++
		}

		advisory := e.AdvisoryFee(deal.DealValueUSD)
		if advisory != deal.AdvisoryFeeEstimated || underwriting != deal.UnderwritingFeeEstimated {
			deal.AdvisoryFeeEstimated = advisory
			deal.UnderwritingFeeEstimated = underwriting
			if err := e.store.SaveDeal(ctx, deal); err != nil {
				return stats, fmt.Errorf("save estimated deal %s: %w", deal.DealKey, err)
			}
			stats.DealsEstimated++
		}
	}

	log.Printf("[Attribution] run complete: %d deals, %d events estimated",
		stats.DealsEstimated, stats.EventsEstimated)
	return stats, nil
}
