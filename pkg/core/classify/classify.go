// Package classify assigns market tags to financing events and rolls
// them up onto deals.
//
// Classification reads only the verbatim evidence behind an event plus
// the deal's sponsor flag; it never fetches new data.
package classify

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"dealgraph/pkg/core/models"
	"dealgraph/pkg/core/store"
)

// Instrument families.
const (
	FamilyBond    = "bond"
	FamilyLoan    = "loan"
	FamilyBridge  = "bridge"
	FamilyUnknown = "unknown"
)

// Indicator patterns, matched against lowercased evidence. Rating symbols
// require a word boundary; single-letter grades additionally require a
// +/- suffix so prose articles don't trigger them.
var (
	igRE = regexp.MustCompile(
		`\binvestment[\s-]grade\b|\big\b|\bbbb[+-]?\b|\baaa\b|\baa[+-]?\b|\ba[+-]\b`)
	hyRE = regexp.MustCompile(
		`\bhigh[\s-]yield\b|\bhy\b|\bleveraged\b|\blevfin\b|\bbb[+-]?\b|\bb[+-]\b|\bccc[+-]?\b|\bjunk\b|\bsub-investment[\s-]grade\b`)
	tlbRE = regexp.MustCompile(
		`\bterm\s+loan\s+b\b|\btlb\b|\btl\s+b\b|\binstitutional\s+term\s+loan\b|\bterm\s+b\b`)
	bridgeRE = regexp.MustCompile(
		`\bbridge\b|\binterim\s+financing\b|\btemporary\s+financing\b`)
	rcfRE = regexp.MustCompile(
		`\brevolv(?:ing|er)\b|\brcf\b|\babl\b|\basset[\s-]based\s+(?:lending|loan)\b`)
)

var bondTypes = map[string]bool{
	"bond":             true,
	"convertible_bond": true,
}

var loanTypes = map[string]bool{
	"term_loan":       true,
	"credit_facility": true,
	"rcf":             true,
	"bridge_loan":     true,
}

// tagPriority orders deal-level rollup: the highest-priority tag among a
// deal's events wins.
var tagPriority = map[string]int{
	models.TagTermLoanB: 4,
	models.TagHYBond:    3,
	models.TagBridge:    2,
	models.TagIGBond:    1,
}

// Classification is the outcome for one event.
type Classification struct {
	MarketTag        string
	InstrumentFamily string
	InstrumentType   string
}

// Classify runs the decision tree over an event's instrument type and
// evidence. sponsorBacked breaks the tie for unrated bonds.
func Classify(instrumentType, evidence string, sponsorBacked bool) Classification {
	evidence = strings.ToLower(evidence)

	ig := igRE.MatchString(evidence)
	hy := hyRE.MatchString(evidence)
	tlb := tlbRE.MatchString(evidence)
	bridge := bridgeRE.MatchString(evidence) || instrumentType == "bridge_loan"
	rcf := rcfRE.MatchString(evidence) || instrumentType == "rcf"

	switch {
	case bridge:
		return Classification{models.TagBridge, FamilyBridge, "bridge"}
	case tlb:
		return Classification{models.TagTermLoanB, FamilyLoan, "term_loan_b"}
	case rcf:
		return Classification{models.TagOtherLoan, FamilyLoan, "rcf"}
	case bondTypes[instrumentType]:
		switch {
		case hy && !ig:
			return Classification{models.TagHYBond, FamilyBond, instrumentType}
		case ig:
			return Classification{models.TagIGBond, FamilyBond, instrumentType}
		case sponsorBacked:
			return Classification{models.TagHYBond, FamilyBond, instrumentType}
		default:
			return Classification{models.TagIGBond, FamilyBond, instrumentType}
		}
	case loanTypes[instrumentType]:
		if hy {
			return Classification{models.TagTermLoanB, FamilyLoan, "term_loan_b"}
		}
		return Classification{models.TagOtherLoan, FamilyLoan, instrumentType}
	default:
		return Classification{models.TagUnknown, FamilyUnknown, instrumentType}
	}
}

// HasTermLoanBSignal reports whether the evidence names an institutional
// term loan, which implies sponsor involvement.
func HasTermLoanBSignal(evidence string) bool {
	return tlbRE.MatchString(strings.ToLower(evidence))
}

// Stats summarizes one classification run.
type Stats struct {
	EventsClassified int `json:"events_classified"`
	DealsTagged      int `json:"deals_tagged"`
}

// Classifier tags events and deals.
type Classifier struct {
	store store.Store
}

// New returns a classifier over the given store.
func New(st store.Store) *Classifier {
	return &Classifier{store: st}
}

// Run classifies every event of every deal and rolls the market tag up.
func (c *Classifier) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	deals, err := c.store.ListDeals(ctx, store.DealFilter{})
	if err != nil {
		return stats, fmt.Errorf("list deals: %w", err)
	}

	for _, deal := range deals {
		events, err := c.store.EventsByDeal(ctx, deal.ID)
		if err != nil {
			return stats, fmt.Errorf("events for deal %s: %w", deal.DealKey, err)
		}
		if len(events) == 0 {
			continue
		}

		dealTag := deal.MarketTag
		sponsorSignal := false
		sponsorBacked := deal.IsSponsorBacked != nil && *deal.IsSponsorBacked

		for _, event := range events {
			evidence, err := c.eventEvidence(ctx, event)
			if err != nil {
				return stats, err
			}

			cls := Classify(event.InstrumentType, evidence, sponsorBacked)
			event.MarketTag = cls.MarketTag
			event.InstrumentFamily = cls.InstrumentFamily
			event.InstrumentType = cls.InstrumentType
			if err := c.store.SaveEvent(ctx, event); err != nil {
				return stats, fmt.Errorf("save classified event %s: %w", event.ID, err)
			}
			stats.EventsClassified++

			if HasTermLoanBSignal(evidence) {
				sponsorSignal = true
			}
			if dealTag == "" || dealTag == models.TagUnknown ||
				tagPriority[cls.MarketTag] > tagPriority[dealTag] {
				if cls.MarketTag != models.TagUnknown {
					dealTag = cls.MarketTag
				}
			}
		}

		changed := false
		if dealTag != deal.MarketTag {
			deal.MarketTag = dealTag
			changed = true
		}
		if sponsorSignal && deal.IsSponsorBacked == nil {
			backed := true
			deal.IsSponsorBacked = &backed
			changed = true
		}
		if changed {
			if err := c.store.SaveDeal(ctx, deal); err != nil {
				return stats, fmt.Errorf("save tagged deal %s: %w", deal.DealKey, err)
			}
			stats.DealsTagged++
		}
	}

	log.Printf("[Classifier] run complete: %d events classified, %d deals tagged",
		stats.EventsClassified, stats.DealsTagged)
	return stats, nil
}

// eventEvidence concatenates the evidence snippets of an event's source
// facts. Missing facts degrade to the event's own fields.
func (c *Classifier) eventEvidence(ctx context.Context, event *models.FinancingEvent) (string, error) {
	var parts []string
	for _, factID := range event.SourceFactIDs {
		fact, err := c.store.FactByID(ctx, factID)
		if err == store.ErrNotFound {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("load source fact %s: %w", factID, err)
		}
		parts = append(parts, fact.EvidenceSnippet)
	}
	if len(parts) == 0 {
		parts = append(parts, event.AmountRaw, event.Purpose, event.InstrumentType)
	}
	return strings.Join(parts, " "), nil
}
