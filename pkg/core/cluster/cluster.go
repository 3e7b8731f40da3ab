// Package cluster groups atomic facts into deals.
//
// Clustering is the only stage allowed to create deals. It anchors on
// target-role party facts: a target mention plus an acquirer mention from
// the same exhibit (or, failing that, the same filing) yields a deal key,
// and the key either resolves to an existing deal or creates a CANDIDATE.
// Acquirer-only facts attach to existing deals but never create one.
package cluster

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"dealgraph/pkg/core/models"
	"dealgraph/pkg/core/patterns"
	"dealgraph/pkg/core/store"
)

// mergeThreshold is the fuzzy target-name score above which two open
// deals are treated as duplicates.
const mergeThreshold = 85

// Stats summarizes one clustering run.
type Stats struct {
	DealsCreated      int `json:"deals_created"`
	FactsAttached     int `json:"facts_attached"`
	SecondaryAttached int `json:"secondary_attached"`
	AlertsRaised      int `json:"alerts_raised"`
	DealsMerged       int `json:"deals_merged"`
	Skipped           int `json:"skipped"`
}

// Clusterer assigns facts to deals.
type Clusterer struct {
	store store.Store
}

// New returns a clusterer over the given store.
func New(st store.Store) *Clusterer {
	return &Clusterer{store: st}
}

// Run executes the full clustering sequence: the primary party pass,
// the secondary enrichment pass, then the duplicate merge scan.
func (c *Clusterer) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	if err := c.primaryPass(ctx, stats); err != nil {
		return stats, err
	}
	if err := c.secondaryPass(ctx, stats); err != nil {
		return stats, err
	}
	if err := c.MergeScan(ctx, stats); err != nil {
		return stats, err
	}
	log.Printf("[Clusterer] run complete: %d deals created, %d facts attached, %d enriched, %d merged, %d alerts",
		stats.DealsCreated, stats.FactsAttached, stats.SecondaryAttached, stats.DealsMerged, stats.AlertsRaised)
	return stats, nil
}

// partyFact pairs a party fact with its decoded payload and canonical role.
type partyFact struct {
	fact    *models.AtomicFact
	payload *models.PartyPayload
	role    string
}

func locationKey(fact *models.AtomicFact) string {
	if fact.ExhibitID != nil {
		return "ex:" + fact.ExhibitID.String()
	}
	if fact.FilingID != nil {
		return "f:" + fact.FilingID.String()
	}
	return ""
}

func filingKey(fact *models.AtomicFact) string {
	if fact.FilingID != nil {
		return fact.FilingID.String()
	}
	return ""
}

// primaryPass walks unassigned party facts and creates or extends deals.
func (c *Clusterer) primaryPass(ctx context.Context, stats *Stats) error {
	facts, err := c.store.UnassignedFacts(ctx, models.FactPartyDefinition, models.FactPartyMention)
	if err != nil {
		return fmt.Errorf("load party facts: %w", err)
	}

	var parties []partyFact
	byExhibit := map[string][]int{}
	byFiling := map[string][]int{}
	for _, fact := range facts {
		payload, err := fact.Party()
		if err != nil {
			log.Printf("[Clusterer] skipping malformed party fact %s: %v", fact.ID, err)
			stats.Skipped++
			continue
		}
		pf := partyFact{fact: fact, payload: payload, role: patterns.MapRoleLabel(payload.RoleLabel)}
		idx := len(parties)
		parties = append(parties, pf)
		if key := locationKey(fact); key != "" {
			byExhibit[key] = append(byExhibit[key], idx)
		}
		if key := filingKey(fact); key != "" {
			byFiling[key] = append(byFiling[key], idx)
		}
	}

	attached := map[string]bool{}

	for _, target := range parties {
		if target.role != patterns.RoleTarget {
			continue
		}
		acquirer, ok := c.siblingAcquirer(parties, byExhibit, byFiling, target)
		if !ok {
			// A lone target mention cannot anchor a deal.
			stats.Skipped++
			continue
		}
		if err := c.anchorDeal(ctx, target, acquirer, stats, attached); err != nil {
			return err
		}
	}

	// Acquirer-only facts attach to deals that already exist.
	for _, party := range parties {
		if party.role != patterns.RoleAcquirer || attached[party.fact.ID.String()] {
			continue
		}
		if err := c.attachAcquirerOnly(ctx, party, stats); err != nil {
			return err
		}
	}

	return nil
}

func (c *Clusterer) siblingAcquirer(parties []partyFact, byExhibit, byFiling map[string][]int, target partyFact) (partyFact, bool) {
	scan := func(indices []int) (partyFact, bool) {
		for _, i := range indices {
			if parties[i].role == patterns.RoleAcquirer && parties[i].fact.ID != target.fact.ID {
				return parties[i], true
			}
		}
		return partyFact{}, false
	}
	if key := locationKey(target.fact); key != "" {
		if acquirer, ok := scan(byExhibit[key]); ok {
			return acquirer, true
		}
	}
	if key := filingKey(target.fact); key != "" {
		if acquirer, ok := scan(byFiling[key]); ok {
			return acquirer, true
		}
	}
	return partyFact{}, false
}

func (c *Clusterer) anchorDeal(ctx context.Context, target, acquirer partyFact, stats *Stats, attached map[string]bool) error {
	key, needsReview := models.BuildDealKey(
		acquirer.payload.CIK, acquirer.payload.PartyNameNormalized,
		target.payload.CIK, target.payload.PartyNameNormalized,
	)
	if key == "" {
		stats.Skipped++
		return nil
	}

	deal, err := c.store.DealByKey(ctx, key)
	switch {
	case err == nil:
		if deal.State == models.DealLocked {
			alert := models.NewAlert(models.AlertLowConfidenceMatch,
				fmt.Sprintf("New fact for locked deal: %s", deal.TargetNameDisplay),
				"A new party fact matched a locked deal and was held for review.")
			alert.DealID = &deal.ID
			alert.FilingID = target.fact.FilingID
			alert.ExhibitID = target.fact.ExhibitID
			if err := c.store.SaveAlert(ctx, alert); err != nil {
				return fmt.Errorf("save locked-deal alert: %w", err)
			}
			stats.AlertsRaised++
			return nil
		}
	case err == store.ErrNotFound:
		state := models.DealCandidate
		if needsReview {
			state = models.DealNeedsReview
		}
		deal = &models.Deal{
			State:                  state,
			AcquirerCIK:            acquirer.payload.CIK,
			AcquirerNameRaw:        acquirer.payload.PartyNameRaw,
			AcquirerNameDisplay:    acquirer.payload.PartyNameDisplay,
			AcquirerNameNormalized: acquirer.payload.PartyNameNormalized,
			TargetCIK:              target.payload.CIK,
			TargetNameRaw:          target.payload.PartyNameRaw,
			TargetNameDisplay:      target.payload.PartyNameDisplay,
			TargetNameNormalized:   target.payload.PartyNameNormalized,
			DealKey:                key,
		}
		if err := c.store.SaveDeal(ctx, deal); err != nil {
			return fmt.Errorf("create deal %s: %w", key, err)
		}
		stats.DealsCreated++
		log.Printf("[Clusterer] created deal %s (%s)", key, state)
	default:
		return fmt.Errorf("look up deal %s: %w", key, err)
	}

	for _, pf := range []partyFact{target, acquirer} {
		if err := c.attach(ctx, pf.fact, deal.ID, stats); err != nil {
			return err
		}
		attached[pf.fact.ID.String()] = true
	}
	return nil
}

func (c *Clusterer) attachAcquirerOnly(ctx context.Context, party partyFact, stats *Stats) error {
	if party.payload.PartyNameNormalized == "" {
		return nil
	}
	deals, err := c.store.ListDeals(ctx, store.DealFilter{Query: party.payload.PartyNameNormalized})
	if err != nil {
		return fmt.Errorf("match acquirer fact: %w", err)
	}
	for _, deal := range deals {
		if deal.State == models.DealLocked {
			continue
		}
		if deal.AcquirerNameNormalized == party.payload.PartyNameNormalized {
			return c.attach(ctx, party.fact, deal.ID, stats)
		}
	}
	return nil
}

func (c *Clusterer) attach(ctx context.Context, fact *models.AtomicFact, dealID uuid.UUID, stats *Stats) error {
	err := c.store.AssignFactDeal(ctx, fact.ID, dealID, false)
	switch err {
	case nil:
		stats.FactsAttached++
		return nil
	case store.ErrDealAssigned:
		// Already claimed by an earlier run.
		return nil
	default:
		return fmt.Errorf("attach fact %s: %w", fact.ID, err)
	}
}

// secondaryPass routes sponsor, date, advisor and financing facts to the
// deal their sibling party facts landed on.
func (c *Clusterer) secondaryPass(ctx context.Context, stats *Stats) error {
	facts, err := c.store.UnassignedFacts(ctx,
		models.FactSponsorMention, models.FactDealDate,
		models.FactAdvisorMention, models.FactFinancingMention)
	if err != nil {
		return fmt.Errorf("load secondary facts: %w", err)
	}

	for _, fact := range facts {
		deal, ok, err := c.dealForSibling(ctx, fact)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		if err := c.attach(ctx, fact, deal.ID, stats); err != nil {
			return err
		}
		stats.SecondaryAttached++

		switch fact.FactType {
		case models.FactSponsorMention:
			if err := c.applySponsor(ctx, deal, fact); err != nil {
				return err
			}
		case models.FactDealDate:
			if err := c.applyDate(ctx, deal, fact); err != nil {
				return err
			}
		}
	}
	return nil
}

// dealForSibling finds the deal of an assigned party fact sharing the
// fact's exhibit, falling back to the whole filing.
func (c *Clusterer) dealForSibling(ctx context.Context, fact *models.AtomicFact) (*models.Deal, bool, error) {
	if fact.FilingID == nil {
		return nil, false, nil
	}
	siblings, err := c.store.FactsByFiling(ctx, *fact.FilingID)
	if err != nil {
		return nil, false, fmt.Errorf("load sibling facts: %w", err)
	}

	isParty := func(f *models.AtomicFact) bool {
		return f.FactType == models.FactPartyDefinition || f.FactType == models.FactPartyMention
	}

	// Same exhibit first.
	if fact.ExhibitID != nil {
		for _, sib := range siblings {
			if isParty(sib) && sib.DealID != nil && sib.ExhibitID != nil && *sib.ExhibitID == *fact.ExhibitID {
				return c.dealByID(ctx, *sib.DealID)
			}
		}
	}
	for _, sib := range siblings {
		if isParty(sib) && sib.DealID != nil {
			return c.dealByID(ctx, *sib.DealID)
		}
	}
	return nil, false, nil
}

func (c *Clusterer) dealByID(ctx context.Context, id uuid.UUID) (*models.Deal, bool, error) {
	deal, err := c.store.DealByID(ctx, id)
	if err == store.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load deal: %w", err)
	}
	return deal, true, nil
}

// applySponsor updates the deal's sponsor attribution when the new fact
// is strictly more confident than what the deal already carries.
func (c *Clusterer) applySponsor(ctx context.Context, deal *models.Deal, fact *models.AtomicFact) error {
	payload, err := fact.Sponsor()
	if err != nil {
		log.Printf("[Clusterer] malformed sponsor fact %s: %v", fact.ID, err)
		return nil
	}
	if payload.IsNegated {
		return nil
	}
	if deal.SponsorNameNormalized != "" && fact.Confidence <= deal.SponsorConfidence {
		return nil
	}

	backed := true
	deal.IsSponsorBacked = &backed
	deal.SponsorNameRaw = payload.SponsorNameRaw
	deal.SponsorNameNormalized = payload.SponsorNameNormalized
	deal.SponsorConfidence = fact.Confidence
	deal.SponsorEvidence = &models.SponsorEvidence{
		FactID:  fact.ID,
		Snippet: fact.EvidenceSnippet,
		Pattern: payload.SourcePattern,
	}
	deal.UnresolvedSponsorEntity = !patterns.IsKnownSponsor(payload.SponsorNameNormalized)

	if err := c.store.SaveDeal(ctx, deal); err != nil {
		return fmt.Errorf("update deal sponsor: %w", err)
	}
	return nil
}

// applyDate fills the deal's date slot named by the fact, never
// overwriting a slot already populated.
func (c *Clusterer) applyDate(ctx context.Context, deal *models.Deal, fact *models.AtomicFact) error {
	payload, err := fact.Date()
	if err != nil {
		log.Printf("[Clusterer] malformed date fact %s: %v", fact.ID, err)
		return nil
	}
	value, err := parseDate(payload.DateValue)
	if err != nil {
		log.Printf("[Clusterer] unparseable date %q on fact %s", payload.DateValue, fact.ID)
		return nil
	}

	var slot **time.Time
	switch payload.DateType {
	case "agreement_date":
		slot = &deal.AgreementDate
	case "announcement_date":
		slot = &deal.AnnouncementDate
	case "expected_close":
		slot = &deal.ExpectedCloseDate
	case "actual_close":
		slot = &deal.ActualCloseDate
	default:
		return nil
	}
	if *slot != nil {
		return nil
	}
	*slot = &value

	if err := c.store.SaveDeal(ctx, deal); err != nil {
		return fmt.Errorf("update deal date: %w", err)
	}
	return nil
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

// MergeScan finds duplicate open deals by fuzzy target-name match and
// merges each pair, leaving a resolved audit alert behind.
func (c *Clusterer) MergeScan(ctx context.Context, stats *Stats) error {
	deals, err := c.store.ListDeals(ctx, store.DealFilter{
		States: []models.DealState{models.DealCandidate, models.DealOpen},
	})
	if err != nil {
		return fmt.Errorf("list deals for merge scan: %w", err)
	}

	merged := map[string]bool{}
	for i := 0; i < len(deals); i++ {
		for j := i + 1; j < len(deals); j++ {
			a, b := deals[i], deals[j]
			if merged[a.ID.String()] || merged[b.ID.String()] {
				continue
			}
			if a.TargetNameNormalized == "" || b.TargetNameNormalized == "" {
				continue
			}
			if fuzzy.Ratio(a.TargetNameNormalized, b.TargetNameNormalized) <= mergeThreshold {
				continue
			}

			survivor, source := pickSurvivor(a, b)
			if err := c.merge(ctx, survivor, source); err != nil {
				return err
			}
			merged[source.ID.String()] = true
			stats.DealsMerged++
			stats.AlertsRaised++
		}
	}
	return nil
}

// pickSurvivor keeps the deal with the stronger key tier, falling back
// to the older deal.
func pickSurvivor(a, b *models.Deal) (survivor, source *models.Deal) {
	aCIK := len(a.DealKey) > 4 && a.DealKey[:4] == "cik:"
	bCIK := len(b.DealKey) > 4 && b.DealKey[:4] == "cik:"
	switch {
	case aCIK && !bCIK:
		return a, b
	case bCIK && !aCIK:
		return b, a
	case a.CreatedAt.Before(b.CreatedAt):
		return a, b
	default:
		return b, a
	}
}

func (c *Clusterer) merge(ctx context.Context, survivor, source *models.Deal) error {
	facts, err := c.store.FactsByDeal(ctx, source.ID)
	if err != nil {
		return fmt.Errorf("load facts for merge: %w", err)
	}
	for _, fact := range facts {
		if err := c.store.AssignFactDeal(ctx, fact.ID, survivor.ID, true); err != nil {
			return fmt.Errorf("move fact %s: %w", fact.ID, err)
		}
	}
	if err := c.store.ReassignEvents(ctx, source.ID, survivor.ID); err != nil {
		return fmt.Errorf("move events: %w", err)
	}

	now := time.Now().UTC()
	alert := models.NewAlert(models.AlertDealMergeCandidate,
		fmt.Sprintf("Merged duplicate deal: %s", source.TargetNameDisplay),
		fmt.Sprintf("Deal %s duplicated %s by target-name match.", source.DealKey, survivor.DealKey))
	alert.DealID = &survivor.ID
	alert.IsResolved = true
	alert.ResolvedAt = &now
	alert.ResolvedBy = "system"
	alert.ResolutionNotes = fmt.Sprintf("Auto-merged. Source deal key: %s", source.DealKey)
	if err := c.store.SaveAlert(ctx, alert); err != nil {
		return fmt.Errorf("save merge alert: %w", err)
	}

	if err := c.store.DeleteDeal(ctx, source.ID); err != nil {
		return fmt.Errorf("delete merged deal: %w", err)
	}
	log.Printf("[Clusterer] merged deal %s into %s", source.DealKey, survivor.DealKey)
	return nil
}
