package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"dealgraph/pkg/core/models"
)

// MemoryStore is a mutex-guarded in-memory Store used by tests and
// offline pipeline runs.
type MemoryStore struct {
	mu sync.RWMutex

	filings map[uuid.UUID]*models.Filing
	facts   map[uuid.UUID]*models.AtomicFact
	deals   map[uuid.UUID]*models.Deal
	events  map[uuid.UUID]*models.FinancingEvent
	alerts  map[uuid.UUID]*models.Alert
	inputs  map[uuid.UUID]*models.ManualInput
	banks   map[uuid.UUID]*models.Bank
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		filings: map[uuid.UUID]*models.Filing{},
		facts:   map[uuid.UUID]*models.AtomicFact{},
		deals:   map[uuid.UUID]*models.Deal{},
		events:  map[uuid.UUID]*models.FinancingEvent{},
		alerts:  map[uuid.UUID]*models.Alert{},
		inputs:  map[uuid.UUID]*models.ManualInput{},
		banks:   map[uuid.UUID]*models.Bank{},
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) SaveFiling(_ context.Context, filing *models.Filing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if filing.ID == uuid.Nil {
		filing.ID = uuid.New()
	}
	if filing.CreatedAt.IsZero() {
		filing.CreatedAt = time.Now().UTC()
	}
	filing.UpdatedAt = time.Now().UTC()
	s.filings[filing.ID] = filing
	return nil
}

func (s *MemoryStore) FilingByID(_ context.Context, id uuid.UUID) (*models.Filing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	filing, ok := s.filings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return filing, nil
}

func (s *MemoryStore) FilingByAccession(_ context.Context, accessionNumber string) (*models.Filing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, filing := range s.filings {
		if filing.AccessionNumber == accessionNumber {
			return filing, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListFilings(_ context.Context, filter FilingFilter) ([]*models.Filing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Filing
	for _, filing := range s.filings {
		if filter.CIK != "" && filing.CIK != filter.CIK {
			continue
		}
		if filter.FormType != "" && filing.FormType != filter.FormType {
			continue
		}
		if filter.Processed != nil && filing.Processed != *filter.Processed {
			continue
		}
		out = append(out, filing)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilingDate.After(out[j].FilingDate) })
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (s *MemoryStore) MarkFilingProcessed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	filing, ok := s.filings[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	filing.Processed = true
	filing.ProcessedAt = &now
	return nil
}

func (s *MemoryStore) SaveFacts(_ context.Context, facts []*models.AtomicFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, fact := range facts {
		if fact.ID == uuid.Nil {
			fact.ID = uuid.New()
		}
		if fact.CreatedAt.IsZero() {
			fact.CreatedAt = time.Now().UTC()
		}
		s.facts[fact.ID] = fact
	}
	return nil
}

func (s *MemoryStore) FactByID(_ context.Context, id uuid.UUID) (*models.AtomicFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fact, ok := s.facts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return fact, nil
}

func (s *MemoryStore) FactsByFiling(_ context.Context, filingID uuid.UUID) ([]*models.AtomicFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.AtomicFact
	for _, fact := range s.facts {
		if fact.FilingID != nil && *fact.FilingID == filingID {
			out = append(out, fact)
		}
	}
	sortFacts(out)
	return out, nil
}

func (s *MemoryStore) FactsByDeal(_ context.Context, dealID uuid.UUID) ([]*models.AtomicFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.AtomicFact
	for _, fact := range s.facts {
		if fact.DealID != nil && *fact.DealID == dealID {
			out = append(out, fact)
		}
	}
	sortFacts(out)
	return out, nil
}

func (s *MemoryStore) UnassignedFacts(_ context.Context, types ...models.FactType) ([]*models.AtomicFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	typeSet := map[models.FactType]bool{}
	for _, t := range types {
		typeSet[t] = true
	}

	var out []*models.AtomicFact
	for _, fact := range s.facts {
		if fact.DealID != nil {
			continue
		}
		if len(typeSet) > 0 && !typeSet[fact.FactType] {
			continue
		}
		out = append(out, fact)
	}
	sortFacts(out)
	return out, nil
}

func (s *MemoryStore) AssignFactDeal(_ context.Context, factID, dealID uuid.UUID, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fact, ok := s.facts[factID]
	if !ok {
		return ErrNotFound
	}
	if fact.DealID != nil && *fact.DealID != dealID && !force {
		return ErrDealAssigned
	}
	fact.DealID = &dealID
	return nil
}

func (s *MemoryStore) SaveDeal(_ context.Context, deal *models.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if deal.ID == uuid.Nil {
		deal.ID = uuid.New()
	}
	if deal.CreatedAt.IsZero() {
		deal.CreatedAt = time.Now().UTC()
	}
	deal.UpdatedAt = time.Now().UTC()
	s.deals[deal.ID] = deal
	return nil
}

func (s *MemoryStore) DealByID(_ context.Context, id uuid.UUID) (*models.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	deal, ok := s.deals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return deal, nil
}

func (s *MemoryStore) DealByKey(_ context.Context, dealKey string) (*models.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, deal := range s.deals {
		if deal.DealKey == dealKey {
			return deal, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListDeals(_ context.Context, filter DealFilter) ([]*models.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stateSet := map[models.DealState]bool{}
	for _, st := range filter.States {
		stateSet[st] = true
	}

	query := strings.ToLower(filter.Query)

	var out []*models.Deal
	for _, deal := range s.deals {
		if len(stateSet) > 0 && !stateSet[deal.State] {
			continue
		}
		if filter.MarketTag != "" && deal.MarketTag != filter.MarketTag {
			continue
		}
		if filter.IsSponsorBacked != nil {
			if deal.IsSponsorBacked == nil || *deal.IsSponsorBacked != *filter.IsSponsorBacked {
				continue
			}
		}
		if query != "" {
			haystack := strings.ToLower(deal.TargetNameDisplay + " " + deal.TargetNameNormalized +
				" " + deal.AcquirerNameDisplay + " " + deal.AcquirerNameNormalized)
			if !strings.Contains(haystack, query) {
				continue
			}
		}
		out = append(out, deal)
	}

	// Most recently announced first; undated deals last.
	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].AnnouncementDate, out[j].AnnouncementDate
		switch {
		case di == nil && dj == nil:
			return out[i].CreatedAt.After(out[j].CreatedAt)
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return di.After(*dj)
		}
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (s *MemoryStore) DeleteDeal(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deals[id]; !ok {
		return ErrNotFound
	}
	delete(s.deals, id)
	return nil
}

func (s *MemoryStore) SaveEvent(_ context.Context, event *models.FinancingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	s.events[event.ID] = event
	return nil
}

func (s *MemoryStore) EventByID(_ context.Context, id uuid.UUID) (*models.FinancingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return event, nil
}

func (s *MemoryStore) EventsByDeal(_ context.Context, dealID uuid.UUID) ([]*models.FinancingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.FinancingEvent
	for _, event := range s.events {
		if event.DealID == dealID {
			out = append(out, event)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListEvents(_ context.Context) ([]*models.FinancingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.FinancingEvent
	for _, event := range s.events {
		out = append(out, event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ReassignEvents(_ context.Context, fromDeal, toDeal uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range s.events {
		if event.DealID == fromDeal {
			event.DealID = toDeal
		}
	}
	return nil
}

func (s *MemoryStore) SaveAlert(_ context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	s.alerts[alert.ID] = alert
	return nil
}

func (s *MemoryStore) AlertByID(_ context.Context, id uuid.UUID) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alert, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return alert, nil
}

func (s *MemoryStore) ListAlerts(_ context.Context, filter AlertFilter) ([]*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Alert
	for _, alert := range s.alerts {
		if filter.AlertType != "" && alert.AlertType != filter.AlertType {
			continue
		}
		if filter.Resolved != nil && alert.IsResolved != *filter.Resolved {
			continue
		}
		if filter.FilingID != nil && (alert.FilingID == nil || *alert.FilingID != *filter.FilingID) {
			continue
		}
		if filter.DealID != nil && (alert.DealID == nil || *alert.DealID != *filter.DealID) {
			continue
		}
		out = append(out, alert)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (s *MemoryStore) SaveManualInput(_ context.Context, input *models.ManualInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if input.ID == uuid.Nil {
		input.ID = uuid.New()
	}
	if input.CreatedAt.IsZero() {
		input.CreatedAt = time.Now().UTC()
	}
	s.inputs[input.ID] = input
	return nil
}

func (s *MemoryStore) SaveBank(_ context.Context, bank *models.Bank) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bank.ID == uuid.Nil {
		bank.ID = uuid.New()
	}
	if bank.CreatedAt.IsZero() {
		bank.CreatedAt = time.Now().UTC()
	}
	s.banks[bank.ID] = bank
	return nil
}

func (s *MemoryStore) ListBanks(_ context.Context) ([]*models.Bank, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Bank
	for _, bank := range s.banks {
		out = append(out, bank)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NameNormalized < out[j].NameNormalized })
	return out, nil
}

func (s *MemoryStore) BankByNormalizedName(_ context.Context, normalized string) (*models.Bank, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, bank := range s.banks {
		if bank.NameNormalized == normalized {
			return bank, nil
		}
		for _, alias := range bank.Aliases {
			if alias.AliasNormalized == normalized {
				return bank, nil
			}
		}
	}
	return nil, ErrNotFound
}

func sortFacts(facts []*models.AtomicFact) {
	sort.Slice(facts, func(i, j int) bool {
		if !facts[i].CreatedAt.Equal(facts[j].CreatedAt) {
			return facts[i].CreatedAt.Before(facts[j].CreatedAt)
		}
		return facts[i].ID.String() < facts[j].ID.String()
	})
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
