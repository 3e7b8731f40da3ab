// Package banks resolves free-text bank names against the bank
// reference table: exact, then alias, then fuzzy.
package banks

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"dealgraph/pkg/core/models"
	"dealgraph/pkg/core/store"
)

// DefaultFuzzyMin is the minimum fuzzy score (0-100) accepted as a match.
const DefaultFuzzyMin = 92

// suffixes stripped from the tail of a name before matching,
// longest-first within each alternation.
var nameSuffixes = []string{
	", n.a.", " n.a.", ", na", " na",
	", inc.", " inc.", ", inc", " inc",
	", llc", " llc", ", ltd", " ltd",
	" plc", " ag", " sa", " nv", " bv",
	" securities", " capital", " bank",
	"& co.", "& co", " & company",
}

// Normalize lowercases a bank name, strips corporate and divisional
// suffixes and drops commas and periods so variants of one institution
// share a key ("J.P. Morgan Securities LLC" and "JP Morgan" collide).
func Normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	for changed := true; changed; {
		changed = false
		for _, suffix := range nameSuffixes {
			if strings.HasSuffix(n, suffix) {
				n = strings.TrimSpace(strings.TrimSuffix(n, suffix))
				changed = true
			}
		}
	}
	n = strings.NewReplacer(",", "", ".", "").Replace(n)
	return strings.TrimSpace(n)
}

// Options tunes the resolver.
type Options struct {
	// AutoCreate inserts a new bank row for names with no match instead
	// of leaving them unresolved.
	AutoCreate bool
	// FuzzyMin overrides DefaultFuzzyMin when positive.
	FuzzyMin int
}

// Match is one resolution outcome.
type Match struct {
	Bank   *models.Bank
	Score  float64
	Method string // "exact", "alias", "fuzzy", "created"
}

// Resolver matches raw bank names to bank rows. Lookups are memoized
// for the life of the resolver.
type Resolver struct {
	store store.Store
	opts  Options

	mu     sync.Mutex
	loaded bool
	banks  []*models.Bank
	cache  map[string]*Match
}

// NewResolver returns a resolver over the given store.
func NewResolver(st store.Store, opts Options) *Resolver {
	if opts.FuzzyMin <= 0 {
		opts.FuzzyMin = DefaultFuzzyMin
	}
	return &Resolver{store: st, opts: opts, cache: map[string]*Match{}}
}

func (r *Resolver) load(ctx context.Context) error {
	if r.loaded {
		return nil
	}
	banks, err := r.store.ListBanks(ctx)
	if err != nil {
		return fmt.Errorf("load banks: %w", err)
	}
	r.banks = banks
	r.loaded = true
	return nil
}

// Resolve matches one raw name. A nil match with a nil error means the
// name stayed unresolved.
func (r *Resolver) Resolve(ctx context.Context, rawName string) (*Match, error) {
	normalized := Normalize(rawName)
	if normalized == "" {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if match, ok := r.cache[normalized]; ok {
		return match, nil
	}
	if err := r.load(ctx); err != nil {
		return nil, err
	}

	match, err := r.resolveLocked(ctx, rawName, normalized)
	if err != nil {
		return nil, err
	}
	r.cache[normalized] = match
	return match, nil
}

func (r *Resolver) resolveLocked(ctx context.Context, rawName, normalized string) (*Match, error) {
	for _, bank := range r.banks {
		if bank.NameNormalized == normalized {
			return &Match{Bank: bank, Score: 1.0, Method: "exact"}, nil
		}
	}
	for _, bank := range r.banks {
		for _, alias := range bank.Aliases {
			if alias.AliasNormalized == normalized {
				return &Match{Bank: bank, Score: 0.95, Method: "alias"}, nil
			}
		}
	}

	var best *models.Bank
	bestScore := 0
	for _, bank := range r.banks {
		candidates := []string{bank.NameNormalized}
		for _, alias := range bank.Aliases {
			candidates = append(candidates, alias.AliasNormalized)
		}
		for _, candidate := range candidates {
			if score := fuzzy.Ratio(normalized, candidate); score > bestScore {
				best, bestScore = bank, score
			}
		}
	}
	if best != nil && bestScore >= r.opts.FuzzyMin {
		return &Match{Bank: best, Score: float64(bestScore) / 100, Method: "fuzzy"}, nil
	}

	if !r.opts.AutoCreate {
		return nil, nil
	}
	bank := &models.Bank{
		Name:           rawName,
		NameNormalized: normalized,
		DisplayName:    rawName,
	}
	if err := r.store.SaveBank(ctx, bank); err != nil {
		return nil, fmt.Errorf("auto-create bank %q: %w", rawName, err)
	}
	r.banks = append(r.banks, bank)
	return &Match{Bank: bank, Score: 1.0, Method: "created"}, nil
}

// Stats summarizes one participant resolution run.
type Stats struct {
	Resolved      int `json:"resolved"`
	Unresolved    int `json:"unresolved"`
	AlertsRaised  int `json:"alerts_raised"`
	EventsTouched int `json:"events_touched"`
}

// ResolveParticipants links every participant of every event to a bank
// row, raising one UNRESOLVED_BANK alert per distinct unresolved name.
func (r *Resolver) ResolveParticipants(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	events, err := r.store.ListEvents(ctx)
	if err != nil {
		return stats, fmt.Errorf("list events: %w", err)
	}

	alerted := map[string]bool{}
	for _, event := range events {
		touched := false
		for _, p := range event.Participants {
			if p.BankID != nil {
				continue
			}
			match, err := r.Resolve(ctx, p.BankNameRaw)
			if err != nil {
				return stats, err
			}
			if match == nil {
				stats.Unresolved++
				key := Normalize(p.BankNameRaw)
				if !alerted[key] {
					alert := models.NewAlert(models.AlertUnresolvedBank,
						fmt.Sprintf("Unresolved bank: %s", p.BankNameRaw),
						fmt.Sprintf("No bank matched %q at or above score %d.", p.BankNameRaw, r.opts.FuzzyMin))
					alert.DealID = &event.DealID
					if err := r.store.SaveAlert(ctx, alert); err != nil {
						return stats, fmt.Errorf("save unresolved-bank alert: %w", err)
					}
					alerted[key] = true
					stats.AlertsRaised++
				}
				continue
			}
			p.BankID = &match.Bank.ID
			stats.Resolved++
			touched = true
		}
		if touched {
			if err := r.store.SaveEvent(ctx, event); err != nil {
				return stats, fmt.Errorf("save resolved event %s: %w", event.ID, err)
			}
			stats.EventsTouched++
		}
	}

	log.Printf("[BankResolver] run complete: %d resolved, %d unresolved, %d alerts",
		stats.Resolved, stats.Unresolved, stats.AlertsRaised)
	return stats, nil
}
