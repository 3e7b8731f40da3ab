package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"

	"dealgraph/pkg/core/models"
	"dealgraph/pkg/core/patterns"
	"dealgraph/pkg/core/store"
)

// seedDeal is one well-known transaction from the seed file. Seeded
// deals give the clusterer anchors before any filings are ingested.
type seedDeal struct {
	TargetName       string  `yaml:"target_name"`
	TargetCIK        string  `yaml:"target_cik"`
	AcquirerName     string  `yaml:"acquirer_name"`
	AcquirerCIK      string  `yaml:"acquirer_cik"`
	State            string  `yaml:"state"`
	IsSponsorBacked  *bool   `yaml:"is_sponsor_backed"`
	SponsorName      string  `yaml:"sponsor_name"`
	AnnouncementDate string  `yaml:"announcement_date"`
	DealValueUSD     float64 `yaml:"deal_value_usd"`
}

type seedFile struct {
	Deals []seedDeal `yaml:"deals"`
}

// SeedDeals loads the seed file and upserts each deal by clustering
// key. Existing deals are left untouched.
func SeedDeals(ctx context.Context, st store.Store, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("pipeline: read seed file: %w", err)
	}
	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return 0, fmt.Errorf("pipeline: parse seed file %s: %w", path, err)
	}

	created := 0
	for _, sd := range file.Deals {
		deal, err := sd.toDeal()
		if err != nil {
			return created, fmt.Errorf("pipeline: seed deal %q: %w", sd.TargetName, err)
		}
		if _, err := st.DealByKey(ctx, deal.DealKey); err == nil {
			continue
		}
		if err := st.SaveDeal(ctx, deal); err != nil {
			return created, fmt.Errorf("pipeline: save seed deal %q: %w", sd.TargetName, err)
		}
		created++
	}
	log.Printf("[Pipeline] seeded %d of %d deals from %s", created, len(file.Deals), path)
	return created, nil
}

func (sd *seedDeal) toDeal() (*models.Deal, error) {
	targetNorm := patterns.NormalizePartyName(sd.TargetName)
	acquirerNorm := patterns.NormalizePartyName(sd.AcquirerName)

	key, needsReview := models.BuildDealKey(sd.AcquirerCIK, acquirerNorm, sd.TargetCIK, targetNorm)
	if key == "" {
		return nil, fmt.Errorf("no clustering key (need CIKs or both names)")
	}

	// A declared state wins: seeds are human-curated, so a name-only
	// key does not force review the way a clustered deal would.
	state := models.DealState(sd.State)
	if state == "" {
		state = models.DealOpen
		if needsReview {
			state = models.DealNeedsReview
		}
	}

	deal := &models.Deal{
		ID:                     uuid.New(),
		State:                  state,
		DealKey:                key,
		AcquirerCIK:            sd.AcquirerCIK,
		AcquirerNameRaw:        sd.AcquirerName,
		AcquirerNameDisplay:    patterns.DisplayPartyName(sd.AcquirerName),
		AcquirerNameNormalized: acquirerNorm,
		TargetCIK:              sd.TargetCIK,
		TargetNameRaw:          sd.TargetName,
		TargetNameDisplay:      patterns.DisplayPartyName(sd.TargetName),
		TargetNameNormalized:   targetNorm,
		DealValueUSD:           sd.DealValueUSD,
		IsSponsorBacked:        sd.IsSponsorBacked,
		MarketTag:              models.TagUnknown,
	}
	if sd.SponsorName != "" {
		deal.SponsorNameRaw = sd.SponsorName
		deal.SponsorNameNormalized = patterns.NormalizePartyName(sd.SponsorName)
		deal.SponsorConfidence = 1.0
	}
	if sd.AnnouncementDate != "" {
		date, err := time.Parse("2006-01-02", sd.AnnouncementDate)
		if err != nil {
			return nil, fmt.Errorf("announcement date %q: %w", sd.AnnouncementDate, err)
		}
		deal.AnnouncementDate = &date
	}
	return deal, nil
}
