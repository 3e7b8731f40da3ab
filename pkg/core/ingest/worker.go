// Package ingest pulls M&A filings from SEC EDGAR and persists them
// together with their exhibits, extracted atomic facts and review
// alerts. It never creates deals; clustering owns that.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"time"

	"github.com/google/uuid"

	"dealgraph/pkg/core/edgar"
	"dealgraph/pkg/core/extract"
	"dealgraph/pkg/core/models"
	"dealgraph/pkg/core/patterns"
	"dealgraph/pkg/core/store"
)

// MAFormTypes are the form types worth scanning for deal activity.
var MAFormTypes = []string{
	"8-K", "8-K/A",
	"S-4", "S-4/A",
	"DEFM14A", "DEFA14A",
	"SC 14D9", "SC 14D9/A",
	"SC TO-T", "SC TO-T/A",
}

// unparsedFieldsNeeded lists what a reviewer must supply for a
// material exhibit the pipeline could not read.
var unparsedFieldsNeeded = []string{
	"facility_type", "amount", "participants", "roles", "purpose",
}

// Stats summarizes one ingest run.
type Stats struct {
	FilingsIngested int `json:"filings_ingested"`
	FilingsSkipped  int `json:"filings_skipped"`
	ExhibitsFetched int `json:"exhibits_fetched"`
	ExhibitsFailed  int `json:"exhibits_failed"`
	FactsExtracted  int `json:"facts_extracted"`
	AlertsRaised    int `json:"alerts_raised"`
}

// Worker fetches filings through the EDGAR client and writes them to
// the store.
type Worker struct {
	client *edgar.Client
	store  store.Store
}

// NewWorker builds an ingest worker.
func NewWorker(client *edgar.Client, st store.Store) *Worker {
	return &Worker{client: client, store: st}
}

// IngestCompany ingests all M&A-relevant filings for one CIK within
// the date range. A failed filing is logged and skipped so one bad
// document cannot sink the whole run.
func (w *Worker) IngestCompany(ctx context.Context, cik, fromDate, toDate string) (*Stats, error) {
	headers, err := w.client.FetchFilings(ctx, cik, MAFormTypes, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("ingest: list filings for CIK %s: %w", cik, err)
	}

	stats := &Stats{}
	for i := range headers {
		if err := w.IngestFiling(ctx, &headers[i], stats); err != nil {
			log.Printf("[Ingest] filing %s failed: %v", headers[i].AccessionNumber, err)
		}
	}
	log.Printf("[Ingest] CIK %s: %d ingested, %d skipped, %d facts, %d alerts",
		cik, stats.FilingsIngested, stats.FilingsSkipped, stats.FactsExtracted, stats.AlertsRaised)
	return stats, nil
}

// IngestFiling fetches one filing, its exhibits and extracted facts,
// then persists everything and marks the filing processed. Filings
// already in the store are skipped by accession number.
func (w *Worker) IngestFiling(ctx context.Context, header *edgar.FilingHeader, stats *Stats) error {
	if _, err := w.store.FilingByAccession(ctx, header.AccessionNumber); err == nil {
		stats.FilingsSkipped++
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("ingest: lookup %s: %w", header.AccessionNumber, err)
	}

	body, err := w.client.FetchDocument(ctx, header.CIK, header.AccessionNumber, header.PrimaryDocument)
	if err != nil {
		return fmt.Errorf("ingest: fetch primary document: %w", err)
	}

	filing := &models.Filing{
		ID:              uuid.New(),
		AccessionNumber: header.AccessionNumber,
		CIK:             header.CIK,
		FormType:        header.FormType,
		CompanyName:     header.CompanyName,
		FilingURL:       w.client.DocumentURL(header.CIK, header.AccessionNumber, header.PrimaryDocument),
		RawHTML:         string(body),
	}
	if date, err := time.Parse("2006-01-02", header.FilingDate); err == nil {
		filing.FilingDate = date
	}

	alerts := w.fetchExhibits(ctx, filing, stats)

	result := extract.FromFiling(filing)
	alerts = append(alerts, result.Alerts...)

	if err := w.store.SaveFiling(ctx, filing); err != nil {
		return fmt.Errorf("ingest: save filing %s: %w", filing.AccessionNumber, err)
	}
	if err := w.store.SaveFacts(ctx, result.Facts); err != nil {
		return fmt.Errorf("ingest: save facts for %s: %w", filing.AccessionNumber, err)
	}
	for _, alert := range alerts {
		if err := w.store.SaveAlert(ctx, alert); err != nil {
			return fmt.Errorf("ingest: save alert: %w", err)
		}
	}
	if err := w.store.MarkFilingProcessed(ctx, filing.ID); err != nil {
		return fmt.Errorf("ingest: mark processed: %w", err)
	}

	stats.FilingsIngested++
	stats.FactsExtracted += len(result.Facts)
	stats.AlertsRaised += len(alerts)
	return nil
}

// fetchExhibits resolves the filing index, downloads every readable
// exhibit, and raises an alert for each material exhibit that could
// not be parsed (PDFs and download failures).
func (w *Worker) fetchExhibits(ctx context.Context, filing *models.Filing, stats *Stats) []*models.Alert {
	indexHTML, err := w.client.FetchIndex(ctx, filing.CIK, filing.AccessionNumber)
	if err != nil {
		log.Printf("[Ingest] index for %s unavailable: %v", filing.AccessionNumber, err)
		return nil
	}
	refs, err := w.client.ParseIndex(indexHTML, filing.CIK, filing.AccessionNumber)
	if err != nil {
		log.Printf("[Ingest] index for %s unparseable: %v", filing.AccessionNumber, err)
		return nil
	}

	var alerts []*models.Alert
	for _, ref := range refs {
		exhibit := &models.Exhibit{
			ID:          uuid.New(),
			FilingID:    filing.ID,
			ExhibitType: ref.ExhibitType,
			Description: ref.Description,
			Filename:    ref.Filename,
			URL:         ref.URL,
			IsPDF:       ref.IsPDF,
			IsMaterial:  patterns.IsMaterialExhibit(ref.Description),
		}

		if ref.IsPDF {
			exhibit.ExtractionQuality = "failed"
		} else if body, err := w.client.Get(ctx, ref.URL); err != nil || len(body) == 0 {
			exhibit.ExtractionQuality = "failed"
		} else {
			exhibit.RawContent = string(body)
			exhibit.ExtractionQuality = "good"
			stats.ExhibitsFetched++
		}

		if exhibit.ExtractionQuality == "failed" {
			stats.ExhibitsFailed++
			if exhibit.IsMaterial {
				alerts = append(alerts, unparsedMaterialAlert(filing, exhibit))
			}
		}

		filing.Exhibits = append(filing.Exhibits, exhibit)
	}
	return alerts
}

func unparsedMaterialAlert(filing *models.Filing, exhibit *models.Exhibit) *models.Alert {
	alert := models.NewAlert(models.AlertUnparsedMaterialExhibit,
		fmt.Sprintf("Unparsed material exhibit: %s", exhibit.ExhibitType),
		fmt.Sprintf("Exhibit %q (%s) in filing %s looks financing-material but could not be parsed.",
			exhibit.Description, path.Base(exhibit.Filename), filing.AccessionNumber))
	alert.FilingID = &filing.ID
	alert.ExhibitID = &exhibit.ID
	alert.ExhibitLink = exhibit.URL
	alert.FieldsNeeded = unparsedFieldsNeeded
	return alert
}
