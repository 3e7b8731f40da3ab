package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dealgraph/pkg/core/models"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore implements Store over a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an initialized pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

// Migrate applies the embedded schema. All statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// ---------------------------------------------------------------------------
// Filings
// ---------------------------------------------------------------------------

func (s *PostgresStore) SaveFiling(ctx context.Context, filing *models.Filing) error {
	if filing.ID == uuid.Nil {
		filing.ID = uuid.New()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin filing save: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO filings (
			id, accession_number, cik, form_type, filing_date, company_name,
			filing_url, processed, processed_at, raw_html, visual_text
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (accession_number) DO UPDATE SET
			processed = EXCLUDED.processed,
			processed_at = EXCLUDED.processed_at,
			raw_html = EXCLUDED.raw_html,
			visual_text = EXCLUDED.visual_text,
			updated_at = NOW()`,
		filing.ID, filing.AccessionNumber, filing.CIK, filing.FormType,
		filing.FilingDate, filing.CompanyName, filing.FilingURL,
		filing.Processed, filing.ProcessedAt, filing.RawHTML, filing.VisualText,
	)
	if err != nil {
		return fmt.Errorf("save filing %s: %w", filing.AccessionNumber, err)
	}

	for _, exhibit := range filing.Exhibits {
		if exhibit.ID == uuid.Nil {
			exhibit.ID = uuid.New()
		}
		exhibit.FilingID = filing.ID
		_, err = tx.Exec(ctx, `
			INSERT INTO exhibits (
				id, filing_id, exhibit_type, description, filename, url,
				is_pdf, is_material, processed, extraction_quality,
				raw_content, visual_text
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (id) DO UPDATE SET
				is_material = EXCLUDED.is_material,
				processed = EXCLUDED.processed,
				extraction_quality = EXCLUDED.extraction_quality,
				raw_content = EXCLUDED.raw_content,
				visual_text = EXCLUDED.visual_text`,
			exhibit.ID, exhibit.FilingID, exhibit.ExhibitType, exhibit.Description,
			exhibit.Filename, exhibit.URL, exhibit.IsPDF, exhibit.IsMaterial,
			exhibit.Processed, exhibit.ExtractionQuality,
			exhibit.RawContent, exhibit.VisualText,
		)
		if err != nil {
			return fmt.Errorf("save exhibit %s: %w", exhibit.ExhibitType, err)
		}
	}

	return tx.Commit(ctx)
}

const filingColumns = `id, accession_number, cik, form_type, filing_date, company_name,
	filing_url, processed, processed_at, raw_html, visual_text, created_at, updated_at`

func scanFiling(row pgx.Row) (*models.Filing, error) {
	var f models.Filing
	err := row.Scan(
		&f.ID, &f.AccessionNumber, &f.CIK, &f.FormType, &f.FilingDate,
		&f.CompanyName, &f.FilingURL, &f.Processed, &f.ProcessedAt,
		&f.RawHTML, &f.VisualText, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *PostgresStore) loadExhibits(ctx context.Context, filing *models.Filing) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id, filing_id, exhibit_type, description, filename, url,
			is_pdf, is_material, processed, extraction_quality,
			raw_content, visual_text, created_at
		FROM exhibits WHERE filing_id = $1 ORDER BY exhibit_type`, filing.ID)
	if err != nil {
		return fmt.Errorf("load exhibits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.Exhibit
		if err := rows.Scan(
			&e.ID, &e.FilingID, &e.ExhibitType, &e.Description, &e.Filename,
			&e.URL, &e.IsPDF, &e.IsMaterial, &e.Processed, &e.ExtractionQuality,
			&e.RawContent, &e.VisualText, &e.CreatedAt,
		); err != nil {
			return fmt.Errorf("scan exhibit: %w", err)
		}
		filing.Exhibits = append(filing.Exhibits, &e)
	}
	return rows.Err()
}

func (s *PostgresStore) FilingByID(ctx context.Context, id uuid.UUID) (*models.Filing, error) {
	filing, err := scanFiling(s.pool.QueryRow(ctx,
		`SELECT `+filingColumns+` FROM filings WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	if err := s.loadExhibits(ctx, filing); err != nil {
		return nil, err
	}
	return filing, nil
}

func (s *PostgresStore) FilingByAccession(ctx context.Context, accessionNumber string) (*models.Filing, error) {
	filing, err := scanFiling(s.pool.QueryRow(ctx,
		`SELECT `+filingColumns+` FROM filings WHERE accession_number = $1`, accessionNumber))
	if err != nil {
		return nil, notFound(err)
	}
	if err := s.loadExhibits(ctx, filing); err != nil {
		return nil, err
	}
	return filing, nil
}

func (s *PostgresStore) ListFilings(ctx context.Context, filter FilingFilter) ([]*models.Filing, error) {
	var conds []string
	var args []any

	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.CIK != "" {
		add("cik = $%d", filter.CIK)
	}
	if filter.FormType != "" {
		add("form_type = $%d", filter.FormType)
	}
	if filter.Processed != nil {
		add("processed = $%d", *filter.Processed)
	}

	query := `SELECT ` + filingColumns + ` FROM filings`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY filing_date DESC"
	query += limitOffset(&args, filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list filings: %w", err)
	}
	defer rows.Close()

	var out []*models.Filing
	for rows.Next() {
		filing, err := scanFiling(rows)
		if err != nil {
			return nil, fmt.Errorf("scan filing: %w", err)
		}
		out = append(out, filing)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkFilingProcessed(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE filings SET processed = TRUE, processed_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark filing processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Atomic facts
// ---------------------------------------------------------------------------

func (s *PostgresStore) SaveFacts(ctx context.Context, facts []*models.AtomicFact) error {
	if len(facts) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin fact save: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, fact := range facts {
		if fact.ID == uuid.Nil {
			fact.ID = uuid.New()
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO atomic_facts (
				id, fact_type, filing_id, exhibit_id, deal_id,
				evidence_snippet, evidence_start_offset, evidence_end_offset,
				source_section, extraction_method, extraction_pattern,
				confidence, payload
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			ON CONFLICT (id) DO NOTHING`,
			fact.ID, fact.FactType, fact.FilingID, fact.ExhibitID, fact.DealID,
			fact.EvidenceSnippet, fact.EvidenceStartOffset, fact.EvidenceEndOffset,
			fact.SourceSection, fact.ExtractionMethod, fact.ExtractionPattern,
			fact.Confidence, fact.Payload,
		)
		if err != nil {
			return fmt.Errorf("save fact %s: %w", fact.FactType, err)
		}
	}
	return tx.Commit(ctx)
}

const factColumns = `id, fact_type, filing_id, exhibit_id, deal_id, evidence_snippet,
	evidence_start_offset, evidence_end_offset, source_section, extraction_method,
	extraction_pattern, confidence, payload, created_at`

func scanFact(row pgx.Row) (*models.AtomicFact, error) {
	var f models.AtomicFact
	err := row.Scan(
		&f.ID, &f.FactType, &f.FilingID, &f.ExhibitID, &f.DealID,
		&f.EvidenceSnippet, &f.EvidenceStartOffset, &f.EvidenceEndOffset,
		&f.SourceSection, &f.ExtractionMethod, &f.ExtractionPattern,
		&f.Confidence, &f.Payload, &f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *PostgresStore) queryFacts(ctx context.Context, query string, args ...any) ([]*models.AtomicFact, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var out []*models.AtomicFact
	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		out = append(out, fact)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FactByID(ctx context.Context, id uuid.UUID) (*models.AtomicFact, error) {
	fact, err := scanFact(s.pool.QueryRow(ctx,
		`SELECT `+factColumns+` FROM atomic_facts WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return fact, nil
}

func (s *PostgresStore) FactsByFiling(ctx context.Context, filingID uuid.UUID) ([]*models.AtomicFact, error) {
	return s.queryFacts(ctx,
		`SELECT `+factColumns+` FROM atomic_facts WHERE filing_id = $1 ORDER BY created_at, id`, filingID)
}

func (s *PostgresStore) FactsByDeal(ctx context.Context, dealID uuid.UUID) ([]*models.AtomicFact, error) {
	return s.queryFacts(ctx,
		`SELECT `+factColumns+` FROM atomic_facts WHERE deal_id = $1 ORDER BY created_at, id`, dealID)
}

func (s *PostgresStore) UnassignedFacts(ctx context.Context, types ...models.FactType) ([]*models.AtomicFact, error) {
	if len(types) == 0 {
		return s.queryFacts(ctx,
			`SELECT `+factColumns+` FROM atomic_facts WHERE deal_id IS NULL ORDER BY created_at, id`)
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return s.queryFacts(ctx,
		`SELECT `+factColumns+` FROM atomic_facts
		 WHERE deal_id IS NULL AND fact_type = ANY($1) ORDER BY created_at, id`, names)
}

func (s *PostgresStore) AssignFactDeal(ctx context.Context, factID, dealID uuid.UUID, force bool) error {
	var tag string
	var err error
	if force {
		_, err = s.pool.Exec(ctx,
			`UPDATE atomic_facts SET deal_id = $2 WHERE id = $1`, factID, dealID)
		if err != nil {
			return fmt.Errorf("assign fact deal: %w", err)
		}
		return nil
	}
	// Conditional write-once assignment.
	err = s.pool.QueryRow(ctx, `
		UPDATE atomic_facts SET deal_id = $2
		WHERE id = $1 AND (deal_id IS NULL OR deal_id = $2)
		RETURNING id::text`, factID, dealID).Scan(&tag)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either missing or already assigned elsewhere.
			var exists bool
			if checkErr := s.pool.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM atomic_facts WHERE id = $1)`, factID).Scan(&exists); checkErr != nil {
				return fmt.Errorf("assign fact deal: %w", checkErr)
			}
			if !exists {
				return ErrNotFound
			}
			return ErrDealAssigned
		}
		return fmt.Errorf("assign fact deal: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Deals
// ---------------------------------------------------------------------------

func (s *PostgresStore) SaveDeal(ctx context.Context, deal *models.Deal) error {
	if deal.ID == uuid.Nil {
		deal.ID = uuid.New()
	}
	sponsorEvidence, err := marshalNullable(deal.SponsorEvidence)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO deals (
			id, state, acquirer_cik, acquirer_name_raw, acquirer_name_display,
			acquirer_name_normalized, target_cik, target_name_raw,
			target_name_display, target_name_normalized, deal_key,
			announcement_date, agreement_date, expected_close_date,
			actual_close_date, deal_value_usd, deal_value_evidence,
			is_sponsor_backed, sponsor_name_raw, sponsor_name_normalized,
			sponsor_confidence, sponsor_evidence, sponsor_entity_id,
			unresolved_sponsor_entity, market_tag, is_cross_border,
			advisory_fee_estimated, underwriting_fee_estimated
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,
			$19,$20,$21,$22,$23,$24,$25,$26,$27,$28
		)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			acquirer_cik = EXCLUDED.acquirer_cik,
			acquirer_name_raw = EXCLUDED.acquirer_name_raw,
			acquirer_name_display = EXCLUDED.acquirer_name_display,
			acquirer_name_normalized = EXCLUDED.acquirer_name_normalized,
			target_cik = EXCLUDED.target_cik,
			target_name_raw = EXCLUDED.target_name_raw,
			target_name_display = EXCLUDED.target_name_display,
			target_name_normalized = EXCLUDED.target_name_normalized,
			deal_key = EXCLUDED.deal_key,
			announcement_date = EXCLUDED.announcement_date,
			agreement_date = EXCLUDED.agreement_date,
			expected_close_date = EXCLUDED.expected_close_date,
			actual_close_date = EXCLUDED.actual_close_date,
			deal_value_usd = EXCLUDED.deal_value_usd,
			deal_value_evidence = EXCLUDED.deal_value_evidence,
			is_sponsor_backed = EXCLUDED.is_sponsor_backed,
			sponsor_name_raw = EXCLUDED.sponsor_name_raw,
			sponsor_name_normalized = EXCLUDED.sponsor_name_normalized,
			sponsor_confidence = EXCLUDED.sponsor_confidence,
			sponsor_evidence = EXCLUDED.sponsor_evidence,
			sponsor_entity_id = EXCLUDED.sponsor_entity_id,
			unresolved_sponsor_entity = EXCLUDED.unresolved_sponsor_entity,
			market_tag = EXCLUDED.market_tag,
			is_cross_border = EXCLUDED.is_cross_border,
			advisory_fee_estimated = EXCLUDED.advisory_fee_estimated,
			underwriting_fee_estimated = EXCLUDED.underwriting_fee_estimated,
			updated_at = NOW()`,
		deal.ID, deal.State, deal.AcquirerCIK, deal.AcquirerNameRaw,
		deal.AcquirerNameDisplay, deal.AcquirerNameNormalized, deal.TargetCIK,
		deal.TargetNameRaw, deal.TargetNameDisplay, deal.TargetNameNormalized,
		deal.DealKey, deal.AnnouncementDate, deal.AgreementDate,
		deal.ExpectedCloseDate, deal.ActualCloseDate, deal.DealValueUSD,
		deal.DealValueEvidence, deal.IsSponsorBacked, deal.SponsorNameRaw,
		deal.SponsorNameNormalized, deal.SponsorConfidence, sponsorEvidence,
		deal.SponsorEntityID, deal.UnresolvedSponsorEntity, deal.MarketTag,
		deal.IsCrossBorder, deal.AdvisoryFeeEstimated, deal.UnderwritingFeeEstimated,
	)
	if err != nil {
		return fmt.Errorf("save deal %s: %w", deal.DealKey, err)
	}
	return nil
}

const dealColumns = `id, state, acquirer_cik, acquirer_name_raw, acquirer_name_display,
	acquirer_name_normalized, target_cik, target_name_raw, target_name_display,
	target_name_normalized, deal_key, announcement_date, agreement_date,
	expected_close_date, actual_close_date, deal_value_usd, deal_value_evidence,
	is_sponsor_backed, sponsor_name_raw, sponsor_name_normalized, sponsor_confidence,
	sponsor_evidence, sponsor_entity_id, unresolved_sponsor_entity, market_tag,
	is_cross_border, advisory_fee_estimated, underwriting_fee_estimated,
	created_at, updated_at`

func scanDeal(row pgx.Row) (*models.Deal, error) {
	var d models.Deal
	var sponsorEvidence []byte
	err := row.Scan(
		&d.ID, &d.State, &d.AcquirerCIK, &d.AcquirerNameRaw, &d.AcquirerNameDisplay,
		&d.AcquirerNameNormalized, &d.TargetCIK, &d.TargetNameRaw,
		&d.TargetNameDisplay, &d.TargetNameNormalized, &d.DealKey,
		&d.AnnouncementDate, &d.AgreementDate, &d.ExpectedCloseDate,
		&d.ActualCloseDate, &d.DealValueUSD, &d.DealValueEvidence,
		&d.IsSponsorBacked, &d.SponsorNameRaw, &d.SponsorNameNormalized,
		&d.SponsorConfidence, &sponsorEvidence, &d.SponsorEntityID,
		&d.UnresolvedSponsorEntity, &d.MarketTag, &d.IsCrossBorder,
		&d.AdvisoryFeeEstimated, &d.UnderwritingFeeEstimated,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(sponsorEvidence) > 0 {
		d.SponsorEvidence = &models.SponsorEvidence{}
		if err := unmarshalJSON(sponsorEvidence, d.SponsorEvidence); err != nil {
			return nil, err
		}
	}
	return &d, nil
}

func (s *PostgresStore) DealByID(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	deal, err := scanDeal(s.pool.QueryRow(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return deal, nil
}

func (s *PostgresStore) DealByKey(ctx context.Context, dealKey string) (*models.Deal, error) {
	deal, err := scanDeal(s.pool.QueryRow(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE deal_key = $1 LIMIT 1`, dealKey))
	if err != nil {
		return nil, notFound(err)
	}
	return deal, nil
}

func (s *PostgresStore) ListDeals(ctx context.Context, filter DealFilter) ([]*models.Deal, error) {
	var conds []string
	var args []any

	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			`(target_name_display ILIKE $%d OR target_name_normalized ILIKE $%d
			  OR acquirer_name_display ILIKE $%d OR acquirer_name_normalized ILIKE $%d)`,
			n, n, n, n))
	}
	if len(filter.States) > 0 {
		names := make([]string, len(filter.States))
		for i, st := range filter.States {
			names[i] = string(st)
		}
		args = append(args, names)
		conds = append(conds, fmt.Sprintf("state = ANY($%d)", len(args)))
	}
	if filter.MarketTag != "" {
		args = append(args, filter.MarketTag)
		conds = append(conds, fmt.Sprintf("market_tag = $%d", len(args)))
	}
	if filter.IsSponsorBacked != nil {
		args = append(args, *filter.IsSponsorBacked)
		conds = append(conds, fmt.Sprintf("is_sponsor_backed = $%d", len(args)))
	}

	query := `SELECT ` + dealColumns + ` FROM deals`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY announcement_date DESC NULLS LAST, created_at DESC"
	query += limitOffset(&args, filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	var out []*models.Deal
	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		out = append(out, deal)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteDeal(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM deals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete deal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Financing events
// ---------------------------------------------------------------------------

func (s *PostgresStore) SaveEvent(ctx context.Context, event *models.FinancingEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin event save: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO financing_events (
			id, deal_id, instrument_family, instrument_type, market_tag,
			amount_usd, amount_raw, currency, maturity_date, maturity,
			interest_rate, purpose, reconciliation_confidence,
			reconciliation_explanation, source_exhibit_id, source_fact_ids,
			estimated_fee_usd
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			deal_id = EXCLUDED.deal_id,
			instrument_family = EXCLUDED.instrument_family,
			instrument_type = EXCLUDED.instrument_type,
			market_tag = EXCLUDED.market_tag,
			amount_usd = EXCLUDED.amount_usd,
			reconciliation_confidence = EXCLUDED.reconciliation_confidence,
			reconciliation_explanation = EXCLUDED.reconciliation_explanation,
			estimated_fee_usd = EXCLUDED.estimated_fee_usd`,
		event.ID, event.DealID, event.InstrumentFamily, event.InstrumentType,
		event.MarketTag, event.AmountUSD, event.AmountRaw, event.Currency,
		event.MaturityDate, event.Maturity, event.InterestRate, event.Purpose,
		event.ReconciliationConfidence, event.ReconciliationExplanation,
		event.SourceExhibitID, event.SourceFactIDs, event.EstimatedFeeUSD,
	)
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}

	// Participants are replaced wholesale on event update.
	if _, err = tx.Exec(ctx,
		`DELETE FROM financing_participants WHERE financing_event_id = $1`, event.ID); err != nil {
		return fmt.Errorf("clear participants: %w", err)
	}
	for _, p := range event.Participants {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		p.FinancingEventID = event.ID
		coords, err := marshalNullable(p.TableCellCoords)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO financing_participants (
				id, financing_event_id, bank_id, bank_name_raw,
				bank_name_normalized, role, role_normalized, evidence_snippet,
				evidence_source, table_cell_coords, role_weight, estimated_fee_usd
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			p.ID, p.FinancingEventID, p.BankID, p.BankNameRaw,
			p.BankNameNormalized, p.Role, p.RoleNormalized, p.EvidenceSnippet,
			p.EvidenceSource, coords, p.RoleWeight, p.EstimatedFeeUSD,
		)
		if err != nil {
			return fmt.Errorf("save participant %s: %w", p.BankNameRaw, err)
		}
	}

	return tx.Commit(ctx)
}

const eventColumns = `id, deal_id, instrument_family, instrument_type, market_tag,
	amount_usd, amount_raw, currency, maturity_date, maturity, interest_rate,
	purpose, reconciliation_confidence, reconciliation_explanation,
	source_exhibit_id, source_fact_ids, estimated_fee_usd, created_at`

func scanEvent(row pgx.Row) (*models.FinancingEvent, error) {
	var e models.FinancingEvent
	err := row.Scan(
		&e.ID, &e.DealID, &e.InstrumentFamily, &e.InstrumentType, &e.MarketTag,
		&e.AmountUSD, &e.AmountRaw, &e.Currency, &e.MaturityDate, &e.Maturity,
		&e.InterestRate, &e.Purpose, &e.ReconciliationConfidence,
		&e.ReconciliationExplanation, &e.SourceExhibitID, &e.SourceFactIDs,
		&e.EstimatedFeeUSD, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *PostgresStore) loadParticipants(ctx context.Context, event *models.FinancingEvent) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id, financing_event_id, bank_id, bank_name_raw, bank_name_normalized,
			role, role_normalized, evidence_snippet, evidence_source,
			table_cell_coords, role_weight, estimated_fee_usd, created_at
		FROM financing_participants WHERE financing_event_id = $1
		ORDER BY created_at, id`, event.ID)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.FinancingParticipant
		var coords []byte
		if err := rows.Scan(
			&p.ID, &p.FinancingEventID, &p.BankID, &p.BankNameRaw,
			&p.BankNameNormalized, &p.Role, &p.RoleNormalized,
			&p.EvidenceSnippet, &p.EvidenceSource, &coords,
			&p.RoleWeight, &p.EstimatedFeeUSD, &p.CreatedAt,
		); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		if len(coords) > 0 {
			p.TableCellCoords = &models.TableCellCoords{}
			if err := unmarshalJSON(coords, p.TableCellCoords); err != nil {
				return err
			}
		}
		event.Participants = append(event.Participants, &p)
	}
	return rows.Err()
}

func (s *PostgresStore) EventByID(ctx context.Context, id uuid.UUID) (*models.FinancingEvent, error) {
	event, err := scanEvent(s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM financing_events WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	if err := s.loadParticipants(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *PostgresStore) queryEvents(ctx context.Context, query string, args ...any) ([]*models.FinancingEvent, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []*models.FinancingEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, event := range out {
		if err := s.loadParticipants(ctx, event); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) EventsByDeal(ctx context.Context, dealID uuid.UUID) ([]*models.FinancingEvent, error) {
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM financing_events WHERE deal_id = $1 ORDER BY created_at`, dealID)
}

func (s *PostgresStore) ListEvents(ctx context.Context) ([]*models.FinancingEvent, error) {
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM financing_events ORDER BY created_at`)
}

func (s *PostgresStore) ReassignEvents(ctx context.Context, fromDeal, toDeal uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE financing_events SET deal_id = $2 WHERE deal_id = $1`, fromDeal, toDeal)
	if err != nil {
		return fmt.Errorf("reassign events: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Alerts and manual inputs
// ---------------------------------------------------------------------------

func (s *PostgresStore) SaveAlert(ctx context.Context, alert *models.Alert) error {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	fields := alert.FieldsNeeded
	if fields == nil {
		fields = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alerts (
			id, alert_type, filing_id, exhibit_id, deal_id, title, description,
			exhibit_link, fields_needed, preamble_hash, preamble_preview,
			is_resolved, resolved_at, resolved_by, resolution_notes
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
			is_resolved = EXCLUDED.is_resolved,
			resolved_at = EXCLUDED.resolved_at,
			resolved_by = EXCLUDED.resolved_by,
			resolution_notes = EXCLUDED.resolution_notes`,
		alert.ID, alert.AlertType, alert.FilingID, alert.ExhibitID, alert.DealID,
		alert.Title, alert.Description, alert.ExhibitLink, fields,
		alert.PreambleHash, alert.PreamblePreview, alert.IsResolved,
		alert.ResolvedAt, alert.ResolvedBy, alert.ResolutionNotes,
	)
	if err != nil {
		return fmt.Errorf("save alert: %w", err)
	}
	return nil
}

const alertColumns = `id, alert_type, filing_id, exhibit_id, deal_id, title, description,
	exhibit_link, fields_needed, preamble_hash, preamble_preview, is_resolved,
	resolved_at, resolved_by, resolution_notes, created_at`

func scanAlert(row pgx.Row) (*models.Alert, error) {
	var a models.Alert
	err := row.Scan(
		&a.ID, &a.AlertType, &a.FilingID, &a.ExhibitID, &a.DealID, &a.Title,
		&a.Description, &a.ExhibitLink, &a.FieldsNeeded, &a.PreambleHash,
		&a.PreamblePreview, &a.IsResolved, &a.ResolvedAt, &a.ResolvedBy,
		&a.ResolutionNotes, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) AlertByID(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	alert, err := scanAlert(s.pool.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return alert, nil
}

func (s *PostgresStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]*models.Alert, error) {
	var conds []string
	var args []any

	if filter.AlertType != "" {
		args = append(args, filter.AlertType)
		conds = append(conds, fmt.Sprintf("alert_type = $%d", len(args)))
	}
	if filter.Resolved != nil {
		args = append(args, *filter.Resolved)
		conds = append(conds, fmt.Sprintf("is_resolved = $%d", len(args)))
	}
	if filter.FilingID != nil {
		args = append(args, *filter.FilingID)
		conds = append(conds, fmt.Sprintf("filing_id = $%d", len(args)))
	}
	if filter.DealID != nil {
		args = append(args, *filter.DealID)
		conds = append(conds, fmt.Sprintf("deal_id = $%d", len(args)))
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	query += limitOffset(&args, filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, alert)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveManualInput(ctx context.Context, input *models.ManualInput) error {
	if input.ID == uuid.Nil {
		input.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO manual_inputs (
			id, alert_id, deal_id, financing_event_id, input_type, data,
			entered_by, entered_at, notes
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		input.ID, input.AlertID, input.DealID, input.FinancingEventID,
		input.InputType, input.Data, input.EnteredBy, input.EnteredAt, input.Notes,
	)
	if err != nil {
		return fmt.Errorf("save manual input: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Banks
// ---------------------------------------------------------------------------

func (s *PostgresStore) SaveBank(ctx context.Context, bank *models.Bank) error {
	if bank.ID == uuid.Nil {
		bank.ID = uuid.New()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin bank save: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO banks (
			id, name, name_normalized, display_name, short_name,
			is_bulge_bracket, is_regional, primary_market
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (name_normalized) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			short_name = EXCLUDED.short_name,
			is_bulge_bracket = EXCLUDED.is_bulge_bracket,
			is_regional = EXCLUDED.is_regional,
			primary_market = EXCLUDED.primary_market`,
		bank.ID, bank.Name, bank.NameNormalized, bank.DisplayName,
		bank.ShortName, bank.IsBulgeBracket, bank.IsRegional, bank.PrimaryMarket,
	)
	if err != nil {
		return fmt.Errorf("save bank %s: %w", bank.Name, err)
	}

	// The conflict branch keeps the original id; fetch it for aliases.
	var bankID uuid.UUID
	if err := tx.QueryRow(ctx,
		`SELECT id FROM banks WHERE name_normalized = $1`, bank.NameNormalized).Scan(&bankID); err != nil {
		return fmt.Errorf("resolve bank id: %w", err)
	}
	bank.ID = bankID

	if _, err := tx.Exec(ctx, `DELETE FROM bank_aliases WHERE bank_id = $1`, bankID); err != nil {
		return fmt.Errorf("clear bank aliases: %w", err)
	}
	for _, alias := range bank.Aliases {
		if alias.ID == uuid.Nil {
			alias.ID = uuid.New()
		}
		alias.BankID = bankID
		_, err = tx.Exec(ctx, `
			INSERT INTO bank_aliases (id, bank_id, alias, alias_normalized)
			VALUES ($1,$2,$3,$4)`,
			alias.ID, alias.BankID, alias.Alias, alias.AliasNormalized,
		)
		if err != nil {
			return fmt.Errorf("save bank alias %s: %w", alias.Alias, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) loadAliases(ctx context.Context, bank *models.Bank) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id, bank_id, alias, alias_normalized
		FROM bank_aliases WHERE bank_id = $1 ORDER BY alias`, bank.ID)
	if err != nil {
		return fmt.Errorf("load bank aliases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.BankAlias
		if err := rows.Scan(&a.ID, &a.BankID, &a.Alias, &a.AliasNormalized); err != nil {
			return fmt.Errorf("scan bank alias: %w", err)
		}
		bank.Aliases = append(bank.Aliases, &a)
	}
	return rows.Err()
}

const bankColumns = `id, name, name_normalized, display_name, short_name,
	is_bulge_bracket, is_regional, primary_market, created_at`

func scanBank(row pgx.Row) (*models.Bank, error) {
	var b models.Bank
	err := row.Scan(
		&b.ID, &b.Name, &b.NameNormalized, &b.DisplayName, &b.ShortName,
		&b.IsBulgeBracket, &b.IsRegional, &b.PrimaryMarket, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *PostgresStore) ListBanks(ctx context.Context) ([]*models.Bank, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+bankColumns+` FROM banks ORDER BY name_normalized`)
	if err != nil {
		return nil, fmt.Errorf("list banks: %w", err)
	}
	defer rows.Close()

	var out []*models.Bank
	for rows.Next() {
		bank, err := scanBank(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bank: %w", err)
		}
		out = append(out, bank)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, bank := range out {
		if err := s.loadAliases(ctx, bank); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) BankByNormalizedName(ctx context.Context, normalized string) (*models.Bank, error) {
	bank, err := scanBank(s.pool.QueryRow(ctx, `
		SELECT `+bankColumns+` FROM banks
		WHERE name_normalized = $1
		   OR id IN (SELECT bank_id FROM bank_aliases WHERE alias_normalized = $1)
		LIMIT 1`, normalized))
	if err != nil {
		return nil, notFound(err)
	}
	if err := s.loadAliases(ctx, bank); err != nil {
		return nil, err
	}
	return bank, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// marshalNullable returns nil for nil pointers so the column stays NULL.
func marshalNullable(v any) ([]byte, error) {
	if v == nil || reflect.ValueOf(v).IsNil() {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return data, nil
}

func unmarshalJSON(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return nil
}

func limitOffset(args *[]any, limit, offset int) string {
	var sb strings.Builder
	if limit > 0 {
		*args = append(*args, limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(*args))
	}
	if offset > 0 {
		*args = append(*args, offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(*args))
	}
	return sb.String()
}
