// Package extract turns filings and exhibits into atomic facts.
//
// The hard rule: document processing emits atomic facts only, it never
// creates deals. Clustering owns deal lifecycle.
package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"dealgraph/pkg/core/models"
	"dealgraph/pkg/core/patterns"
	"dealgraph/pkg/core/tablex"
	"dealgraph/pkg/core/vistext"
)

// Result collects the facts and review alerts from one document.
type Result struct {
	Facts  []*models.AtomicFact
	Alerts []*models.Alert
}

func (r *Result) merge(other Result) {
	r.Facts = append(r.Facts, other.Facts...)
	r.Alerts = append(r.Alerts, other.Alerts...)
}

// materialExhibitKeywords mark an EX-10 description as financing-material.
var materialExhibitKeywords = []string{
	"credit", "commitment", "bridge", "loan", "indenture", "financing",
}

// FromFiling extracts facts from a filing document and all its exhibits.
// Visual text is materialized on the filing and exhibits as a side
// effect so callers can persist it.
func FromFiling(filing *models.Filing) Result {
	var result Result

	if filing.FormType == "8-K" || filing.FormType == "8-K/A" {
		result.merge(fromCurrentReport(filing))
	}

	for _, exhibit := range filing.Exhibits {
		result.merge(FromExhibit(exhibit))
	}

	return result
}

// FromExhibit routes an exhibit to the extractor for its exhibit type.
func FromExhibit(exhibit *models.Exhibit) Result {
	exhibitType := strings.ToUpper(exhibit.ExhibitType)
	switch {
	case strings.HasPrefix(exhibitType, "EX-2"):
		return fromMergerAgreement(exhibit)
	case strings.HasPrefix(exhibitType, "EX-10"):
		return fromCommitmentLetter(exhibit)
	case strings.HasPrefix(exhibitType, "EX-99"):
		return fromPressRelease(exhibit)
	}
	return Result{}
}

func filingText(filing *models.Filing) string {
	if filing.VisualText == "" && filing.RawHTML != "" {
		filing.VisualText = vistext.ExtractVisualText(filing.RawHTML)
	}
	return filing.VisualText
}

func exhibitText(exhibit *models.Exhibit) string {
	if exhibit.VisualText == "" && exhibit.RawContent != "" {
		exhibit.VisualText = vistext.ExtractVisualText(exhibit.RawContent)
	}
	return exhibit.VisualText
}

// fromCurrentReport handles 8-K bodies: Item 1.01 merger announcements,
// Item 8.01 financing events, and non-standard purchase agreements.
func fromCurrentReport(filing *models.Filing) Result {
	var result Result

	text := filingText(filing)
	if text == "" {
		return result
	}

	if patterns.Item101RE.MatchString(text) && patterns.DefinitiveAgreementRE.MatchString(text) {
		result.merge(partiesFromAnnouncement(text, filing))

		if date, ok := patterns.ExtractAgreementDate(text); ok {
			result.Facts = append(result.Facts, dateFact(filing.ID, nil, date, "item_1.01", 0.9))
		}
	}

	if patterns.Item801RE.MatchString(text) {
		result.merge(financingFromCurrentReport(filing, text))
	}

	// Some filings announce purchase agreements without the standard
	// item numbering; dedup against the Item 8.01 pass by evidence prefix.
	if patterns.PurchaseAgreementRE.MatchString(text) {
		existing := map[string]bool{}
		for _, f := range result.Facts {
			existing[snippetKey(f.EvidenceSnippet)] = true
		}
		for _, f := range financingFromCurrentReport(filing, text).Facts {
			if !existing[snippetKey(f.EvidenceSnippet)] {
				result.Facts = append(result.Facts, f)
			}
		}
	}

	return result
}

func snippetKey(snippet string) string {
	if len(snippet) > 100 {
		return snippet[:100]
	}
	return snippet
}

// tableParticipants mines the document's HTML tables for bank rows.
func tableParticipants(rawHTML string) []models.FinancingParticipantPayload {
	if rawHTML == "" {
		return nil
	}
	rows, err := tablex.ExtractFinancingParticipants(rawHTML)
	if err != nil {
		return nil
	}
	var out []models.FinancingParticipantPayload
	for _, row := range rows {
		out = append(out, models.FinancingParticipantPayload{
			Bank:           row.BankName,
			BankNormalized: strings.ToLower(strings.TrimSpace(row.BankName)),
			Role:           strings.ToLower(strings.TrimSpace(row.Role)),
			Evidence:       snippet(row.Evidence, 200),
		})
	}
	return out
}

// mergeParticipants appends extras whose normalized bank name is not
// already present; prose mentions win over table rows for role detail.
func mergeParticipants(base, extra []models.FinancingParticipantPayload) []models.FinancingParticipantPayload {
	seen := map[string]bool{}
	for _, p := range base {
		seen[p.BankNormalized] = true
	}
	for _, p := range extra {
		if seen[p.BankNormalized] {
			continue
		}
		seen[p.BankNormalized] = true
		base = append(base, p)
	}
	return base
}

func financingFromCurrentReport(filing *models.Filing, text string) Result {
	var result Result

	instruments := patterns.ExtractDebtInstruments(text)
	underwriters := patterns.ExtractUnderwriters(text)

	var participants []models.FinancingParticipantPayload
	for _, uw := range underwriters {
		evidence := uw.ContextSnippet
		if len(evidence) > 200 {
			evidence = evidence[:200]
		}
		participants = append(participants, models.FinancingParticipantPayload{
			Bank:           uw.BankName,
			BankNormalized: strings.ToLower(strings.TrimSpace(uw.BankName)),
			Role:           uw.Role,
			Evidence:       evidence,
		})
	}

	// Underwriter and lender tables name banks the prose never repeats.
	participants = mergeParticipants(participants, tableParticipants(filing.RawHTML))

	for _, inst := range instruments {
		fact := models.NewFact(models.FactFinancingMention, models.FinancingPayload{
			InstrumentType:    inst.InstrumentType,
			InstrumentSubtype: inst.InstrumentSubtype,
			AmountUSD:         inst.AmountUSD,
			AmountRaw:         inst.AmountRaw,
			Currency:          "USD",
			Participants:      participants,
			Maturity:          inst.Maturity,
			InterestRate:      inst.InterestRate,
		})
		fact.FilingID = &filing.ID
		fact.EvidenceSnippet = inst.ContextSnippet
		fact.SourceSection = "item_8.01"
		fact.ExtractionMethod = "regex"
		fact.ExtractionPattern = inst.Pattern
		fact.Confidence = inst.Confidence
		result.Facts = append(result.Facts, fact)
	}

	// No instruments but named underwriters: keep the banks as advisor
	// mentions so reconciliation can still attach them.
	if len(instruments) == 0 {
		for _, uw := range underwriters {
			fact := models.NewFact(models.FactAdvisorMention, models.AdvisorPayload{
				BankNameRaw:        uw.BankName,
				BankNameNormalized: strings.ToLower(strings.TrimSpace(uw.BankName)),
				Role:               uw.Role,
				ClientSide:         "issuer",
			})
			fact.FilingID = &filing.ID
			fact.EvidenceSnippet = uw.ContextSnippet
			fact.SourceSection = "item_8.01"
			fact.ExtractionMethod = "regex"
			fact.ExtractionPattern = patterns.PatternUnderwriter
			fact.Confidence = uw.Confidence
			result.Facts = append(result.Facts, fact)
		}
	}

	if date, ok := patterns.ExtractAgreementDate(text); ok {
		result.Facts = append(result.Facts, dateFact(filing.ID, nil, date, "item_8.01", 0.9))
	}

	return result
}

// fromMergerAgreement is the primary path for private-target extraction:
// EX-2 preambles name every party of the transaction.
func fromMergerAgreement(exhibit *models.Exhibit) Result {
	var result Result

	text := exhibitText(exhibit)
	if text == "" {
		return result
	}

	preamble := text
	if len(preamble) > vistext.DefaultPreambleChars {
		preamble = preamble[:vistext.DefaultPreambleChars]
	}

	if !patterns.MergerAgreementHeaderRE.MatchString(preamble) {
		return result
	}

	span, start, end, ok := patterns.FindPartySpan(preamble)
	if ok {
		parties := patterns.SplitPartySpan(span)

		roleMap := map[string]patterns.PartyRole{}
		for _, pr := range patterns.ExtractPartiesWithRoles(preamble) {
			roleMap[patterns.NormalizePartyName(pr.PartyName)] = pr
		}

		for i, partyRaw := range parties {
			normalized := patterns.NormalizePartyName(partyRaw)

			roleLabel := ""
			fromDefinedTerm := false
			if pr, found := roleMap[normalized]; found {
				roleLabel = pr.Label
				fromDefinedTerm = true
			} else if len(parties) == 3 && i == 2 {
				// Positional heuristic: in a 3-party preamble the last
				// party is the target, the first the acquirer.
				roleLabel = "Company"
			} else if len(parties) >= 2 && i == 0 {
				roleLabel = "Parent"
			}

			confidence := 0.6
			if fromDefinedTerm {
				confidence = 0.9
			}
			if roleLabel == "" {
				roleLabel = "Unknown"
			}

			fact := models.NewFact(models.FactPartyDefinition, models.PartyPayload{
				PartyNameRaw:        partyRaw,
				PartyNameNormalized: normalized,
				PartyNameDisplay:    patterns.DisplayPartyName(partyRaw),
				RoleLabel:           roleLabel,
			})
			fact.ExhibitID = &exhibit.ID
			fact.FilingID = &exhibit.FilingID
			fact.EvidenceSnippet = snippet(span, 500)
			fact.EvidenceStartOffset = intPtr(start)
			fact.EvidenceEndOffset = intPtr(end)
			fact.SourceSection = "preamble"
			fact.ExtractionMethod = "regex"
			fact.ExtractionPattern = patterns.PatternPreamblePartyList
			fact.Confidence = confidence
			result.Facts = append(result.Facts, fact)
		}
	} else {
		hash := sha256.Sum256([]byte(preamble))
		alert := models.NewAlert(
			models.AlertFailedPrivateTargetExtraction,
			"Failed to extract parties from merger agreement preamble",
			"Could not find 'by and among/between' pattern in preamble",
		)
		alert.ExhibitID = &exhibit.ID
		alert.FilingID = &exhibit.FilingID
		alert.PreambleHash = hex.EncodeToString(hash[:])
		alert.PreamblePreview = snippet(preamble, 500)
		result.Alerts = append(result.Alerts, alert)
	}

	if date, ok := patterns.ExtractAgreementDate(preamble); ok {
		result.Facts = append(result.Facts, dateFact(exhibit.FilingID, &exhibit.ID, date, "preamble", 0.95))
	}

	return result
}

// fromCommitmentLetter handles EX-10 exhibits: marks financing documents
// material and mines equity commitment letters for sponsor evidence.
func fromCommitmentLetter(exhibit *models.Exhibit) Result {
	var result Result

	text := exhibitText(exhibit)
	if text == "" {
		return result
	}

	description := strings.ToLower(exhibit.Description)
	for _, kw := range materialExhibitKeywords {
		if strings.Contains(description, kw) {
			exhibit.IsMaterial = true
			break
		}
	}

	if strings.Contains(description, "commitment") || strings.Contains(description, "equity") {
		result.Facts = append(result.Facts, sponsorFacts(exhibit, text, "equity_commitment")...)
	}

	if exhibit.IsMaterial {
		result.merge(financingFromExhibit(exhibit, text))
	}

	return result
}

// financingFromExhibit mines credit agreements and commitment letters
// for facilities plus the lender/underwriter tables that allocate them.
func financingFromExhibit(exhibit *models.Exhibit, text string) Result {
	var result Result

	instruments := patterns.ExtractDebtInstruments(text)
	if len(instruments) == 0 {
		return result
	}

	participants := tableParticipants(exhibit.RawContent)
	for _, inst := range instruments {
		fact := models.NewFact(models.FactFinancingMention, models.FinancingPayload{
			InstrumentType:    inst.InstrumentType,
			InstrumentSubtype: inst.InstrumentSubtype,
			AmountUSD:         inst.AmountUSD,
			AmountRaw:         inst.AmountRaw,
			Currency:          "USD",
			Participants:      participants,
			Maturity:          inst.Maturity,
			InterestRate:      inst.InterestRate,
		})
		fact.ExhibitID = &exhibit.ID
		fact.FilingID = &exhibit.FilingID
		fact.EvidenceSnippet = inst.ContextSnippet
		fact.SourceSection = "financing_exhibit"
		fact.ExtractionMethod = "regex"
		fact.ExtractionPattern = inst.Pattern
		fact.Confidence = inst.Confidence
		result.Facts = append(result.Facts, fact)
	}
	return result
}

// fromPressRelease scans EX-99 press releases for sponsor mentions.
func fromPressRelease(exhibit *models.Exhibit) Result {
	var result Result

	text := exhibitText(exhibit)
	if text == "" {
		return result
	}

	result.Facts = append(result.Facts, sponsorFacts(exhibit, text, "press_release")...)
	return result
}

func sponsorFacts(exhibit *models.Exhibit, text, section string) []*models.AtomicFact {
	var facts []*models.AtomicFact
	for _, sp := range patterns.ExtractSponsors(text) {
		if sp.IsNegated {
			continue
		}
		fact := models.NewFact(models.FactSponsorMention, models.SponsorPayload{
			SponsorNameRaw:        sp.SponsorNameRaw,
			SponsorNameNormalized: sp.SponsorNameNormalized,
			SourcePattern:         sp.SourcePattern,
			ContextSnippet:        sp.ContextSnippet,
			IsNegated:             sp.IsNegated,
		})
		fact.ExhibitID = &exhibit.ID
		fact.FilingID = &exhibit.FilingID
		fact.EvidenceSnippet = sp.ContextSnippet
		fact.SourceSection = section
		fact.ExtractionMethod = "regex"
		fact.ExtractionPattern = sp.SourcePattern
		fact.Confidence = sp.Confidence
		facts = append(facts, fact)
	}
	return facts
}

// partiesFromAnnouncement emits low-confidence party mentions from 8-K
// announcement bodies; roles stay unknown here.
func partiesFromAnnouncement(text string, filing *models.Filing) Result {
	var result Result

	scan := text
	if len(scan) > vistext.DefaultPreambleChars {
		scan = scan[:vistext.DefaultPreambleChars]
	}

	span, start, end, ok := patterns.FindPartySpan(scan)
	if !ok {
		return result
	}

	for _, partyRaw := range patterns.SplitPartySpan(span) {
		fact := models.NewFact(models.FactPartyMention, models.PartyPayload{
			PartyNameRaw:        partyRaw,
			PartyNameNormalized: patterns.NormalizePartyName(partyRaw),
			PartyNameDisplay:    patterns.DisplayPartyName(partyRaw),
			RoleLabel:           "Unknown",
		})
		fact.FilingID = &filing.ID
		fact.EvidenceSnippet = snippet(span, 500)
		fact.EvidenceStartOffset = intPtr(start)
		fact.EvidenceEndOffset = intPtr(end)
		fact.SourceSection = "announcement"
		fact.ExtractionMethod = "regex"
		fact.ExtractionPattern = patterns.PatternPreamblePartyList
		fact.Confidence = 0.7
		result.Facts = append(result.Facts, fact)
	}

	return result
}

func dateFact(filingID uuid.UUID, exhibitID *uuid.UUID, date patterns.DateMatch, section string, confidence float64) *models.AtomicFact {
	fact := models.NewFact(models.FactDealDate, models.DatePayload{
		DateType:  "agreement_date",
		DateValue: date.Value.Format("2006-01-02"),
		DateRaw:   date.Raw,
	})
	fact.FilingID = &filingID
	fact.ExhibitID = exhibitID
	fact.EvidenceSnippet = "dated " + date.Raw
	fact.SourceSection = section
	fact.ExtractionMethod = "regex"
	fact.Confidence = confidence
	return fact
}

func snippet(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

func intPtr(v int) *int { return &v }
