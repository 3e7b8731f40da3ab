package patterns

import (
	"regexp"
	"strings"
)

// =============================================================================
// 8-K SECTION MARKERS
// =============================================================================

var (
	// Item 1.01 announces entry into a material definitive agreement.
	Item101RE = regexp.MustCompile(
		`(?i)Item\s+1\.01[.\s]+Entry\s+into\s+a\s+Material\s+Definitive\s+Agreement`)

	DefinitiveAgreementRE = regexp.MustCompile(
		`(?i)entered\s+into\s+(?:a|an)\s+(?:Agreement\s+and\s+Plan\s+of\s+Merger|Merger\s+Agreement|definitive\s+agreement)`)

	// Item 8.01 carries financing announcements.
	Item801RE = regexp.MustCompile(
		`(?i)Item\s+8\.01[.\s]+Other\s+Events`)

	PurchaseAgreementRE = regexp.MustCompile(
		`(?i)entered\s+into\s+(?:a\s+)?(?P<agreement_type>purchase\s+agreement|underwriting\s+agreement)`)
)

// materialExhibitPatterns flag exhibit descriptions whose contents
// carry financing terms. An unreadable exhibit matching one of these
// must surface as a review alert, not a silent gap.
var materialExhibitPatterns = []string{
	"credit agreement",
	"commitment letter",
	"bridge",
	"debt financing",
	"underwriting agreement",
	"indenture",
	"loan agreement",
	"term loan",
	"revolving",
}

// IsMaterialExhibit reports whether an exhibit description suggests
// financing-material content.
func IsMaterialExhibit(description string) bool {
	lower := strings.ToLower(description)
	for _, p := range materialExhibitPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// =============================================================================
// DEBT INSTRUMENTS
// =============================================================================

const (
	DebtInstrumentConfidence = 0.90
	CreditFacilityConfidence = 0.85
	financingContextChars    = 200
)

const amountGroup = `\$\s?(?P<num>\d{1,3}(?:,\d{3})*(?:\.\d+)?)\s*(?P<scale>billion|million|b|m|bn|mm|mil)?`

// DebtInstrumentRE matches "$1.5 billion aggregate principal amount of
// 5.25% Senior Notes due 2031".
var DebtInstrumentRE = regexp.MustCompile(
	`(?i)` + amountGroup +
		`\s+(?:aggregate\s+)?(?:principal\s+)?(?:amount\s+)?(?:of\s+)?(?:its\s+)?` +
		`(?:(?P<rate>[\d.]+%)\s+)?` +
		`(?P<instrument>Senior\s+Secured\s+Notes?|Senior\s+Notes?|Subordinated\s+Notes?|Convertible\s+Notes?|Notes?|Bonds?|Debentures?)` +
		`(?:\s+due\s+(?P<maturity>\d{4}))?`)

// CreditFacilityRE matches "$2.0 billion senior secured revolving credit
// facility", "$750 million term loan" and the like.
var CreditFacilityRE = regexp.MustCompile(
	`(?i)` + amountGroup +
		`\s+(?:aggregate\s+)?(?:principal\s+)?(?:amount\s+)?(?:of\s+)?(?:its\s+)?(?:new\s+)?` +
		`(?P<instrument>(?:senior\s+)?(?:secured\s+)?(?:unsecured\s+)?(?:revolving\s+)?(?:credit\s+)?(?:facility|term\s+loan|bridge\s+loan|rcf|revolver))`)

// Canonical instrument types.
const (
	InstrumentBond            = "bond"
	InstrumentConvertibleBond = "convertible_bond"
	InstrumentTermLoan        = "term_loan"
	InstrumentBridgeLoan      = "bridge_loan"
	InstrumentRCF             = "rcf"
	InstrumentCreditFacility  = "credit_facility"
)

var instrumentTypeMap = map[string]string{
	"senior notes":         InstrumentBond,
	"senior note":          InstrumentBond,
	"senior secured notes": InstrumentBond,
	"senior secured note":  InstrumentBond,
	"subordinated notes":   InstrumentBond,
	"subordinated note":    InstrumentBond,
	"notes":                InstrumentBond,
	"note":                 InstrumentBond,
	"bonds":                InstrumentBond,
	"bond":                 InstrumentBond,
	"debentures":           InstrumentBond,
	"debenture":            InstrumentBond,

	"convertible notes": InstrumentConvertibleBond,
	"convertible note":  InstrumentConvertibleBond,

	"term loan":   InstrumentTermLoan,
	"bridge loan": InstrumentBridgeLoan,

	"revolving credit facility": InstrumentRCF,
	"revolving facility":        InstrumentRCF,
	"revolver":                  InstrumentRCF,
	"rcf":                       InstrumentRCF,

	"credit facility": InstrumentCreditFacility,
	"facility":        InstrumentCreditFacility,
}

// MapInstrumentType maps a matched instrument phrase to its canonical type.
func MapInstrumentType(phrase string) string {
	key := strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
	if t, ok := instrumentTypeMap[key]; ok {
		return t
	}
	// Drop leading qualifiers like "senior secured" one word at a time.
	words := strings.Fields(key)
	for len(words) > 1 {
		words = words[1:]
		if t, ok := instrumentTypeMap[strings.Join(words, " ")]; ok {
			return t
		}
	}
	return InstrumentCreditFacility
}

// DebtInstrumentMatch is one financing instrument hit.
type DebtInstrumentMatch struct {
	InstrumentType    string
	InstrumentSubtype string // raw matched phrase
	AmountUSD         float64
	AmountRaw         string
	InterestRate      string
	Maturity          string
	Confidence        float64
	Pattern           string
	ContextSnippet    string
	StartOffset       int
	EndOffset         int
}

func instrumentContext(text string, start, end int) string {
	lo := start - financingContextChars
	if lo < 0 {
		lo = 0
	}
	hi := end + financingContextChars
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:hi]
}

func collectInstruments(re *regexp.Regexp, text, pattern string, conf float64) []DebtInstrumentMatch {
	var out []DebtInstrumentMatch
	instIdx := re.SubexpIndex("instrument")
	rateIdx := re.SubexpIndex("rate")
	matIdx := re.SubexpIndex("maturity")

	for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
		amt, ok := parseAmountAt(text, loc)
		if !ok {
			continue
		}
		phrase := strings.TrimSpace(text[loc[2*instIdx]:loc[2*instIdx+1]])
		if phrase == "" {
			continue
		}
		m := DebtInstrumentMatch{
			InstrumentType:    MapInstrumentType(phrase),
			InstrumentSubtype: phrase,
			AmountUSD:         amt.ValueUSD,
			AmountRaw:         amt.Raw,
			Confidence:        conf,
			Pattern:           pattern,
			ContextSnippet:    instrumentContext(text, loc[0], loc[1]),
			StartOffset:       loc[0],
			EndOffset:         loc[1],
		}
		if rateIdx >= 0 && loc[2*rateIdx] >= 0 {
			m.InterestRate = text[loc[2*rateIdx]:loc[2*rateIdx+1]]
		}
		if matIdx >= 0 && loc[2*matIdx] >= 0 {
			m.Maturity = text[loc[2*matIdx]:loc[2*matIdx+1]]
		}
		out = append(out, m)
	}
	return out
}

// ExtractDebtInstruments returns bond-family matches followed by loan
// and facility matches, each with a context window for evidence.
func ExtractDebtInstruments(text string) []DebtInstrumentMatch {
	matches := collectInstruments(DebtInstrumentRE, text, PatternDebtInstrument, DebtInstrumentConfidence)
	matches = append(matches, collectInstruments(CreditFacilityRE, text, PatternCreditFacility, CreditFacilityConfidence)...)
	return matches
}

// =============================================================================
// UNDERWRITERS
// =============================================================================

const (
	UnderwriterConfidence   = 0.85
	underwriterContextChars = 150
)

// UnderwriterRE anchors on the ", as representatives of the several
// underwriters" tail of underwriting agreements.
var UnderwriterRE = regexp.MustCompile(
	`(?i)(?:with|among)\s+(?P<underwriters>[\w\s,&.]+?(?:LLC|Inc\.?|L\.?P\.?|Securities|Capital|Bank)?(?:\s+and\s+[\w\s,&.]+?(?:LLC|Inc\.?|L\.?P\.?|Securities|Capital|Bank)?)?)(?:,?\s+as\s+(?:representatives?\s+of\s+(?:the\s+)?(?:several\s+)?underwriters?|underwriters?|lead\s+(?:book-?running\s+)?managers?|joint\s+(?:book-?running\s+)?managers?))`)

// UnderwriterSimpleRE handles "the underwriters are X, Y and Z" phrasings.
var UnderwriterSimpleRE = regexp.MustCompile(
	`(?i)(?:underwriters?\s+(?:named|identified|listed)\s+(?:in|on)\s+|(?:the\s+)?underwriters?\s+(?:are|include|were)\s+)(?P<underwriters>[A-Z][\w\s,&.]+?)(?:\.|,\s+(?:relating|whereby|pursuant))`)

var underwriterStopwords = map[string]bool{
	"the": true, "as": true, "of": true, "several": true, "representatives": true,
}

var underwriterSplitRE = regexp.MustCompile(`\s+and\s+|,\s*`)

// UnderwriterMatch is one bank name with the role inferred from context.
type UnderwriterMatch struct {
	BankName       string
	Role           string
	Confidence     float64
	ContextSnippet string
}

func splitUnderwriterList(list string) []string {
	var names []string
	for _, part := range underwriterSplitRE.Split(list, -1) {
		part = strings.TrimSpace(part)
		if len(part) < 3 || underwriterStopwords[strings.ToLower(part)] {
			continue
		}
		names = append(names, part)
	}
	return names
}

func underwriterRole(context string) string {
	lower := strings.ToLower(context)
	switch {
	case strings.Contains(lower, "lead") || strings.Contains(lower, "book-running") || strings.Contains(lower, "bookrunning"):
		return "lead_manager"
	case strings.Contains(lower, "representative"):
		return "representative"
	default:
		return "underwriter"
	}
}

// ExtractUnderwriters pulls underwriter names out of underwriting
// agreement language and assigns roles from the surrounding context.
func ExtractUnderwriters(text string) []UnderwriterMatch {
	var out []UnderwriterMatch
	seen := map[string]bool{}

	for _, re := range []*regexp.Regexp{UnderwriterRE, UnderwriterSimpleRE} {
		idx := re.SubexpIndex("underwriters")
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			list := text[loc[2*idx]:loc[2*idx+1]]
			lo := loc[0] - underwriterContextChars
			if lo < 0 {
				lo = 0
			}
			hi := loc[1] + underwriterContextChars
			if hi > len(text) {
				hi = len(text)
			}
			ctx := text[lo:hi]
			role := underwriterRole(ctx)

			for _, name := range splitUnderwriterList(list) {
				key := strings.ToLower(name)
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, UnderwriterMatch{
					BankName:       name,
					Role:           role,
					Confidence:     UnderwriterConfidence,
					ContextSnippet: ctx,
				})
			}
		}
	}
	return out
}
