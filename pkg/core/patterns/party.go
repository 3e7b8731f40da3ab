// Package patterns is the curated regex pack for EDGAR document
// extraction. All patterns assume prior normalization of smart quotes,
// dashes and spaces to ASCII via the vistext package.
//
// Pattern name constants are recorded on every fact so evidence can be
// traced back to the pattern that produced it.
package patterns

import (
	"regexp"
	"strings"
)

// Recorded pattern names.
const (
	PatternPreamblePartyList = "PREAMBLE_PARTY_LIST"
	PatternDefinedTermRole   = "DEFINED_TERM_ROLE"
	PatternSeedList          = "seed_list"
	PatternAffiliation       = "affiliation_pattern"
	PatternDebtInstrument    = "DEBT_INSTRUMENT_PATTERN"
	PatternCreditFacility    = "CREDIT_FACILITY_PATTERN"
	PatternUnderwriter       = "UNDERWRITER_PATTERN"
)

// =============================================================================
// A1: PREAMBLE PARTY LIST
// =============================================================================
// Matches "by and among [Party A], [Party B], and [Party C]..." in merger
// agreement preambles. Greedy form captures the whole span up to the final
// period at a line end; the lazy form is for texts with trailing content.

var (
	PreamblePartyListRE = regexp.MustCompile(
		`(?ism)\bby\s+and\s+(?:among|between)\b\s+(?P<party_span>.+)\.\s*$`)

	PreamblePartyListLazyRE = regexp.MustCompile(
		`(?is)\bby\s+and\s+(?:among|between)\b\s+(?P<party_span>.+?["')]\s*)\.`)

	PreamblePartiesAltRE = regexp.MustCompile(
		`(?ism)(?:entered\s+into|made)\s+(?:by\s+and\s+)?(?:among|between)\s+(?P<party_span>.+)\.\s*$`)

	MergerAgreementHeaderRE = regexp.MustCompile(
		`(?i)(?:AGREEMENT\s+AND\s+PLAN\s+OF\s+MERGER|PLAN\s+OF\s+MERGER|MERGER\s+AGREEMENT)`)
)

// FindPartySpan runs the A1 alternates in priority order and returns the
// captured party span with its offsets, or ok=false.
func FindPartySpan(text string) (span string, start, end int, ok bool) {
	for _, re := range []*regexp.Regexp{PreamblePartyListRE, PreamblePartiesAltRE} {
		loc := re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		idx := re.SubexpIndex("party_span")
		return text[loc[2*idx]:loc[2*idx+1]], loc[0], loc[1], true
	}
	return "", 0, 0, false
}

// jurisdictionalCommaRE suppresses splits on commas that introduce a
// jurisdictional descriptor: ", a Delaware corporation".
var jurisdictionalCommaRE = regexp.MustCompile(
	`(?i)^,?\s*a\s+(?:Delaware|Nevada|California|New York|Texas|Florida|Maryland|[A-Z][a-z]+)\s+`)

// suffixCommaRE suppresses splits on commas that precede a company
// suffix: "Acme Parent Holdings, Inc.".
var suffixCommaRE = regexp.MustCompile(
	`^,\s+(?:Inc|Incorporated|Corp|Corporation|LLC|L\.?L\.?C|Ltd|Limited|Co|Company|LP|L\.?P|LLP|PLC|N\.?A|S\.?A|AG|GmbH|BV|NV)\b`)

// newPartyCommaRE recognizes ", <Capitalized token>" as the start of a
// new party once the suffix and jurisdictional guards have passed.
var newPartyCommaRE = regexp.MustCompile(`^,\s+[A-Z]`)

// SplitPartySpan divides a captured party span into individual parties.
//
// The splitter is parenthesis-aware: it never splits inside parens, it
// recognizes ", and " as a separator, it recognizes a comma followed by a
// capitalized corporate name as a separator, it suppresses splits on
// jurisdictional descriptors, and it accepts a standalone " and " only
// when the preceding text ends in a closing paren or quote.
func SplitPartySpan(partySpan string) []string {
	partySpan = strings.Join(strings.Fields(partySpan), " ")

	var parties []string
	var current strings.Builder
	parenDepth := 0

	flush := func() {
		if p := strings.TrimSpace(current.String()); p != "" {
			parties = append(parties, p)
		}
		current.Reset()
	}

	i := 0
	for i < len(partySpan) {
		ch := partySpan[i]

		switch {
		case ch == '(':
			parenDepth++
			current.WriteByte(ch)
		case ch == ')':
			if parenDepth > 0 {
				parenDepth--
			}
			current.WriteByte(ch)
		case ch == ',' && parenDepth == 0:
			rest := partySpan[i:]
			restLower := strings.ToLower(rest)
			switch {
			case jurisdictionalCommaRE.MatchString(rest), suffixCommaRE.MatchString(rest):
				current.WriteByte(ch)
			case strings.HasPrefix(restLower, ", and "):
				flush()
				i += 5 // skip ", and"
			case newPartyCommaRE.MatchString(rest):
				flush()
				i++ // skip the comma
				for i < len(partySpan) && (partySpan[i] == ' ' || partySpan[i] == '\t' || partySpan[i] == '\n') {
					i++
				}
				continue
			default:
				current.WriteByte(ch)
			}
		case parenDepth == 0 && i+5 <= len(partySpan) && strings.EqualFold(partySpan[i:i+5], " and "):
			before := strings.TrimSpace(current.String())
			if before != "" && (strings.HasSuffix(before, ")") || strings.HasSuffix(before, `"`) || strings.HasSuffix(before, "'")) {
				parties = append(parties, before)
				current.Reset()
				i += 5
				continue
			}
			current.WriteByte(ch)
		default:
			current.WriteByte(ch)
		}
		i++
	}

	flush()
	return parties
}

// =============================================================================
// A2: DEFINED TERM ROLE
// =============================================================================
// Captures defined-term role labels such as (the "Company"), ("Purchaser").

var DefinedTermRoleRE = regexp.MustCompile(
	`(?i)\(\s*(?:the\s+|hereinafter\s+(?:the\s+)?|hereinafter\s+referred\s+to\s+as\s+(?:the\s+)?|referred\s+to\s+as\s+(?:the\s+)?)?["'](?P<label>[A-Za-z0-9][A-Za-z0-9\s\-]{0,40}?)["']\s*\)`)

// Canonical party roles.
const (
	RoleTarget    = "target"
	RoleAcquirer  = "acquirer"
	RoleMergerSub = "merger_sub"
)

// roleLabelMapping maps defined-term labels to canonical roles. Labels
// outside the table map to "" (unknown role).
var roleLabelMapping = map[string]string{
	"company": RoleTarget,
	"target":  RoleTarget,
	"seller":  RoleTarget,

	"parent":    RoleAcquirer,
	"buyer":     RoleAcquirer,
	"purchaser": RoleAcquirer,
	"acquirer":  RoleAcquirer,
	"acquiror":  RoleAcquirer,
	"holdco":    RoleAcquirer,
	"holdings":  RoleAcquirer,

	"merger sub":             RoleMergerSub,
	"merger subsidiary":      RoleMergerSub,
	"acquisition sub":        RoleMergerSub,
	"acquisition subsidiary": RoleMergerSub,
	"newco":                  RoleMergerSub,
}

// MapRoleLabel maps a defined-term label to its canonical role, or "".
func MapRoleLabel(label string) string {
	return roleLabelMapping[strings.TrimSpace(strings.ToLower(label))]
}

// PartyRole is one (party, label, canonical role) triple from A2.
type PartyRole struct {
	PartyName     string
	Label         string
	CanonicalRole string
}

var segmentSplitRE = regexp.MustCompile(`[,;]`)

// ExtractPartiesWithRoles finds defined-term labels and pairs each with
// the party name immediately preceding the parenthetical.
func ExtractPartiesWithRoles(text string) []PartyRole {
	var results []PartyRole

	for _, loc := range DefinedTermRoleRE.FindAllStringSubmatchIndex(text, -1) {
		idx := DefinedTermRoleRE.SubexpIndex("label")
		label := text[loc[2*idx]:loc[2*idx+1]]
		canonical := MapRoleLabel(label)

		before := strings.TrimSpace(text[:loc[0]])
		segments := segmentSplitRE.Split(before, -1)
		partyName := ""
		if len(segments) > 0 {
			partyName = strings.TrimSpace(segments[len(segments)-1])
		}

		if partyName != "" && canonical != "" {
			results = append(results, PartyRole{
				PartyName:     partyName,
				Label:         label,
				CanonicalRole: canonical,
			})
		}
	}

	return results
}

// =============================================================================
// PARTY NAME NORMALIZATION
// =============================================================================

var (
	parentheticalRE = regexp.MustCompile(`\([^)]*\)`)

	// Primary suffixes are stripped unconditionally.
	companySuffixesRE = regexp.MustCompile(
		`(?i),?\s*(?:Inc\.?|Incorporated|Corporation|LLC|L\.?L\.?C\.?|Ltd\.?|Limited|Company|LP|L\.?P\.?|LLP|PLC|N\.?A\.?|S\.?A\.?|AG|GmbH|BV|NV)\.?$`)

	// "Corp." and "Co." are stripped only when preceded by a comma so names
	// like "Gamma Corp." survive.
	companySuffixesSecondaryRE = regexp.MustCompile(`(?i),\s*(?:Corp\.?|Co\.?)$`)

	jurisdictionalDescriptorRE = regexp.MustCompile(
		`(?i),?\s*a\s+(?:Delaware|Nevada|California|New York|Texas|Florida|Maryland|[A-Z][a-z]+)\s+(?:corporation|limited\s+liability\s+company|limited\s+partnership|company)$`)
)

// NormalizePartyName produces the lowercase comparison form used for
// clustering and reconciliation.
func NormalizePartyName(name string) string {
	name = parentheticalRE.ReplaceAllString(name, "")
	name = jurisdictionalDescriptorRE.ReplaceAllString(name, "")
	name = companySuffixesRE.ReplaceAllString(name, "")
	name = companySuffixesSecondaryRE.ReplaceAllString(name, "")
	name = strings.Join(strings.Fields(name), " ")
	name = strings.Trim(name, " ,.-")
	return strings.ToLower(name)
}

// DisplayPartyName cleans a party name for display, keeping capitalization.
// All parentheticals are removed, including jurisdictional ones; flagged
// for review since that loses context like "(a Delaware corporation)".
func DisplayPartyName(name string) string {
	name = parentheticalRE.ReplaceAllString(name, " ")
	name = jurisdictionalDescriptorRE.ReplaceAllString(name, "")
	name = strings.Join(strings.Fields(name), " ")
	return strings.Trim(name, " ,.-")
}
