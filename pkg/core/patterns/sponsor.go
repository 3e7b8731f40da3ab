package patterns

import (
	"regexp"
	"sort"
	"strings"
)

// =============================================================================
// A3: SPONSOR AFFILIATION
// =============================================================================

// SponsorAffiliationRE catches "affiliates of KKR", "funds managed by
// Blackstone", "portfolio companies of Thoma Bravo" and similar phrasings.
var SponsorAffiliationRE = regexp.MustCompile(
	`(?i)(?:affiliates?\s+of|funds?\s+managed\s+by|portfolio\s+compan(?:y|ies)\s+of|controlled\s+by)\s+(?P<sponsor>[A-Z][A-Za-z0-9\s,&.'-]{2,80}?)(?:\.|,|;|\s+and\b|\s+\)|$)`)

// SponsorNegativeRE suppresses sponsor hits in explicitly negated contexts.
var SponsorNegativeRE = regexp.MustCompile(
	`(?i)not\s+a\s+(?:financial\s+)?sponsor|independent\s+of\s+(?:any\s+)?sponsor|no\s+sponsor|without\s+(?:any\s+)?sponsor|non-sponsored`)

// sponsorContextChars is the window around a match checked for negation
// and captured as evidence.
const sponsorContextChars = 150

// Seed-list confidences.
const (
	SponsorSeedConfidence    = 0.95
	SponsorPatternConfidence = 0.85
)

// sponsorSeedList maps normalized sponsor names to display names. A hit
// on this list outranks the affiliation pattern.
var sponsorSeedList = map[string]string{
	"blackstone":                 "Blackstone",
	"kkr":                        "KKR",
	"kohlberg kravis roberts":    "KKR",
	"apollo":                     "Apollo Global Management",
	"apollo global":              "Apollo Global Management",
	"carlyle":                    "The Carlyle Group",
	"the carlyle group":          "The Carlyle Group",
	"thoma bravo":                "Thoma Bravo",
	"tpg":                        "TPG",
	"tpg capital":                "TPG",
	"texas pacific group":        "TPG",
	"advent":                     "Advent International",
	"advent international":       "Advent International",
	"bain capital":               "Bain Capital",
	"warburg pincus":             "Warburg Pincus",
	"silver lake":                "Silver Lake",
	"vista equity":               "Vista Equity Partners",
	"vista equity partners":      "Vista Equity Partners",
	"clayton dubilier":           "Clayton, Dubilier & Rice",
	"clayton dubilier & rice":    "Clayton, Dubilier & Rice",
	"clayton, dubilier":          "Clayton, Dubilier & Rice",
	"clayton, dubilier & rice":   "Clayton, Dubilier & Rice",
	"cd&r":                       "Clayton, Dubilier & Rice",
	"cvc":                        "CVC Capital Partners",
	"cvc capital":                "CVC Capital Partners",
	"eqt":                        "EQT",
	"eqt partners":               "EQT",
	"brookfield":                 "Brookfield Asset Management",
	"brookfield asset management": "Brookfield Asset Management",
	"permira":                    "Permira",
	"hellman & friedman":         "Hellman & Friedman",
	"h&f":                        "Hellman & Friedman",
	"general atlantic":           "General Atlantic",
	"insight partners":           "Insight Partners",
	"providence equity":          "Providence Equity Partners",
	"ares":                       "Ares Management",
	"ares management":            "Ares Management",
	"apax":                       "Apax Partners",
	"apax partners":              "Apax Partners",
	"cinven":                     "Cinven",
	"pai partners":               "PAI Partners",
	"3g capital":                 "3G Capital",
	"sycamore":                   "Sycamore Partners",
	"sycamore partners":          "Sycamore Partners",
}

// sortedSeedKeys gives deterministic scan order, longest first so
// "apollo global" wins over "apollo" at the same offset.
var sortedSeedKeys = func() []string {
	keys := make([]string, 0, len(sponsorSeedList))
	for k := range sponsorSeedList {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

var sponsorPunctRE = regexp.MustCompile(`[,.\-']`)

// NormalizeSponsorName lowercases and strips punctuation for seed-list
// comparison.
func NormalizeSponsorName(name string) string {
	name = strings.ToLower(name)
	name = sponsorPunctRE.ReplaceAllString(name, "")
	return strings.Join(strings.Fields(name), " ")
}

// IsKnownSponsor reports whether the normalized name is on the seed list.
func IsKnownSponsor(normalized string) bool {
	_, ok := sponsorSeedList[normalized]
	return ok
}

// SponsorMatch is one sponsor hit with its negation verdict and evidence.
type SponsorMatch struct {
	SponsorNameRaw        string
	SponsorNameNormalized string
	SourcePattern         string
	Confidence            float64
	ContextSnippet        string
	IsNegated             bool
	StartOffset           int
	EndOffset             int
}

func contextWindow(text string, start, end int) string {
	lo := start - sponsorContextChars
	if lo < 0 {
		lo = 0
	}
	hi := end + sponsorContextChars
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:hi]
}

// ExtractSponsors scans for seed-list names first, then the affiliation
// pattern. Matches whose surrounding context trips the negation pattern
// are returned with IsNegated set so callers can drop or downgrade them.
func ExtractSponsors(text string) []SponsorMatch {
	var matches []SponsorMatch
	lower := strings.ToLower(text)
	seen := map[string]bool{}

	for _, key := range sortedSeedKeys {
		pos := strings.Index(lower, key)
		if pos < 0 {
			continue
		}
		display := sponsorSeedList[key]
		norm := NormalizeSponsorName(display)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		ctx := contextWindow(text, pos, pos+len(key))
		matches = append(matches, SponsorMatch{
			SponsorNameRaw:        display,
			SponsorNameNormalized: norm,
			SourcePattern:         PatternSeedList,
			Confidence:            SponsorSeedConfidence,
			ContextSnippet:        ctx,
			IsNegated:             SponsorNegativeRE.MatchString(ctx),
			StartOffset:           pos,
			EndOffset:             pos + len(key),
		})
	}

	idx := SponsorAffiliationRE.SubexpIndex("sponsor")
	for _, loc := range SponsorAffiliationRE.FindAllStringSubmatchIndex(text, -1) {
		raw := strings.TrimSpace(text[loc[2*idx]:loc[2*idx+1]])
		norm := NormalizeSponsorName(raw)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		ctx := contextWindow(text, loc[0], loc[1])
		matches = append(matches, SponsorMatch{
			SponsorNameRaw:        raw,
			SponsorNameNormalized: norm,
			SourcePattern:         PatternAffiliation,
			Confidence:            SponsorPatternConfidence,
			ContextSnippet:        ctx,
			IsNegated:             SponsorNegativeRE.MatchString(ctx),
			StartOffset:           loc[0],
			EndOffset:             loc[1],
		})
	}

	return matches
}
