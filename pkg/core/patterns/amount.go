package patterns

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// A4: CURRENCY AMOUNT
// =============================================================================

// CurrencyAmountRE matches "$26 billion", "$1,250 million", "$500m".
var CurrencyAmountRE = regexp.MustCompile(
	`(?i)\$\s?(?P<num>\d{1,3}(?:,\d{3})*(?:\.\d+)?)\s*(?P<scale>billion|million|b|m|bn|mm|mil)?`)

var scaleMultipliers = map[string]float64{
	"million": 1e6, "mil": 1e6, "m": 1e6, "mm": 1e6,
	"billion": 1e9, "b": 1e9, "bn": 1e9,
}

// Amount is one parsed currency amount.
type Amount struct {
	ValueUSD    float64
	Raw         string
	StartOffset int
	EndOffset   int
}

func parseAmountAt(text string, loc []int) (Amount, bool) {
	numIdx := CurrencyAmountRE.SubexpIndex("num")
	scaleIdx := CurrencyAmountRE.SubexpIndex("scale")

	numStr := strings.ReplaceAll(text[loc[2*numIdx]:loc[2*numIdx+1]], ",", "")
	value, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return Amount{}, false
	}
	if loc[2*scaleIdx] >= 0 {
		scale := strings.ToLower(text[loc[2*scaleIdx]:loc[2*scaleIdx+1]])
		if mult, ok := scaleMultipliers[scale]; ok {
			value *= mult
		}
	}
	return Amount{
		ValueUSD:    value,
		Raw:         text[loc[0]:loc[1]],
		StartOffset: loc[0],
		EndOffset:   loc[1],
	}, true
}

// ExtractAmounts returns all currency amounts in the text, in document
// order, scaled to USD.
func ExtractAmounts(text string) []Amount {
	var amounts []Amount
	for _, loc := range CurrencyAmountRE.FindAllStringSubmatchIndex(text, -1) {
		if a, ok := parseAmountAt(text, loc); ok {
			amounts = append(amounts, a)
		}
	}
	return amounts
}

// FirstAmount returns the first amount in the text, or ok=false.
func FirstAmount(text string) (Amount, bool) {
	loc := CurrencyAmountRE.FindStringSubmatchIndex(text)
	if loc == nil {
		return Amount{}, false
	}
	return parseAmountAt(text, loc)
}

// =============================================================================
// AGREEMENT DATES
// =============================================================================

// dateSearchChars bounds the date scan to the document opening, where
// "dated as of ..." language lives.
const dateSearchChars = 1000

var monthNames = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

var (
	datedLongRE = regexp.MustCompile(
		`(?i)dated\s+(?:as\s+of\s+)?(?P<month>January|February|March|April|May|June|July|August|September|October|November|December)\s+(?P<day>\d{1,2}),?\s+(?P<year>\d{4})`)

	enteredIntoRE = regexp.MustCompile(
		`(?i)entered\s+into\s+(?:on\s+)?(?P<month>January|February|March|April|May|June|July|August|September|October|November|December)\s+(?P<day>\d{1,2}),?\s+(?P<year>\d{4})`)

	dayOfRE = regexp.MustCompile(
		`(?i)dated\s+as\s+of\s+the\s+(?P<day>\d{1,2})(?:st|nd|rd|th)\s+day\s+of\s+(?P<month>January|February|March|April|May|June|July|August|September|October|November|December),?\s+(?P<year>\d{4})`)

	datedISORE = regexp.MustCompile(
		`(?i)dated\s+(?:as\s+of\s+)?(?P<iso>\d{4}-\d{2}-\d{2})`)
)

// DateMatch is a parsed agreement date. Raw is the date portion of the
// matched phrase ("June 12, 2024"), not the whole "dated as of" clause.
type DateMatch struct {
	Value time.Time
	Raw   string
}

func parseNamedDate(re *regexp.Regexp, text string) (DateMatch, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return DateMatch{}, false
	}
	names := re.SubexpNames()
	parts := map[string]string{}
	for i, n := range names {
		if n != "" {
			parts[n] = m[i]
		}
	}

	if iso, ok := parts["iso"]; ok && iso != "" {
		t, err := time.Parse("2006-01-02", iso)
		if err != nil {
			return DateMatch{}, false
		}
		return DateMatch{Value: t, Raw: iso}, true
	}

	month, ok := monthNames[strings.ToLower(parts["month"])]
	if !ok {
		return DateMatch{}, false
	}
	day, err := strconv.Atoi(parts["day"])
	if err != nil || day < 1 || day > 31 {
		return DateMatch{}, false
	}
	year, err := strconv.Atoi(parts["year"])
	if err != nil {
		return DateMatch{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day { // rejects February 30 style rollover
		return DateMatch{}, false
	}
	raw := fmt.Sprintf("%s %d, %d", parts["month"], day, year)
	return DateMatch{Value: t, Raw: raw}, true
}

// ExtractAgreementDate scans the opening of the text for agreement-date
// language and returns the first parseable date. Unparseable phrasings
// are dropped rather than guessed.
func ExtractAgreementDate(text string) (DateMatch, bool) {
	if len(text) > dateSearchChars {
		text = text[:dateSearchChars]
	}
	for _, re := range []*regexp.Regexp{datedLongRE, enteredIntoRE, dayOfRE, datedISORE} {
		if d, ok := parseNamedDate(re, text); ok {
			return d, true
		}
	}
	return DateMatch{}, false
}
