package banks

import (
	"context"
	"fmt"
	"log"
	"strings"

	"dealgraph/pkg/core/models"
	"dealgraph/pkg/core/store"
)

// seedBank is one reference bank shipped with the pipeline.
type seedBank struct {
	name    string
	aliases []string
	bulge   bool
}

var seedBanks = []seedBank{
	{"JPMorgan Chase & Co.", []string{"JPMorgan", "J.P. Morgan", "JP Morgan", "JPMC", "Chase"}, true},
	{"Goldman Sachs", []string{"GS", "Goldman"}, true},
	{"Morgan Stanley", []string{"MS"}, true},
	{"Bank of America", []string{"BofA", "BAML", "Bank of America Merrill Lynch", "Merrill Lynch"}, true},
	{"Citigroup", []string{"Citi", "Citibank"}, true},
	{"Barclays", []string{"BARC"}, true},
	{"Deutsche Bank", []string{"DB"}, true},
	{"UBS", []string{"UBS AG"}, true},
	{"Credit Suisse", []string{"CS"}, true},
	{"Wells Fargo", []string{"WFC", "Wells"}, false},
	{"PNC Financial", []string{"PNC", "PNC Bank"}, false},
	{"U.S. Bank", []string{"USB", "US Bank", "US Bancorp"}, false},
	{"Truist", []string{"Truist Financial", "BB&T", "SunTrust"}, false},
	{"HSBC", []string{"HSBC Holdings"}, false},
	{"BNP Paribas", []string{"BNP"}, false},
	{"Societe Generale", []string{"SocGen"}, false},
	{"RBC Capital Markets", []string{"RBC", "Royal Bank of Canada"}, false},
	{"TD Securities", []string{"TD", "Toronto-Dominion"}, false},
	{"Mizuho", []string{"Mizuho Financial", "Mizuho Bank"}, false},
	{"MUFG", []string{"Mitsubishi UFJ", "Bank of Tokyo-Mitsubishi"}, false},
	{"SMBC", []string{"Sumitomo Mitsui", "SMBC Nikko"}, false},
	{"Lazard", nil, false},
	{"Evercore", nil, false},
	{"Centerview Partners", []string{"Centerview"}, false},
	{"Moelis & Company", []string{"Moelis"}, false},
	{"PJT Partners", []string{"PJT"}, false},
	{"Perella Weinberg", []string{"PWP"}, false},
	{"Guggenheim Securities", []string{"Guggenheim Partners"}, false},
	{"Jefferies", []string{"Jefferies Financial", "Jefferies Group"}, false},
	{"Piper Sandler", []string{"Piper Jaffray"}, false},
	{"Raymond James", nil, false},
}

// seedNormalize is the key scheme of the seed table: lowercase with
// commas and periods removed, suffixes untouched.
func seedNormalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(",", "", ".", "").Replace(n)
}

// Seed upserts the reference banks. Existing rows are refreshed in
// place, so reruns are safe.
func Seed(ctx context.Context, st store.Store) (int, error) {
	count := 0
	for _, sb := range seedBanks {
		bank := &models.Bank{
			Name:           sb.name,
			NameNormalized: seedNormalize(sb.name),
			DisplayName:    sb.name,
			IsBulgeBracket: sb.bulge,
		}
		for _, alias := range sb.aliases {
			bank.Aliases = append(bank.Aliases, &models.BankAlias{
				Alias:           alias,
				AliasNormalized: seedNormalize(alias),
			})
		}
		if err := st.SaveBank(ctx, bank); err != nil {
			return count, fmt.Errorf("seed bank %s: %w", sb.name, err)
		}
		count++
	}
	log.Printf("[BankResolver] seeded %d reference banks", count)
	return count, nil
}
