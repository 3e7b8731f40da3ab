package attribution

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config drives fee estimation. It is loaded from JSON at startup and a
// broken or incomplete file is a fatal error: silently falling back to
// built-in numbers would make every estimate untraceable.
type Config struct {
	// Keys: "default", "deal_size_over_1B", "deal_size_over_5B".
	AdvisoryFeeBps map[string]float64 `json:"advisory_fee_bps"`

	// Keyed by market tag; "Unknown" is the catch-all.
	UnderwritingFeeBps map[string]float64 `json:"underwriting_fee_bps"`

	// Keyed by instrument family, then canonical role; "other" is the
	// in-family catch-all.
	RoleSplits map[string]map[string]float64 `json:"role_splits"`

	Thresholds Thresholds `json:"thresholds"`
}

// Thresholds holds tunable match cutoffs.
type Thresholds struct {
	FuzzyBankMatchMin int `json:"fuzzy_bank_match_min"`
}

// defaultFallbackWeight applies when neither the role nor "other" is
// listed for a family.
const defaultFallbackWeight = 0.1

// LoadConfig reads and validates the attribution config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attribution config %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse attribution config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("attribution config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.AdvisoryFeeBps) == 0 {
		return fmt.Errorf("advisory_fee_bps is required")
	}
	if _, ok := c.AdvisoryFeeBps["default"]; !ok {
		return fmt.Errorf("advisory_fee_bps must define a default")
	}
	if len(c.UnderwritingFeeBps) == 0 {
		return fmt.Errorf("underwriting_fee_bps is required")
	}
	if len(c.RoleSplits) == 0 {
		return fmt.Errorf("role_splits is required")
	}
	if c.Thresholds.FuzzyBankMatchMin <= 0 {
		return fmt.Errorf("thresholds.fuzzy_bank_match_min is required")
	}
	return nil
}

// advisoryBps picks the bps tier for a deal value.
func (c *Config) advisoryBps(dealValueUSD float64) float64 {
	if dealValueUSD >= 5e9 {
		if bps, ok := c.AdvisoryFeeBps["deal_size_over_5B"]; ok {
			return bps
		}
	}
	if dealValueUSD >= 1e9 {
		if bps, ok := c.AdvisoryFeeBps["deal_size_over_1B"]; ok {
			return bps
		}
	}
	return c.AdvisoryFeeBps["default"]
}

// underwritingBps picks the bps for a market tag, falling back to the
// Unknown entry, then 100 bps.
func (c *Config) underwritingBps(marketTag string) float64 {
	if bps, ok := c.UnderwritingFeeBps[marketTag]; ok {
		return bps
	}
	if bps, ok := c.UnderwritingFeeBps["Unknown"]; ok {
		return bps
	}
	return 100
}

// roleWeight resolves a participant's split weight within a family.
func (c *Config) roleWeight(family, role string) float64 {
	if splits, ok := c.RoleSplits[family]; ok {
		if w, ok := splits[role]; ok {
			return w
		}
		if w, ok := splits["other"]; ok {
			return w
		}
	}
	return defaultFallbackWeight
}
