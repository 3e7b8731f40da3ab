package reconcile

import (
	"strings"

	"dealgraph/pkg/core/models"
)

// bankSuffixes are stripped from the tail of a bank name, longest first.
var bankSuffixes = []string{
	", n.a.", " n.a.", ", na", ", inc", " inc", " llc", " ltd",
}

// NormalizeBankName lowercases a bank name and strips corporate suffixes
// so the same institution collapses to one key across filings.
func NormalizeBankName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	for changed := true; changed; {
		changed = false
		for _, suffix := range bankSuffixes {
			if strings.HasSuffix(n, suffix) {
				n = strings.TrimSpace(strings.TrimSuffix(n, suffix))
				changed = true
			}
		}
	}
	return strings.TrimRight(n, " ,")
}

// NormalizeRole maps a free-text participant role onto the closed
// canonical vocabulary. Unrecognized roles become "other".
func NormalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	r = strings.ReplaceAll(r, "-", " ")

	switch {
	case strings.Contains(r, "bookrunner") || strings.Contains(r, "book running"):
		if strings.Contains(r, "joint") {
			return models.RoleJointBookrunner
		}
		return models.RoleBookrunner

	case strings.Contains(r, "co manager"):
		return models.RoleCoManager

	case strings.Contains(r, "underwriter"):
		if strings.Contains(r, "lead") || strings.Contains(r, "senior") {
			return models.RoleLeadUnderwriter
		}
		return models.RoleUnderwriter

	case strings.Contains(r, "arranger"):
		if strings.Contains(r, "joint") && strings.Contains(r, "lead") {
			return models.RoleJointLeadArranger
		}
		if strings.Contains(r, "lead") || strings.Contains(r, "mandated") {
			return models.RoleLeadArranger
		}
		return models.RoleArranger

	case strings.Contains(r, "agent"):
		if strings.Contains(r, "admin") {
			return models.RoleAdminAgent
		}
		if strings.Contains(r, "syndication") {
			return models.RoleSyndicationAgent
		}
		return models.RoleAgent
	}

	canonical := strings.ReplaceAll(r, " ", "_")
	if models.CanonicalRoles[canonical] {
		return canonical
	}
	return models.RoleOther
}
