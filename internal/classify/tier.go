// Package classify maps a company's market cap and headcount text onto a
// coarse size tier.
package classify

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-aggregator/internal/model"
)

// Tier is a company size label.
type Tier string

const (
	High    Tier = "High"
	Medium  Tier = "Medium"
	Low     Tier = "Low"
	Unknown Tier = "Unknown"
	NotSure Tier = "NotSure"
)

// Tiers lists every label in rank order.
var Tiers = []Tier{High, Medium, Low, Unknown, NotSure}

func (t Tier) String() string { return string(t) }

// ParseTier accepts any tier label case-insensitively, including the
// "Not Sure" spelling returned by older classifier services.
func ParseTier(s string) (Tier, error) {
	key := strings.ToLower(strings.Join(strings.Fields(s), ""))
	for _, t := range Tiers {
		if strings.ToLower(string(t)) == key {
			return t, nil
		}
	}
	return "", eris.Errorf("classify: unknown tier %q", s)
}

// Classify applies the size policy. It never fails: a nil input yields
// Unknown, and market caps without a recognised magnitude (including an
// empty string) yield NotSure. The first matching magnitude wins.
func Classify(employees, marketCap *string) Tier {
	if employees == nil || marketCap == nil {
		return Unknown
	}
	mc := strings.ToLower(*marketCap)
	switch {
	case strings.Contains(mc, "trillion"):
		return High
	case strings.Contains(mc, "billion"):
		return Medium
	case strings.Contains(mc, "million"):
		return Low
	default:
		return NotSure
	}
}

// ClassifyFacts classifies a merged record. Every field is present, so the
// result is never Unknown.
func ClassifyFacts(f model.CompanyFacts) Tier {
	return Classify(&f.Employees, &f.MarketCap)
}
